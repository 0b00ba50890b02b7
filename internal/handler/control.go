package handler

import (
	"context"

	"gdbc/internal/httpx"
	"gdbc/internal/jsonbody"
	"gdbc/internal/procmgr"
	pkgerrors "gdbc/pkg/errors"
)

// Stop kills a running program.
func (h *Handler) Stop(ctx context.Context, req *httpx.Request) *httpx.Response {
	if err := requireJSON(req); err != nil {
		return fail(ctx, err)
	}
	pid, err := pidParam(req)
	if err != nil {
		return fail(ctx, err)
	}
	if err := h.procs.Stop(ctx, pid); err != nil {
		return fail(ctx, err)
	}
	return ok(ctx, jsonbody.PIDResponse{PID: pid})
}

// Input writes the stdin field, plus a newline, to a running program.
func (h *Handler) Input(ctx context.Context, req *httpx.Request) *httpx.Response {
	if err := requireJSON(req); err != nil {
		return fail(ctx, err)
	}
	pid, err := pidParam(req)
	if err != nil {
		return fail(ctx, err)
	}
	body, err := parseBody(req)
	if err != nil {
		return fail(ctx, err)
	}
	stdin, found := body.String("stdin")
	if !found {
		return fail(ctx, pkgerrors.Newf(pkgerrors.RequiredFieldEmpty, "Missing required field: stdin").
			WithDetail("field", "stdin"))
	}
	if _, err := h.procs.WriteInput(ctx, pid, []byte(stdin+"\n")); err != nil {
		return fail(ctx, err)
	}
	return ok(ctx, jsonbody.PIDResponse{PID: pid})
}

// Program returns the output produced since the previous poll.
func (h *Handler) Program(ctx context.Context, req *httpx.Request) *httpx.Response {
	pid, err := pidParam(req)
	if err != nil {
		return fail(ctx, err)
	}
	out, err := h.procs.ReadOutput(ctx, pid)
	if err != nil {
		return fail(ctx, err)
	}
	switch out.Status {
	case procmgr.OutputData:
		return ok(ctx, jsonbody.OutputResponse{PID: pid, Output: string(out.Data)})
	case procmgr.OutputEnd:
		return noContent("exited")
	default:
		return noContent("")
	}
}
