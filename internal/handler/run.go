package handler

import (
	"context"
	"strings"

	"gdbc/internal/httpx"
	"gdbc/internal/jsonbody"
	"gdbc/internal/procmgr"
	pkgerrors "gdbc/pkg/errors"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

// RunText compiles and runs the submitted program.
func (h *Handler) RunText(ctx context.Context, req *httpx.Request) *httpx.Response {
	return h.run(ctx, req, false)
}

// RunInteractive is RunText for clients that keep feeding stdin.
func (h *Handler) RunInteractive(ctx context.Context, req *httpx.Request) *httpx.Response {
	return h.run(ctx, req, false)
}

// RunDebugger builds with debug info and starts the program under gdb.
func (h *Handler) RunDebugger(ctx context.Context, req *httpx.Request) *httpx.Response {
	return h.run(ctx, req, true)
}

// runRequest is a validated run submission.
type runRequest struct {
	lang     procmgr.Language
	compiler procmgr.CompilerKind
	source   string
	options  string
	args     string
	stdin    string
	hasStdin bool
}

func parseRunRequest(req *httpx.Request) (runRequest, error) {
	var rr runRequest
	if err := requireJSON(req); err != nil {
		return rr, err
	}
	body, err := parseBody(req)
	if err != nil {
		return rr, err
	}
	langRaw, err := requireQuery(req, "language")
	if err != nil {
		return rr, err
	}
	compilerRaw, err := requireQuery(req, "compiler_type")
	if err != nil {
		return rr, err
	}
	if rr.lang, err = procmgr.ParseLanguage(langRaw); err != nil {
		return rr, err
	}
	if rr.compiler, err = procmgr.ParseCompiler(compilerRaw); err != nil {
		return rr, err
	}

	source, found := body.String("source_code")
	if !found || source == "" {
		return rr, pkgerrors.Newf(pkgerrors.RequiredFieldEmpty, "Missing required field: source_code").
			WithDetail("field", "source_code")
	}
	rr.source = source
	rr.options = strings.TrimSpace(body.StringOr("compiler_options", ""))
	rr.args = strings.TrimSpace(body.StringOr("command_line_arguments", ""))
	rr.stdin, rr.hasStdin = body.String("stdin")
	return rr, nil
}

func (h *Handler) run(ctx context.Context, req *httpx.Request, debug bool) *httpx.Response {
	rr, err := parseRunRequest(req)
	if err != nil {
		return fail(ctx, err)
	}

	path, err := h.sources.WriteSource(rr.lang.SourceExt(), rr.source)
	if err != nil {
		return fail(ctx, pkgerrors.Wrap(err, pkgerrors.SourceWriteFailed))
	}

	pid, err := h.procs.Spawn(ctx, procmgr.SpawnRequest{
		SourcePath:     path,
		Language:       rr.lang,
		Compiler:       rr.compiler,
		CompileOptions: rr.options,
		RunArgs:        rr.args,
		Debug:          debug,
	})
	if err != nil {
		if pkgerrors.GetCode(err).HTTPStatus() < 500 {
			return fail(ctx, err)
		}
		return fail(ctx, pkgerrors.Wrap(err, pkgerrors.SpawnFailed))
	}

	if rr.hasStdin {
		if _, err := h.procs.WriteInput(ctx, pid, []byte(rr.stdin+"\n")); err != nil {
			logger.Warn(ctx, "forward initial stdin failed", zap.Int("pid", pid), zap.Error(err))
		}
	}

	logger.Info(ctx, "program started",
		zap.Int("pid", pid),
		zap.String("language", string(rr.lang)),
		zap.String("compiler", string(rr.compiler)),
		zap.Bool("debug", debug),
	)
	return ok(ctx, jsonbody.PIDResponse{PID: pid})
}
