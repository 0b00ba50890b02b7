package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"gdbc/internal/httpx"
	"gdbc/internal/jsonbody"
	pkgerrors "gdbc/pkg/errors"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

// ok encodes v as a JSON body.
func ok(ctx context.Context, v interface{}) *httpx.Response {
	body, err := jsonbody.Marshal(v)
	if err != nil {
		return fail(ctx, pkgerrors.InternalError(err))
	}
	return httpx.NewResponse(http.StatusOK).JSON(body).AllowCORS()
}

// noContent answers 204, optionally tagged with the program status.
func noContent(status string) *httpx.Response {
	resp := httpx.NewResponse(http.StatusNoContent).AllowCORS()
	if status != "" {
		resp.Header.Set(ProgramStatusHeader, status)
	}
	return resp
}

// fail maps err to its HTTP status and returns its message as the body.
func fail(ctx context.Context, err error) *httpx.Response {
	e := pkgerrors.GetError(err)
	status := e.Code.HTTPStatus()
	fields := []zap.Field{
		zap.Int("code", int(e.Code)),
		zap.String("message", e.Error()),
	}
	if cause := e.Cause(); cause != e {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, "request failed", append(fields, zap.String("stack", e.Stack))...)
	} else {
		logger.Debug(ctx, "request rejected", fields...)
	}
	return httpx.NewResponse(status).Text(e.Error()).AllowCORS()
}

// requireJSON checks Content-Type, ignoring case and parameters.
func requireJSON(req *httpx.Request) error {
	ct, found := req.Header.Get("Content-Type")
	if !found {
		return pkgerrors.New(pkgerrors.UnsupportedMedia)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !strings.EqualFold(strings.TrimSpace(ct), "application/json") {
		return pkgerrors.New(pkgerrors.UnsupportedMedia)
	}
	return nil
}

// requireQuery returns a non-empty query parameter.
func requireQuery(req *httpx.Request, name string) (string, error) {
	v, found := req.Query.Get(name)
	if !found || v == "" {
		return "", pkgerrors.MissingQuery(name)
	}
	return v, nil
}

// pidParam reads the pid query parameter as a slot index.
func pidParam(req *httpx.Request) (int, error) {
	raw, err := requireQuery(req, "pid")
	if err != nil {
		return 0, err
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil {
		return 0, pkgerrors.New(pkgerrors.InvalidProcess).WithDetail("pid", raw)
	}
	return pid, nil
}

// parseBody decodes the JSON object body.
func parseBody(req *httpx.Request) (jsonbody.Object, error) {
	obj, err := jsonbody.Parse(req.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.MalformedJSON)
	}
	return obj, nil
}
