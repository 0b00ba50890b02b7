// Package handler implements the run API on top of the process manager:
// starting programs, feeding their stdin, polling their output and stopping
// them.
package handler

import (
	"context"

	"gdbc/internal/httpx"
	"gdbc/internal/procmgr"
)

// Route paths.
const (
	PathRunText        = "/run/text-mode"
	PathRunInteractive = "/run/interactive-mode"
	PathRunDebugger    = "/run/debugger"
	PathStop           = "/stop"
	PathInput          = "/input"
	PathProgram        = "/program"
)

// ProgramStatusHeader is set on the 204 that ends an output stream.
const ProgramStatusHeader = "X-Program-Status"

// ProcessManager is the part of procmgr.Manager the handlers need.
type ProcessManager interface {
	Spawn(ctx context.Context, req procmgr.SpawnRequest) (int, error)
	WriteInput(ctx context.Context, idx int, data []byte) (int, error)
	ReadOutput(ctx context.Context, idx int) (procmgr.Output, error)
	Stop(ctx context.Context, idx int) error
}

// SourceStore persists submitted source code.
type SourceStore interface {
	WriteSource(ext, code string) (string, error)
}

// Handler serves the run API.
type Handler struct {
	procs   ProcessManager
	sources SourceStore
}

// New creates a Handler.
func New(procs ProcessManager, sources SourceStore) *Handler {
	return &Handler{procs: procs, sources: sources}
}

// Register adds every route to table.
func (h *Handler) Register(table *httpx.RouteTable) error {
	routes := []httpx.Route{
		{Path: PathRunText, Method: httpx.MethodPost, Handler: h.RunText},
		{Path: PathRunInteractive, Method: httpx.MethodPost, Handler: h.RunInteractive},
		{Path: PathRunDebugger, Method: httpx.MethodPost, Handler: h.RunDebugger},
		{Path: PathStop, Method: httpx.MethodPost, Handler: h.Stop},
		{Path: PathInput, Method: httpx.MethodPost, Handler: h.Input},
		{Path: PathProgram, Method: httpx.MethodGet, Handler: h.Program},
	}
	for _, r := range routes {
		if err := table.Insert(r.Path, r.Method, r.Handler); err != nil {
			return err
		}
	}
	return nil
}
