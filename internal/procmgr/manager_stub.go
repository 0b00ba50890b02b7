//go:build !linux

package procmgr

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("process manager is only supported on linux")

func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (int, error) {
	return -1, errUnsupported
}

func (m *Manager) WriteInput(ctx context.Context, idx int, data []byte) (int, error) {
	return 0, errUnsupported
}

func (m *Manager) ReadOutput(ctx context.Context, idx int) (Output, error) {
	return Output{}, errUnsupported
}

func (m *Manager) Stop(ctx context.Context, idx int) error {
	return errUnsupported
}

func killGroup(pid int) error {
	return errUnsupported
}

func (m *Manager) Shutdown(ctx context.Context) {}

// pipeEnd is unused off linux.
type pipeEnd struct{}

func (p *pipeEnd) Close() error { return nil }

// NewHelperLauncher always fails off linux.
func NewHelperLauncher(path string) (Launcher, error) {
	return nil, errUnsupported
}
