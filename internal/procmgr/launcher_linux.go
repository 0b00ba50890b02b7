//go:build linux

package procmgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"gdbc/internal/runplan"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultHelperName = "runner-init"

// HelperLauncher starts the runner-init helper, which compiles the program
// and then execs into it. The plan is sent on descriptor 3.
type HelperLauncher struct {
	path string
}

// NewHelperLauncher resolves the helper binary. A bare name is looked up next
// to the running executable first, then on PATH.
func NewHelperLauncher(path string) (*HelperLauncher, error) {
	if strings.TrimSpace(path) == "" {
		path = defaultHelperName
	}
	resolved, err := resolveHelper(path)
	if err != nil {
		return nil, err
	}
	return &HelperLauncher{path: resolved}, nil
}

func resolveHelper(path string) (string, error) {
	if strings.Contains(path, "/") {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("helper %s: %w", path, err)
		}
		return filepath.Abs(path)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), path)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	found, err := exec.LookPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve helper %s: %w", path, err)
	}
	return found, nil
}

// Path returns the resolved helper path.
func (l *HelperLauncher) Path() string {
	return l.path
}

// Launch starts the helper in its own process group. The child is not tied
// to ctx: it outlives the request that spawned it.
func (l *HelperLauncher) Launch(ctx context.Context, spec LaunchSpec) (*exec.Cmd, error) {
	planR, planW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create plan pipe: %w", err)
	}

	cmd := exec.Command(l.path)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Output
	cmd.Stderr = spec.Output
	cmd.ExtraFiles = []*os.File{planR}
	cmd.SysProcAttr = buildSysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = planR.Close()
		_ = planW.Close()
		return nil, fmt.Errorf("start helper: %w", err)
	}
	_ = planR.Close()

	go func() {
		defer planW.Close()
		if err := runplan.Encode(planW, spec.Plan); err != nil {
			logger.Warn(ctx, "send run plan failed", zap.Int("os_pid", cmd.Process.Pid), zap.Error(err))
		}
	}()
	return cmd, nil
}

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
