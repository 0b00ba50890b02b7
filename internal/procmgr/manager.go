// Package procmgr owns the fixed table of child processes that compile and
// run submitted programs, and the pipes connected to them.
package procmgr

import (
	"context"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"gdbc/internal/runplan"
	pkgerrors "gdbc/pkg/errors"
	"gdbc/pkg/utils/contextkey"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultMaxProcesses = 1024
	defaultReadChunk    = 14 * 1024
	defaultExitRecheck  = 20 * time.Millisecond
	defaultExitAttempts = 5
)

// Config holds process manager settings.
type Config struct {
	MaxProcesses int
	ReadChunk    int
	ArgvMode     ArgvMode
	Toolchain    Toolchain
	Limits       runplan.Limits
	EchoCompile  bool
	// SeccompProfile is applied to non-debug runs; gdb needs ptrace.
	SeccompProfile string
	// ExitRecheck and ExitAttempts bound how long an end-of-stream read waits
	// for the child to be seen as exited before it is killed.
	ExitRecheck  time.Duration
	ExitAttempts int
}

func (c Config) withDefaults() Config {
	if c.MaxProcesses <= 0 {
		c.MaxProcesses = defaultMaxProcesses
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = defaultReadChunk
	}
	if c.ArgvMode == "" {
		c.ArgvMode = ArgvSpace
	}
	if c.ExitRecheck <= 0 {
		c.ExitRecheck = defaultExitRecheck
	}
	if c.ExitAttempts <= 0 {
		c.ExitAttempts = defaultExitAttempts
	}
	c.Toolchain = c.Toolchain.withDefaults()
	return c
}

// BinaryAllocator hands out unique output paths for compiled programs.
type BinaryAllocator interface {
	NextBinaryPath() (string, error)
}

// LaunchSpec is what a Launcher needs to start one child. Stdin and Output
// are the child's ends of the pipes; the launcher must not close them.
type LaunchSpec struct {
	Plan   runplan.Plan
	Stdin  *os.File
	Output *os.File
}

// Launcher starts the child process for a plan.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (*exec.Cmd, error)
}

// SpawnRequest describes one compile-and-run pipeline.
type SpawnRequest struct {
	SourcePath     string
	Language       Language
	Compiler       CompilerKind
	CompileOptions string
	RunArgs        string
	Debug          bool
}

// OutputStatus is the outcome of a ReadOutput call.
type OutputStatus int

const (
	// OutputData means Data holds bytes read from the child.
	OutputData OutputStatus = iota
	// OutputNoData means nothing is buffered yet; poll again later.
	OutputNoData
	// OutputEnd means the stream closed and the slot has been reclaimed.
	OutputEnd
)

func (s OutputStatus) String() string {
	switch s {
	case OutputData:
		return "data"
	case OutputNoData:
		return "no_data"
	case OutputEnd:
		return "end"
	}
	return "unknown"
}

// Output is the result of ReadOutput.
type Output struct {
	Data   []byte
	Status OutputStatus
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLauncher replaces the default helper launcher.
func WithLauncher(l Launcher) Option {
	return func(m *Manager) {
		m.launcher = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc MetricsCollector) Option {
	return func(m *Manager) {
		if mc != nil {
			m.metrics = mc
		}
	}
}

// Manager is the process table.
type Manager struct {
	cfg      Config
	slots    []slot
	bins     BinaryAllocator
	launcher Launcher
	metrics  MetricsCollector
	active   atomic.Int64
	// kill signals a child's process group.
	kill func(pid int) error
}

// NewManager creates a manager with cfg.MaxProcesses free slots.
func NewManager(cfg Config, bins BinaryAllocator, opts ...Option) (*Manager, error) {
	if bins == nil {
		return nil, pkgerrors.Newf(pkgerrors.InternalServerError, "binary allocator is required")
	}
	cfg = cfg.withDefaults()
	if _, err := cfg.ArgvMode.Split(""); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:     cfg,
		slots:   make([]slot, cfg.MaxProcesses),
		bins:    bins,
		metrics: NewNoopMetricsCollector(),
		kill:    killGroup,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.launcher == nil {
		return nil, pkgerrors.Newf(pkgerrors.InternalServerError, "launcher is required")
	}
	return m, nil
}

// Capacity returns the size of the table.
func (m *Manager) Capacity() int {
	return len(m.slots)
}

// Active returns the number of running slots.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Running reports whether idx currently names a running slot.
func (m *Manager) Running(idx int) bool {
	s, err := m.slotAt(idx)
	return err == nil && s.running()
}

// Snapshot lists every non-free slot.
func (m *Manager) Snapshot() []SlotInfo {
	var out []SlotInfo
	for i := range m.slots {
		s := &m.slots[i]
		state := s.state.Load()
		if state == slotFree {
			continue
		}
		info := SlotInfo{
			Index:      i,
			State:      stateName(state),
			Generation: s.generation.Load(),
		}
		if state == slotRunning {
			s.rw.RLock()
			if s.running() {
				info.PID = s.pid
				info.Debug = s.debug
				info.Binary = s.binary
				info.StartedAt = s.startedAt
			}
			s.rw.RUnlock()
		}
		out = append(out, info)
	}
	return out
}

// claim takes the first free slot.
func (m *Manager) claim() (int, *slot, bool) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.state.CompareAndSwap(slotFree, slotStarting) {
			s.generation.Add(1)
			return i, s, true
		}
	}
	return -1, nil, false
}

func (m *Manager) slotAt(idx int) (*slot, error) {
	if idx < 0 || idx >= len(m.slots) {
		return nil, pkgerrors.New(pkgerrors.InvalidProcess).WithDetail("pid", idx)
	}
	return &m.slots[idx], nil
}

func invalidSlot(idx int) error {
	return pkgerrors.New(pkgerrors.InvalidProcess).WithDetail("pid", idx)
}

// buildPlan resolves the toolchain and tokenizes options for req.
func (m *Manager) buildPlan(req SpawnRequest, binary string) (runplan.Plan, error) {
	compiler, err := m.cfg.Toolchain.CompilerPath(req.Language, req.Compiler)
	if err != nil {
		return runplan.Plan{}, err
	}
	options, err := m.cfg.ArgvMode.Split(req.CompileOptions)
	if err != nil {
		return runplan.Plan{}, pkgerrors.Wrapf(err, pkgerrors.InvalidParams, "Invalid parameter: compiler_options")
	}
	args, err := m.cfg.ArgvMode.Split(req.RunArgs)
	if err != nil {
		return runplan.Plan{}, pkgerrors.Wrapf(err, pkgerrors.InvalidParams, "Invalid parameter: command_line_arguments")
	}
	plan := runplan.Plan{
		Compile:     CompileArgv(compiler, req.SourcePath, binary, req.Debug, options),
		Run:         RunArgv(m.cfg.Toolchain.Debugger, binary, req.Debug, args),
		Limits:      m.cfg.Limits,
		EchoCompile: m.cfg.EchoCompile,
	}
	if !req.Debug {
		plan.SeccompProfile = m.cfg.SeccompProfile
	}
	return plan, nil
}

func slotContext(ctx context.Context, idx int) context.Context {
	return context.WithValue(ctx, contextkey.Slot, idx)
}

func (m *Manager) logReap(ctx context.Context, idx, pid int, reason string, waitErr error) {
	fields := []zap.Field{zap.Int("os_pid", pid), zap.String("reason", reason)}
	if waitErr != nil {
		fields = append(fields, zap.String("exit", waitErr.Error()))
	}
	logger.Info(slotContext(ctx, idx), "process reaped", fields...)
}
