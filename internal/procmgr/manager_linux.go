//go:build linux

package procmgr

import (
	"context"
	"errors"
	"time"

	pkgerrors "gdbc/pkg/errors"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Spawn claims a free slot and starts the compile-and-run pipeline for req.
// It returns the slot index, which stays valid until the slot is reaped.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (int, error) {
	start := time.Now()
	idx, s, ok := m.claim()
	if !ok {
		m.metrics.SpawnResult("exhausted", time.Since(start))
		logger.Warn(ctx, "process table full", zap.Int("capacity", len(m.slots)))
		return -1, pkgerrors.New(pkgerrors.ProcessTableFull)
	}
	ctx = slotContext(ctx, idx)

	if err := m.start(ctx, s, req); err != nil {
		s.state.Store(slotFree)
		m.metrics.SpawnResult("failed", time.Since(start))
		logger.Error(ctx, "spawn failed", zap.String("source", req.SourcePath), zap.Error(err))
		return -1, err
	}

	m.metrics.SpawnResult("ok", time.Since(start))
	m.metrics.ActiveSlots(int(m.active.Add(1)))
	logger.Info(ctx, "process spawned",
		zap.Int("os_pid", s.pid),
		zap.String("source", req.SourcePath),
		zap.String("binary", s.binary),
		zap.Bool("debug", req.Debug),
	)
	return idx, nil
}

// start runs while s is in the starting state and publishes it as running.
func (m *Manager) start(ctx context.Context, s *slot, req SpawnRequest) error {
	binary, err := m.bins.NextBinaryPath()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.SpawnFailed)
	}
	plan, err := m.buildPlan(req, binary)
	if err != nil {
		return err
	}

	pipes, err := newPipeSet()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.SpawnFailed)
	}

	childIn := pipes.stdinR.file("child-stdin")
	childOut := pipes.outW.file("child-output")
	cmd, err := m.launcher.Launch(ctx, LaunchSpec{Plan: plan, Stdin: childIn, Output: childOut})
	// The child holds its own copies now; the parent must not keep the write
	// end of the output pipe or it would never see end-of-stream.
	_ = childIn.Close()
	_ = childOut.Close()
	if err != nil {
		pipes.Close()
		return pkgerrors.Wrap(err, pkgerrors.SpawnFailed)
	}

	s.rw.Lock()
	s.pid = cmd.Process.Pid
	s.cmd = cmd
	s.stdin = pipes.stdinW
	s.stdout = pipes.outR
	s.startedAt = time.Now()
	s.debug = req.Debug
	s.binary = binary
	s.rw.Unlock()
	s.state.Store(slotRunning)
	return nil
}

// WriteInput writes data to the child's stdin. It may block while the pipe
// is full.
func (m *Manager) WriteInput(ctx context.Context, idx int, data []byte) (int, error) {
	s, err := m.slotAt(idx)
	if err != nil {
		return 0, err
	}
	s.rw.RLock()
	defer s.rw.RUnlock()
	if !s.running() {
		return 0, invalidSlot(idx)
	}
	if err := unix.Kill(s.pid, 0); err != nil {
		logger.Warn(slotContext(ctx, idx), "process not reachable", zap.Int("os_pid", s.pid), zap.Error(err))
		return 0, pkgerrors.Wrap(err, pkgerrors.ChildUnavailable)
	}
	n, err := s.stdin.writeAll(data)
	if n > 0 {
		m.metrics.InputBytes(n)
	}
	if err != nil {
		logger.Warn(slotContext(ctx, idx), "write to process failed", zap.Int("written", n), zap.Error(err))
		return n, pkgerrors.Wrap(err, pkgerrors.ProcessWriteFailed)
	}
	return n, nil
}

// ReadOutput returns whatever the child has written so far without blocking.
// A UTF-8 sequence cut by the read boundary is held back until its remaining
// bytes arrive or the stream ends. On end-of-stream the slot is reaped before
// returning OutputEnd, after which idx is no longer valid.
func (m *Manager) ReadOutput(ctx context.Context, idx int) (Output, error) {
	s, err := m.slotAt(idx)
	if err != nil {
		return Output{}, err
	}

	s.rw.RLock()
	if !s.running() {
		s.rw.RUnlock()
		return Output{}, invalidSlot(idx)
	}
	s.outMu.Lock()
	held := len(s.pending)
	buf := make([]byte, held+m.cfg.ReadChunk)
	copy(buf, s.pending)
	n, readErr := s.stdout.read(buf[held:])
	if n > 0 {
		data, rest := splitIncompleteRune(buf[:held+n])
		s.pending = append([]byte(nil), rest...)
		s.outMu.Unlock()
		s.rw.RUnlock()
		m.metrics.OutputBytes(n)
		if len(data) == 0 {
			return Output{Status: OutputNoData}, nil
		}
		return Output{Data: data, Status: OutputData}, nil
	}
	if errors.Is(readErr, unix.EAGAIN) {
		s.outMu.Unlock()
		s.rw.RUnlock()
		return Output{Status: OutputNoData}, nil
	}
	if held > 0 {
		// Flush the held bytes as they are; the next read reports the end.
		data := s.pending
		s.pending = nil
		s.outMu.Unlock()
		s.rw.RUnlock()
		return Output{Data: data, Status: OutputData}, nil
	}
	s.outMu.Unlock()

	pid := s.pid
	reason := ReapExited
	if readErr != nil || !m.waitExited(pid) {
		reason = ReapUnreachable
	}
	// Winning the gate while still holding the read lock guarantees the slot
	// was not reaped and reused since the read.
	won := s.state.CompareAndSwap(slotRunning, slotReaping)
	s.rw.RUnlock()
	if !won {
		return Output{Status: OutputEnd}, nil
	}

	ctx = slotContext(ctx, idx)
	if reason == ReapUnreachable {
		logger.Warn(ctx, "process unreachable, killing",
			zap.Int("os_pid", pid),
			zap.NamedError("read_error", readErr),
		)
		_ = m.kill(pid)
	}
	m.reap(ctx, idx, s, reason)
	return Output{Status: OutputEnd}, nil
}

// Stop kills the child's process group and reaps the slot. It fails with
// InvalidProcess when idx is not running and with ProcessStopFailed when the
// signal could not be delivered; the slot stays running in that case.
func (m *Manager) Stop(ctx context.Context, idx int) error {
	return m.stop(ctx, idx, ReapStopped)
}

func (m *Manager) stop(ctx context.Context, idx int, reason string) error {
	s, err := m.slotAt(idx)
	if err != nil {
		return err
	}
	if !s.state.CompareAndSwap(slotRunning, slotReaping) {
		return invalidSlot(idx)
	}
	ctx = slotContext(ctx, idx)
	pid := s.pid
	if err := m.kill(pid); err != nil {
		s.state.Store(slotRunning)
		logger.Warn(ctx, "kill process failed", zap.Int("os_pid", pid), zap.Error(err))
		return pkgerrors.Wrap(err, pkgerrors.ProcessStopFailed).WithDetail("pid", idx)
	}
	m.reap(ctx, idx, s, reason)
	return nil
}

// Shutdown stops every running slot.
func (m *Manager) Shutdown(ctx context.Context) {
	stopped := 0
	for i := range m.slots {
		if m.slots[i].running() && m.stop(ctx, i, ReapShutdown) == nil {
			stopped++
		}
	}
	logger.Info(ctx, "process manager shut down", zap.Int("stopped", stopped))
}

// reap waits for the child and releases the slot. The caller must have
// moved s into the reaping state.
func (m *Manager) reap(ctx context.Context, idx int, s *slot, reason string) {
	s.rw.Lock()
	pid := s.pid
	var waitErr error
	if s.cmd != nil {
		waitErr = s.cmd.Wait()
	}
	_ = s.stdin.Close()
	_ = s.stdout.Close()
	lifetime := time.Since(s.startedAt)
	s.reset()
	s.rw.Unlock()
	s.state.Store(slotFree)

	m.metrics.Reaped(reason, lifetime)
	m.metrics.ActiveSlots(int(m.active.Add(-1)))
	m.logReap(ctx, idx, pid, reason, waitErr)
}

// waitExited reports whether pid has exited, re-checking for a short while
// since the output pipe can close just before the exit is recorded.
func (m *Manager) waitExited(pid int) bool {
	for i := 0; i < m.cfg.ExitAttempts; i++ {
		if processExited(pid) {
			return true
		}
		time.Sleep(m.cfg.ExitRecheck)
	}
	return processExited(pid)
}

// processExited checks for exit without consuming the status, which is
// collected later by cmd.Wait.
func processExited(pid int) bool {
	var info unix.Siginfo
	err := unix.Waitid(unix.P_PID, pid, &info, unix.WEXITED|unix.WNOHANG|unix.WNOWAIT, nil)
	if err != nil {
		return errors.Is(err, unix.ECHILD)
	}
	return info.Signo == int32(unix.SIGCHLD)
}

// killGroup sends SIGKILL to the child's process group, falling back to the
// child alone.
func killGroup(pid int) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
		return nil
	}
	return unix.Kill(pid, unix.SIGKILL)
}
