//go:build linux

package procmgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	pkgerrors "gdbc/pkg/errors"

	"golang.org/x/sys/unix"
)

// commandLauncher ignores the plan and runs a fixed command with the pipes.
type commandLauncher struct {
	argv  []string
	fail  error
	mu    sync.Mutex
	plans int
}

func (l *commandLauncher) Launch(ctx context.Context, spec LaunchSpec) (*exec.Cmd, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.plans++
	l.mu.Unlock()
	cmd := exec.Command(l.argv[0], l.argv[1:]...)
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Output
	cmd.Stderr = spec.Output
	cmd.SysProcAttr = buildSysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

type counterBins struct {
	dir string
	n   atomic.Int64
}

func (b *counterBins) NextBinaryPath() (string, error) {
	return filepath.Join(b.dir, fmt.Sprintf("%d.out", b.n.Add(1))), nil
}

func newTestManager(t *testing.T, capacity int, launcher Launcher) *Manager {
	t.Helper()
	m, err := NewManager(Config{MaxProcesses: capacity}, &counterBins{dir: t.TempDir()}, WithLauncher(launcher))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func requireBinary(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not available", path)
	}
}

func testSpawnRequest() SpawnRequest {
	return SpawnRequest{SourcePath: "main.c", Language: LanguageC, Compiler: CompilerGCC}
}

// pollOutput collects output until data arrives (or the stream ends when
// untilEnd is set) or the timeout passes.
func pollOutput(t *testing.T, m *Manager, idx int, timeout time.Duration, untilEnd bool) (string, bool) {
	t.Helper()
	var sb strings.Builder
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		out, err := m.ReadOutput(context.Background(), idx)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		switch out.Status {
		case OutputData:
			sb.Write(out.Data)
			if !untilEnd {
				return sb.String(), false
			}
		case OutputEnd:
			return sb.String(), true
		case OutputNoData:
			time.Sleep(10 * time.Millisecond)
		}
	}
	return sb.String(), false
}

func TestSpawnSlotExclusivityAndCapacity(t *testing.T) {
	requireBinary(t, "/bin/cat")
	const capacity = 8
	m := newTestManager(t, capacity, &commandLauncher{argv: []string{"/bin/cat"}})

	var wg sync.WaitGroup
	results := make(chan int, capacity)
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := m.Spawn(context.Background(), testSpawnRequest())
			if err != nil {
				t.Errorf("spawn: %v", err)
				return
			}
			results <- idx
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for idx := range results {
		if seen[idx] {
			t.Fatalf("slot %d handed out twice", idx)
		}
		if idx < 0 || idx >= capacity {
			t.Fatalf("slot %d out of range", idx)
		}
		seen[idx] = true
	}
	if len(seen) != capacity {
		t.Fatalf("got %d slots, want %d", len(seen), capacity)
	}
	if m.Active() != capacity {
		t.Fatalf("active = %d", m.Active())
	}

	_, err := m.Spawn(context.Background(), testSpawnRequest())
	if !pkgerrors.Is(err, pkgerrors.ProcessTableFull) {
		t.Fatalf("err = %v, want ProcessTableFull", err)
	}
	if pkgerrors.GetCode(err).HTTPStatus() != 500 {
		t.Fatalf("table full should map to 500")
	}
}

func TestStopReapsOnce(t *testing.T) {
	requireBinary(t, "/bin/cat")
	m := newTestManager(t, 2, &commandLauncher{argv: []string{"/bin/cat"}})

	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if !m.Running(idx) {
		t.Fatalf("slot %d should be running", idx)
	}
	if err := m.Stop(context.Background(), idx); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := m.Stop(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("second stop: %v, want InvalidProcess", err)
	}
	if m.Active() != 0 {
		t.Fatalf("active = %d", m.Active())
	}
	if _, err := m.ReadOutput(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("read after stop: %v", err)
	}
	if _, err := m.WriteInput(context.Background(), idx, []byte("x")); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("write after stop: %v", err)
	}
}

func TestConcurrentStopSingleWinner(t *testing.T) {
	requireBinary(t, "/bin/cat")
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/cat"}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Stop(context.Background(), idx) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("stop succeeded %d times", wins.Load())
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	requireBinary(t, "/bin/cat")
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/cat"}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	out, err := m.ReadOutput(context.Background(), idx)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if out.Status != OutputNoData {
		t.Fatalf("status = %v, want no data before input", out.Status)
	}

	n, err := m.WriteInput(context.Background(), idx, []byte("hello world\n"))
	if err != nil {
		t.Fatalf("write input: %v", err)
	}
	if n != len("hello world\n") {
		t.Fatalf("written = %d", n)
	}

	var got strings.Builder
	deadline := time.Now().Add(3 * time.Second)
	for got.String() != "hello world\n" && time.Now().Before(deadline) {
		s, _ := pollOutput(t, m, idx, 500*time.Millisecond, false)
		got.WriteString(s)
	}
	if got.String() != "hello world\n" {
		t.Fatalf("echo = %q", got.String())
	}
}

func TestReadOutputEndOfStreamReaps(t *testing.T) {
	requireBinary(t, "/bin/sh")
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/sh", "-c", "echo done"}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	out, ended := pollOutput(t, m, idx, 5*time.Second, true)
	if !ended {
		t.Fatalf("stream did not end, output %q", out)
	}
	if out != "done\n" {
		t.Fatalf("output = %q", out)
	}
	if m.Running(idx) || m.Active() != 0 {
		t.Fatalf("slot should be reclaimed")
	}
	if _, err := m.ReadOutput(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("read after end: %v", err)
	}
	if err := m.Stop(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("stop after end: %v", err)
	}

	next, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("respawn: %v", err)
	}
	if next != idx {
		t.Fatalf("reclaimed slot not reused: got %d want %d", next, idx)
	}
}

func TestClosedStdoutIsUnreachable(t *testing.T) {
	requireBinary(t, "/bin/sh")
	// closes its output but keeps running
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/sh", "-c", "exec >&- 2>&-; sleep 30"}})
	m.cfg.ExitRecheck = 5 * time.Millisecond
	m.cfg.ExitAttempts = 2
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	_, ended := pollOutput(t, m, idx, 5*time.Second, true)
	if !ended {
		t.Fatalf("expected end of stream")
	}
	if m.Active() != 0 {
		t.Fatalf("slot should be reclaimed after kill")
	}
}

func TestStopKillFailureKeepsSlotRunning(t *testing.T) {
	requireBinary(t, "/bin/cat")
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/cat"}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	m.kill = func(pid int) error { return unix.EPERM }
	err = m.Stop(context.Background(), idx)
	if !pkgerrors.Is(err, pkgerrors.ProcessStopFailed) {
		t.Fatalf("err = %v, want ProcessStopFailed", err)
	}
	if pkgerrors.GetCode(err).HTTPStatus() != 400 {
		t.Fatalf("stop failure should map to 400")
	}
	if !m.Running(idx) || m.Active() != 1 {
		t.Fatalf("slot must stay running after a failed kill")
	}

	m.kill = killGroup
	if err := m.Stop(context.Background(), idx); err != nil {
		t.Fatalf("stop after restoring kill: %v", err)
	}
	if m.Active() != 0 {
		t.Fatalf("active = %d", m.Active())
	}
}

func TestInvalidIndices(t *testing.T) {
	m := newTestManager(t, 4, &commandLauncher{argv: []string{"/bin/cat"}})
	for _, idx := range []int{-1, 4, 999999} {
		if _, err := m.ReadOutput(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
			t.Fatalf("ReadOutput(%d): %v", idx, err)
		}
		if _, err := m.WriteInput(context.Background(), idx, []byte("x")); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
			t.Fatalf("WriteInput(%d): %v", idx, err)
		}
		if err := m.Stop(context.Background(), idx); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
			t.Fatalf("Stop(%d): %v", idx, err)
		}
	}
	// a free slot inside the table is just as invalid
	if _, err := m.ReadOutput(context.Background(), 0); !pkgerrors.Is(err, pkgerrors.InvalidProcess) {
		t.Fatalf("ReadOutput on free slot: %v", err)
	}
}

func TestSpawnFailureReleasesSlot(t *testing.T) {
	launcher := &commandLauncher{argv: []string{"/bin/cat"}, fail: errors.New("no fork for you")}
	m := newTestManager(t, 1, launcher)

	fdsBefore := openFDs(t)
	_, err := m.Spawn(context.Background(), testSpawnRequest())
	if !pkgerrors.Is(err, pkgerrors.SpawnFailed) {
		t.Fatalf("err = %v, want SpawnFailed", err)
	}
	if m.Active() != 0 || m.Running(0) {
		t.Fatalf("failed spawn must release the slot")
	}
	if fdsAfter := openFDs(t); fdsAfter > fdsBefore {
		t.Fatalf("descriptor leak: %d -> %d", fdsBefore, fdsAfter)
	}

	requireBinary(t, "/bin/cat")
	launcher.fail = nil
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn after failure: %v", err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0", idx)
	}
}

func TestSnapshotAndShutdown(t *testing.T) {
	requireBinary(t, "/bin/cat")
	m := newTestManager(t, 3, &commandLauncher{argv: []string{"/bin/cat"}})
	for i := 0; i < 2; i++ {
		if _, err := m.Spawn(context.Background(), SpawnRequest{SourcePath: "a.c", Language: LanguageC, Compiler: CompilerGCC, Debug: i == 1}); err != nil {
			t.Fatalf("spawn: %v", err)
		}
	}
	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, info := range snap {
		if info.State != "running" || info.PID <= 0 || info.Generation == 0 || info.Binary == "" {
			t.Fatalf("bad slot info %+v", info)
		}
	}
	if !snap[1].Debug {
		t.Fatalf("debug flag not recorded: %+v", snap[1])
	}

	m.Shutdown(context.Background())
	if m.Active() != 0 || len(m.Snapshot()) != 0 {
		t.Fatalf("shutdown left running slots")
	}
}

func openFDs(t *testing.T) int {
	t.Helper()
	if runtime.GOOS != "linux" {
		return 0
	}
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("cannot list fds: %v", err)
	}
	return len(entries)
}

func TestReadOutputKeepsRuneSplitAcrossWrites(t *testing.T) {
	requireBinary(t, "/bin/sh")
	// 한 is ED 95 9C; the child writes it in two halves with a pause between.
	script := `printf 'a\355\225'; sleep 0.3; printf '\234b'`
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/sh", "-c", script}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	ended := false
	for !ended && time.Now().Before(deadline) {
		out, err := m.ReadOutput(context.Background(), idx)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		switch out.Status {
		case OutputData:
			if !utf8.Valid(out.Data) {
				t.Fatalf("chunk %q is not valid UTF-8", out.Data)
			}
			got = append(got, out.Data...)
		case OutputEnd:
			ended = true
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if !ended {
		t.Fatalf("stream did not end, got %q", got)
	}
	if string(got) != "a한b" {
		t.Fatalf("output = %q", got)
	}
}

func TestReadOutputFlushesTruncatedRuneAtEnd(t *testing.T) {
	requireBinary(t, "/bin/sh")
	m := newTestManager(t, 1, &commandLauncher{argv: []string{"/bin/sh", "-c", `printf 'a\355\225'`}})
	idx, err := m.Spawn(context.Background(), testSpawnRequest())
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	out, ended := pollOutput(t, m, idx, 5*time.Second, true)
	if !ended {
		t.Fatalf("stream did not end")
	}
	if out != "a\xed\x95" {
		t.Fatalf("output = %q", out)
	}
}
