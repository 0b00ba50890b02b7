//go:build linux

package procmgr

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gdbc/internal/runplan"
)

func buildRunnerInit(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping helper build in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available")
	}
	helperPath := filepath.Join(t.TempDir(), "runner-init")
	cmd := exec.Command("go", "build", "-o", helperPath, "gdbc/cmd/runner-init")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build helper failed: %v: %s", err, string(output))
	}
	return helperPath
}

func newHelperManager(t *testing.T) (*Manager, string) {
	t.Helper()
	helper := buildRunnerInit(t)
	launcher, err := NewHelperLauncher(helper)
	if err != nil {
		t.Fatalf("new launcher: %v", err)
	}
	if launcher.Path() != helper {
		t.Fatalf("launcher path = %q", launcher.Path())
	}
	dir := t.TempDir()
	m, err := NewManager(Config{MaxProcesses: 2, Limits: runplan.Limits{CPUTimeSec: 5}},
		&counterBins{dir: dir}, WithLauncher(launcher))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, dir
}

func writeSource(t *testing.T, dir, name, code string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestHelperCompilesAndRuns(t *testing.T) {
	m, dir := newHelperManager(t)
	src := writeSource(t, dir, "echo.c", `#include <stdio.h>
int main(int argc, char **argv) {
	char line[64];
	printf("args=%d\n", argc);
	fflush(stdout);
	if (fgets(line, sizeof line, stdin)) printf("got %s", line);
	return 0;
}
`)
	idx, err := m.Spawn(context.Background(), SpawnRequest{
		SourcePath:     src,
		Language:       LanguageC,
		Compiler:       CompilerGCC,
		CompileOptions: "-O2",
		RunArgs:        "a b",
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := m.WriteInput(context.Background(), idx, []byte("ping\n")); err != nil {
		t.Fatalf("write input: %v", err)
	}
	out, ended := pollOutput(t, m, idx, 30*time.Second, true)
	if !ended {
		t.Fatalf("program did not finish, output %q", out)
	}
	if !strings.Contains(out, "args=3\n") || !strings.Contains(out, "got ping\n") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestHelperReportsCompileError(t *testing.T) {
	m, dir := newHelperManager(t)
	src := writeSource(t, dir, "broken.c", "int main( { return 0 }\n")
	idx, err := m.Spawn(context.Background(), SpawnRequest{SourcePath: src, Language: LanguageC, Compiler: CompilerGCC})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	out, ended := pollOutput(t, m, idx, 30*time.Second, true)
	if !ended {
		t.Fatalf("compile failure did not end the stream, output %q", out)
	}
	if !strings.Contains(out, runplan.CompileErrorLine) {
		t.Fatalf("missing compile failure line in %q", out)
	}
}
