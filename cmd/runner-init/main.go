//go:build linux

// Command runner-init is started by the process manager with the user
// program's pipes on descriptors 0-2 and a run plan on descriptor 3. It
// builds the program, then replaces itself with it.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"gdbc/internal/runplan"

	"golang.org/x/sys/unix"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	plan, err := readPlan()
	if err != nil {
		return err
	}
	if plan.WorkDir != "" {
		if err := os.Chdir(plan.WorkDir); err != nil {
			return fmt.Errorf("chdir workdir: %w", err)
		}
	}

	if plan.EchoCompile {
		_, _ = fmt.Fprintln(os.Stdout, strings.Join(plan.Compile, " "))
	}
	if line, ok := compile(plan.Compile); !ok {
		_, _ = fmt.Fprintln(os.Stdout, line)
		os.Exit(1)
	}

	if err := applyRlimits(plan.Limits); err != nil {
		return err
	}
	if plan.SeccompProfile != "" {
		if err := applySeccomp(plan.SeccompProfile); err != nil {
			return err
		}
	}

	env := plan.Env
	if len(env) == 0 {
		env = runplan.DefaultEnv()
	}
	return unix.Exec(plan.Run[0], plan.Run, env)
}

func readPlan() (runplan.Plan, error) {
	f := os.NewFile(uintptr(runplan.FD), "plan")
	if f == nil {
		return runplan.Plan{}, errors.New("plan descriptor missing")
	}
	defer f.Close()
	plan, err := runplan.Decode(f)
	if err != nil {
		return runplan.Plan{}, err
	}
	return plan, nil
}

// compile runs the build synchronously with its diagnostics on our stdout and
// stderr. The compiler gets no stdin so it cannot consume user input.
func compile(argv []string) (string, bool) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return "", true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		return runplan.CompileErrorLine, false
	}
	_, _ = fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
	return runplan.CompileAbortedLine, false
}

func applyRlimits(limits runplan.Limits) error {
	if limits.CPUTimeSec > 0 {
		seconds := uint64(limits.CPUTimeSec)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		bytes := uint64(limits.OutputMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackMB > 0 {
		bytes := uint64(limits.StackMB * 1024 * 1024)
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: bytes, Max: bytes}); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if limits.Processes > 0 {
		val := uint64(limits.Processes)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}
