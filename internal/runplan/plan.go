// Package runplan is the contract between the process manager and the
// runner-init helper: what to compile, what to exec afterwards and under
// which limits.
package runplan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// FD is the descriptor on which the helper receives its plan. Descriptors 0-2
// belong to the user program.
const FD = 3

// Sentinel lines written to the output pipe when the build step fails, so a
// compile failure is distinguishable from a program that printed nothing.
const (
	CompileErrorLine   = "Compile failed (compile error)"
	CompileAbortedLine = "Compile failed (unknown reason)"
)

// Limits are rlimits applied to the program after a successful build.
// Zero means unlimited.
type Limits struct {
	CPUTimeSec int64 `json:"cpu_time_sec,omitempty" yaml:"cpuTimeSec"`
	StackMB    int64 `json:"stack_mb,omitempty" yaml:"stackMB"`
	OutputMB   int64 `json:"output_mb,omitempty" yaml:"outputMB"`
	Processes  int64 `json:"processes,omitempty" yaml:"processes"`
}

// Plan describes one compile-then-run pipeline.
type Plan struct {
	WorkDir string   `json:"work_dir,omitempty"`
	Compile []string `json:"compile"`
	Run     []string `json:"run"`
	Env     []string `json:"env,omitempty"`
	Limits  Limits   `json:"limits"`
	// EchoCompile prints the compiler command line before building.
	EchoCompile bool `json:"echo_compile,omitempty"`
	// SeccompProfile is a JSON profile loaded right before exec.
	SeccompProfile string `json:"seccomp_profile,omitempty"`
}

// Validate checks that both argv vectors are usable.
func (p Plan) Validate() error {
	if len(p.Compile) == 0 || p.Compile[0] == "" {
		return errors.New("compile command is required")
	}
	if len(p.Run) == 0 || p.Run[0] == "" {
		return errors.New("run command is required")
	}
	return nil
}

// Encode writes p as a single JSON document.
func Encode(w io.Writer, p Plan) error {
	if err := json.NewEncoder(w).Encode(p); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return nil
}

// Decode reads a plan written by Encode and validates it.
func Decode(r io.Reader) (Plan, error) {
	var p Plan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// DefaultEnv is used when a plan carries no environment.
func DefaultEnv() []string {
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}
