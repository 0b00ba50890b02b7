package procmgr

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ArgvMode selects how option and argument strings are split into argv.
type ArgvMode string

const (
	// ArgvSpace splits on single spaces with no quoting.
	ArgvSpace ArgvMode = "space"
	// ArgvShell splits with POSIX shell quoting rules.
	ArgvShell ArgvMode = "shell"
)

// SplitArgs splits s on single spaces. Quotes and backslashes have no special
// meaning. Runs of spaces do not produce empty entries, and leading or
// trailing spaces are ignored, so "" and "   " both yield no arguments.
func SplitArgs(s string) []string {
	parts := strings.Split(s, " ")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Split tokenizes s according to the mode.
func (m ArgvMode) Split(s string) ([]string, error) {
	switch m {
	case ArgvShell:
		args, err := shlex.Split(s)
		if err != nil {
			return nil, fmt.Errorf("split arguments: %w", err)
		}
		if len(args) == 0 {
			return nil, nil
		}
		return args, nil
	case ArgvSpace, "":
		return SplitArgs(s), nil
	default:
		return nil, fmt.Errorf("unknown argv mode %q", string(m))
	}
}
