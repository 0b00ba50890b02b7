package runplan

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Seccomp actions understood by the helper.
const (
	ActionAllow       = "SCMP_ACT_ALLOW"
	ActionKillProcess = "SCMP_ACT_KILL_PROCESS"
	ActionErrno       = "SCMP_ACT_ERRNO"
)

// SeccompProfile is a default action plus per-syscall overrides, in the
// layout used by container runtimes.
type SeccompProfile struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []SeccompRule `json:"syscalls"`
}

// SeccompRule applies Action to every syscall in Names.
type SeccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

// NormalizeAction upper-cases action and folds SCMP_ACT_KILL into
// SCMP_ACT_KILL_PROCESS.
func NormalizeAction(action string) (string, error) {
	switch a := strings.ToUpper(strings.TrimSpace(action)); a {
	case ActionAllow, ActionKillProcess, ActionErrno:
		return a, nil
	case "SCMP_ACT_KILL":
		return ActionKillProcess, nil
	default:
		return "", fmt.Errorf("unsupported seccomp action: %s", action)
	}
}

// Validate normalizes every action in place.
func (p *SeccompProfile) Validate() error {
	action, err := NormalizeAction(p.DefaultAction)
	if err != nil {
		return err
	}
	p.DefaultAction = action
	for i := range p.Syscalls {
		rule := &p.Syscalls[i]
		if len(rule.Names) == 0 {
			return fmt.Errorf("seccomp rule %d has no syscalls", i)
		}
		if rule.Action, err = NormalizeAction(rule.Action); err != nil {
			return err
		}
	}
	return nil
}

// LoadSeccompProfile reads and validates a profile file.
func LoadSeccompProfile(path string) (SeccompProfile, error) {
	var p SeccompProfile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read seccomp profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse seccomp profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}
