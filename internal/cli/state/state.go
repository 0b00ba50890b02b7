package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionState remembers the last program started from the CLI so that
// follow-up commands can omit pid.
type SessionState struct {
	LastPID   *int      `json:"last_pid,omitempty"`
	LastFile  string    `json:"last_file,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Remember records a freshly started program.
func (s *SessionState) Remember(pid int, file string, at time.Time) {
	s.LastPID = &pid
	s.LastFile = file
	s.StartedAt = at
}

// Forget drops the remembered program if it is pid.
func (s *SessionState) Forget(pid int) {
	if s.LastPID != nil && *s.LastPID == pid {
		*s = SessionState{}
	}
}

func Load(path string) (SessionState, error) {
	var st SessionState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read session state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse session state failed: %w", err)
	}
	return st, nil
}

func Save(path string, st SessionState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session state failed: %w", err)
	}
	return nil
}
