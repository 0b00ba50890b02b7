package procmgr

import (
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Slot states. Only free and running are visible to callers; starting and
// reaping are held by the single goroutine that won the transition.
const (
	slotFree int32 = iota
	slotStarting
	slotRunning
	slotReaping
)

func stateName(s int32) string {
	switch s {
	case slotFree:
		return "free"
	case slotStarting:
		return "starting"
	case slotRunning:
		return "running"
	case slotReaping:
		return "reaping"
	}
	return "unknown"
}

// slot is one entry of the process table. Fields other than state and
// generation are written only by the goroutine owning a starting or reaping
// transition, under rw's write lock. Pipe I/O holds the read lock so a reap
// never closes a descriptor in use.
type slot struct {
	state      atomic.Int32
	generation atomic.Uint64

	rw        sync.RWMutex
	pid       int
	cmd       *exec.Cmd
	stdin     *pipeEnd
	stdout    *pipeEnd
	startedAt time.Time
	debug     bool
	binary    string

	// outMu serializes output reads; pending holds an incomplete trailing
	// UTF-8 sequence carried into the next read.
	outMu   sync.Mutex
	pending []byte
}

func (s *slot) running() bool {
	return s.state.Load() == slotRunning
}

// reset clears the process fields. Caller holds rw.Lock.
func (s *slot) reset() {
	s.pid = 0
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil
	s.startedAt = time.Time{}
	s.debug = false
	s.binary = ""
	s.pending = nil
}

// splitIncompleteRune splits b before a trailing UTF-8 sequence that is cut
// short. Invalid bytes count as complete so binary output is never held.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	limit := len(b) - utf8.UTFMax
	for i := len(b) - 1; i >= 0 && i > limit; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return b, nil
		}
		return b[:i], b[i:]
	}
	return b, nil
}

// SlotInfo is a read-only view of one slot.
type SlotInfo struct {
	Index      int       `json:"index"`
	State      string    `json:"state"`
	PID        int       `json:"os_pid,omitempty"`
	Generation uint64    `json:"generation"`
	Debug      bool      `json:"debug,omitempty"`
	Binary     string    `json:"binary,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}
