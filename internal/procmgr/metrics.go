package procmgr

import "time"

// Reap reasons reported to the metrics collector.
const (
	ReapExited      = "exited"
	ReapStopped     = "stopped"
	ReapUnreachable = "unreachable"
	ReapShutdown    = "shutdown"
)

// MetricsCollector receives process lifecycle events.
type MetricsCollector interface {
	// SpawnResult records a spawn attempt and how long it took.
	SpawnResult(result string, duration time.Duration)

	// Reaped records a slot being reclaimed.
	Reaped(reason string, lifetime time.Duration)

	// ActiveSlots records the number of running slots.
	ActiveSlots(n int)

	// InputBytes and OutputBytes count bytes moved through the pipes.
	InputBytes(n int)
	OutputBytes(n int)
}

type noopMetricsCollector struct{}

func (noopMetricsCollector) SpawnResult(string, time.Duration) {}
func (noopMetricsCollector) Reaped(string, time.Duration)      {}
func (noopMetricsCollector) ActiveSlots(int)                   {}
func (noopMetricsCollector) InputBytes(int)                    {}
func (noopMetricsCollector) OutputBytes(int)                   {}

// NewNoopMetricsCollector returns a collector that drops everything.
func NewNoopMetricsCollector() MetricsCollector {
	return noopMetricsCollector{}
}
