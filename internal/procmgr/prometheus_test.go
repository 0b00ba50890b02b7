package procmgr

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusMetricsCollector(t *testing.T) {
	pmc := NewPrometheusMetricsCollector("")

	pmc.SpawnResult("ok", 3*time.Millisecond)
	pmc.SpawnResult("ok", time.Millisecond)
	pmc.SpawnResult("exhausted", 0)
	pmc.Reaped(ReapStopped, 2*time.Second)
	pmc.ActiveSlots(4)
	pmc.InputBytes(6)
	pmc.OutputBytes(10)
	pmc.OutputBytes(5)

	if got := testutil.ToFloat64(pmc.spawns.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok spawns = %v", got)
	}
	if got := testutil.ToFloat64(pmc.spawns.WithLabelValues("exhausted")); got != 1 {
		t.Fatalf("exhausted spawns = %v", got)
	}
	if got := testutil.ToFloat64(pmc.reaps.WithLabelValues(ReapStopped)); got != 1 {
		t.Fatalf("reaps = %v", got)
	}
	if got := testutil.ToFloat64(pmc.active); got != 4 {
		t.Fatalf("active = %v", got)
	}
	if got := testutil.ToFloat64(pmc.outputBytes); got != 15 {
		t.Fatalf("output bytes = %v", got)
	}

	expected := `
# HELP gdbc_process_input_bytes_total Bytes written to child stdin
# TYPE gdbc_process_input_bytes_total counter
gdbc_process_input_bytes_total 6
`
	if err := testutil.GatherAndCompare(pmc.Registry(), strings.NewReader(expected), "gdbc_process_input_bytes_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestNoopMetricsCollector(t *testing.T) {
	mc := NewNoopMetricsCollector()
	mc.SpawnResult("ok", time.Second)
	mc.Reaped(ReapExited, time.Second)
	mc.ActiveSlots(1)
	mc.InputBytes(1)
	mc.OutputBytes(1)
}
