package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.IncCommandsEnqueued()
	p.IncCommandsEnqueued()
	p.IncEventsProcessed()

	if got := testutil.ToFloat64(p.CommandsEnqueued); got != 2 {
		t.Fatalf("commands enqueued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.EventsProcessed); got != 1 {
		t.Fatalf("events processed = %v, want 1", got)
	}
}

func TestNilPipelineIsSafe(t *testing.T) {
	var p *Pipeline
	p.IncEventsProcessed()
	p.IncCommandsErrored()
	p.IncCheckpointSaves()
}

func TestStorageHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStorage(reg)

	s.ObserveWrite(time.Millisecond, 32)
	s.ObserveRead(time.Millisecond, 16)
	s.ObserveBatchCommit(2*time.Millisecond, 3, 128)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("metric families = %d, want 4", len(families))
	}
}
