package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/fleetwire/fleetwire/internal/config"
	"github.com/fleetwire/fleetwire/internal/sink"
	"github.com/fleetwire/fleetwire/internal/telemetry"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.FsyncMode = "never"
	cfg.Stream.Partitions = 2
	return cfg
}

func TestOpenWiresEverything(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t), Sink: sink.NewMemory()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	if rt.Stream().Partitions() != 2 {
		t.Fatalf("partitions = %d, want 2", rt.Stream().Partitions())
	}
	if rt.Queue() == nil || rt.Cursors() == nil || rt.Reducers() == nil || rt.Pipeline() == nil {
		t.Fatal("missing component")
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.Partitions = 0
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestIngestReachesReducer(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t), Sink: sink.NewMemory()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	ev := telemetry.Event{DeviceID: "V1", MessageID: "m1", Body: []byte("{}")}
	part, seq, err := rt.Stream().Ingest(ctx, ev)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if seq != 1 {
		t.Fatalf("seq = %d, want 1", seq)
	}

	p, err := rt.Stream().Partition(part)
	if err != nil {
		t.Fatalf("partition: %v", err)
	}
	items, err := p.ReadFrom(1, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("read: items=%d err=%v", len(items), err)
	}
	if err := rt.Reducers().Dispatch(ctx, items[0].Event); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r, ok := rt.Reducers().Get("V1")
	if !ok || r.State().EventCount != 1 {
		t.Fatalf("reducer state missing")
	}
}
