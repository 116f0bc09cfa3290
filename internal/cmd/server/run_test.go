package serverrun

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cfgpkg "github.com/fleetwire/fleetwire/internal/config"
	"github.com/fleetwire/fleetwire/internal/runtime"
	"github.com/fleetwire/fleetwire/internal/sink"
	"github.com/fleetwire/fleetwire/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.FsyncMode = "never"
	cfg.Stream.Partitions = 2
	cfg.Stream.CheckpointIntervalSec = 1
	cfg.Queue.DispatchIdleMs = 10
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Log.Level = "error"
	return cfg
}

// Run should start every component and come down cleanly on cancellation.
func TestRunStartsAndStops(t *testing.T) {
	if testing.Short() {
		t.Skip("starts real servers")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := Run(ctx, Options{Config: testConfig(t)})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
}

func TestIngestHandlerParsesEnvelope(t *testing.T) {
	cfg := testConfig(t)
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: log.NewLogger(log.WithOutput(log.NullOutput{})), Sink: sink.NewMemory()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	h := ingestHandler(rt.Stream(), log.NewLogger(log.WithOutput(log.NullOutput{})))
	frame, _ := json.Marshal(map[string]any{
		"messageId":     "m1",
		"correlationId": "c1",
		"body":          map[string]int{"rpm": 900},
	})
	if err := h.HandleDeviceMessage(context.Background(), "V1", frame); err != nil {
		t.Fatalf("handle: %v", err)
	}

	part := rt.Stream().PartitionFor("V1")
	p, _ := rt.Stream().Partition(part)
	items, err := p.ReadFrom(1, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("read: %d %v", len(items), err)
	}
	ev := items[0].Event
	if ev.MessageID != "m1" || ev.CorrelationID != "c1" || ev.DeviceID != "V1" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestIngestHandlerAcceptsOpaqueFrames(t *testing.T) {
	cfg := testConfig(t)
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: log.NewLogger(log.WithOutput(log.NullOutput{})), Sink: sink.NewMemory()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	h := ingestHandler(rt.Stream(), log.NewLogger(log.WithOutput(log.NullOutput{})))
	if err := h.HandleDeviceMessage(context.Background(), "V2", []byte("not json at all")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	part := rt.Stream().PartitionFor("V2")
	p, _ := rt.Stream().Partition(part)
	items, _ := p.ReadFrom(1, 10)
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	if string(items[0].Event.Body) != "not json at all" {
		t.Fatalf("body = %q", items[0].Event.Body)
	}
	if items[0].Event.MessageID == "" {
		t.Fatal("message id should be generated")
	}
}
