package reducer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/log"
)

func testLogger() log.Logger {
	return log.NewLogger(log.WithOutput(log.NullOutput{}))
}

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRegistry(t *testing.T) (*Registry, *sink.Memory) {
	t.Helper()
	mem := sink.NewMemory()
	return NewRegistry(openDB(t, t.TempDir()), mem, "ns", testLogger(), nil), mem
}

func TestDispatchRequiresDeviceID(t *testing.T) {
	g, _ := newTestRegistry(t)
	err := g.Dispatch(context.Background(), telemetry.Event{MessageID: "m1"})
	if !errors.Is(err, ErrMissingDeviceID) {
		t.Fatalf("dispatch = %v, want ErrMissingDeviceID", err)
	}
}

func TestFirstEventInitializesConnectedState(t *testing.T) {
	g, _ := newTestRegistry(t)
	ev := telemetry.Event{DeviceID: "V1", MessageID: "m1", EnqueuedMs: 42}
	if err := g.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	r, ok := g.Get("V1")
	if !ok {
		t.Fatal("reducer not registered")
	}
	st := r.State()
	if st.ConnectionStatus != ConnectionStatusConnected {
		t.Fatalf("connection status = %q, want %q", st.ConnectionStatus, ConnectionStatusConnected)
	}
	if st.LastSeenMs != 42 || st.EventCount != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestAckMarksCommandReceived(t *testing.T) {
	g, mem := newTestRegistry(t)
	ctx := context.Background()
	cmd := command.Command{ID: "c1", DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
	if err := mem.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mem.UpdateCommandStatus(ctx, "c1", command.StatusSent); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	ev := telemetry.Event{DeviceID: "V1", MessageID: "m1", CorrelationID: "c1", Body: []byte("ack")}
	if err := g.Dispatch(ctx, ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got, err := mem.GetCommand(ctx, "c1")
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if got.Status != command.StatusReceived {
		t.Fatalf("status = %v, want Received", got.Status)
	}
	r, _ := g.Get("V1")
	if st := r.State(); st.LastCommandID != "c1" {
		t.Fatalf("last command id = %q, want c1", st.LastCommandID)
	}
}

func TestAckBeforeSentMarksReceived(t *testing.T) {
	g, mem := newTestRegistry(t)
	ctx := context.Background()
	cmd := command.Command{ID: "c1", DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
	if err := mem.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// ack arrives while the command is still Queued, e.g. the dispatch
	// loop's Sent update failed or lost the race
	ev := telemetry.Event{DeviceID: "V1", MessageID: "m1", CorrelationID: "c1", Body: []byte("ack")}
	if err := g.Dispatch(ctx, ev); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	got, err := mem.GetCommand(ctx, "c1")
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if got.Status != command.StatusReceived {
		t.Fatalf("status = %v, want Received", got.Status)
	}

	// the late Sent update must not take Received back
	if err := mem.UpdateCommandStatus(ctx, "c1", command.StatusSent); err != nil {
		t.Fatalf("late sent: %v", err)
	}
	got, _ = mem.GetCommand(ctx, "c1")
	if got.Status != command.StatusReceived {
		t.Fatalf("status after late Sent = %v, want Received", got.Status)
	}
}

func TestDuplicateAckIsIdempotent(t *testing.T) {
	g, mem := newTestRegistry(t)
	ctx := context.Background()
	cmd := command.Command{ID: "c1", DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
	if err := mem.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mem.UpdateCommandStatus(ctx, "c1", command.StatusSent); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	for i := 0; i < 3; i++ {
		ev := telemetry.Event{DeviceID: "V1", MessageID: fmt.Sprintf("m%d", i), CorrelationID: "c1"}
		if err := g.Dispatch(ctx, ev); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	got, _ := mem.GetCommand(ctx, "c1")
	if got.Status != command.StatusReceived {
		t.Fatalf("status after duplicate acks = %v, want Received", got.Status)
	}
}

func TestSinkFailureDoesNotFailEvent(t *testing.T) {
	g, mem := newTestRegistry(t)
	mem.FailTelemetry = true

	ev := telemetry.Event{DeviceID: "V1", MessageID: "m1", Body: []byte("x")}
	if err := g.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("dispatch = %v, want nil on sink failure", err)
	}
	r, _ := g.Get("V1")
	if st := r.State(); st.EventCount != 1 {
		t.Fatalf("event count = %d, want 1", st.EventCount)
	}
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	mem := sink.NewMemory()
	ctx := context.Background()

	// open directly (no t.Cleanup close): this test closes db itself before
	// reopening, and pebble panics on a second Close
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	g := NewRegistry(db, mem, "ns", testLogger(), nil)
	for i := 0; i < 3; i++ {
		ev := telemetry.Event{DeviceID: "V1", MessageID: fmt.Sprintf("m%d", i), EnqueuedMs: int64(100 + i)}
		if err := g.Dispatch(ctx, ev); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeNever})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	g2 := NewRegistry(db2, mem, "ns", testLogger(), nil)
	if err := g2.Dispatch(ctx, telemetry.Event{DeviceID: "V1", MessageID: "m9", EnqueuedMs: 200}); err != nil {
		t.Fatalf("dispatch after reopen: %v", err)
	}
	r, _ := g2.Get("V1")
	st := r.State()
	if st.EventCount != 4 {
		t.Fatalf("event count after reopen = %d, want 4", st.EventCount)
	}
	if st.LastSeenMs != 200 {
		t.Fatalf("last seen = %d, want 200", st.LastSeenMs)
	}
}

func TestPerDeviceSerialCrossDeviceParallel(t *testing.T) {
	g, _ := newTestRegistry(t)
	ctx := context.Background()

	const events = 50
	var wg sync.WaitGroup
	for _, dev := range []string{"V1", "V2", "V3", "V4"} {
		wg.Add(1)
		go func(dev string) {
			defer wg.Done()
			for i := 0; i < events; i++ {
				ev := telemetry.Event{DeviceID: dev, MessageID: fmt.Sprintf("%s-%d", dev, i)}
				if err := g.Dispatch(ctx, ev); err != nil {
					t.Errorf("dispatch %s: %v", dev, err)
					return
				}
			}
		}(dev)
	}
	wg.Wait()

	if g.Len() != 4 {
		t.Fatalf("reducers = %d, want 4", g.Len())
	}
	for _, dev := range []string{"V1", "V2", "V3", "V4"} {
		r, _ := g.Get(dev)
		if st := r.State(); st.EventCount != events {
			t.Fatalf("%s event count = %d, want %d", dev, st.EventCount, events)
		}
	}
}
