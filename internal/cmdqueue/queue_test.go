package cmdqueue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
)

func newTestQueue(t *testing.T) (*Queue, *sink.Memory) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mem := sink.NewMemory()
	q, err := Open(db, mem, "ns", "commands")
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return q, mem
}

func mkCmd(id string) command.Command {
	return command.Command{ID: id, DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
}

func TestFIFOOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := q.Enqueue(ctx, mkCmd(fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 1; i <= 5; i++ {
		cmd, seq, ok, err := q.Head()
		if err != nil || !ok {
			t.Fatalf("head %d: ok=%v err=%v", i, ok, err)
		}
		if want := fmt.Sprintf("c%d", i); cmd.ID != want {
			t.Fatalf("head %d = %s want %s", i, cmd.ID, want)
		}
		if err := q.Commit(ctx, seq); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if _, _, ok, _ := q.Head(); ok {
		t.Fatalf("queue should be empty")
	}
}

func TestEnqueueInsertsSinkRowAsQueued(t *testing.T) {
	q, mem := newTestQueue(t)
	ctx := context.Background()
	if err := q.Enqueue(ctx, mkCmd("c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	row, err := mem.GetCommand(ctx, "c1")
	if err != nil {
		t.Fatalf("sink row missing: %v", err)
	}
	if row.Status != command.StatusQueued {
		t.Fatalf("status = %s", row.Status)
	}
}

func TestEnqueueAllOrNothingOnSinkFailure(t *testing.T) {
	q, mem := newTestQueue(t)
	ctx := context.Background()
	mem.FailCommands = true
	if err := q.Enqueue(ctx, mkCmd("c1")); err == nil {
		t.Fatalf("expected enqueue failure")
	}
	mem.FailCommands = false
	if _, _, ok, _ := q.Head(); ok {
		t.Fatalf("failed enqueue left an entry in the queue")
	}
	if _, err := mem.GetCommand(ctx, "c1"); !errors.Is(err, sink.ErrCommandNotFound) {
		t.Fatalf("failed enqueue left a sink row: %v", err)
	}
}

func TestHeadDoesNotRemove(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	if err := q.Enqueue(ctx, mkCmd("c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < 3; i++ {
		cmd, _, ok, err := q.Head()
		if err != nil || !ok || cmd.ID != "c1" {
			t.Fatalf("peek %d: %v %v %v", i, cmd.ID, ok, err)
		}
	}
	if n, _ := q.Len(); n != 1 {
		t.Fatalf("peek consumed the entry: len=%d", n)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	mem := sink.NewMemory()
	q, _ := Open(db, mem, "ns", "commands")
	ctx := context.Background()
	if err := q.Enqueue(ctx, mkCmd("c1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, mkCmd("c2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	_ = db.Close()

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	q2, _ := Open(db2, mem, "ns", "commands")

	cmd, seq, ok, err := q2.Head()
	if err != nil || !ok || cmd.ID != "c1" {
		t.Fatalf("head after reopen: %v %v %v", cmd.ID, ok, err)
	}
	if err := q2.Commit(context.Background(), seq); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// lastSeq restored: a new enqueue must sort after the survivor
	if err := q2.Enqueue(context.Background(), mkCmd("c3")); err != nil {
		t.Fatalf("enqueue after reopen: %v", err)
	}
	cmd, _, _, _ = q2.Head()
	if cmd.ID != "c2" {
		t.Fatalf("FIFO broken after reopen: head=%s", cmd.ID)
	}
}
