package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetwire/fleetwire/internal/command"
)

func TestReceivedTransitionIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	cmd := command.Command{ID: "c1", DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
	if err := m.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.UpdateCommandStatus(ctx, "c1", command.StatusSent); err != nil {
		t.Fatalf("sent: %v", err)
	}
	if err := m.UpdateCommandStatus(ctx, "c1", command.StatusReceived); err != nil {
		t.Fatalf("received: %v", err)
	}
	// second Received is a no-op, not an error
	if err := m.UpdateCommandStatus(ctx, "c1", command.StatusReceived); err != nil {
		t.Fatalf("repeat received: %v", err)
	}
	got, err := m.GetCommand(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != command.StatusReceived {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestAckBeforeSentSticks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	cmd := command.Command{ID: "c5", DeviceID: "V1", Type: command.TypeDoorLock, Status: command.StatusQueued, CreatedAt: time.Now()}
	if err := m.InsertCommand(ctx, cmd); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// the ack arrives while the row is still Queued
	if err := m.UpdateCommandStatus(ctx, "c5", command.StatusReceived); err != nil {
		t.Fatalf("received: %v", err)
	}
	// the dispatch loop's Sent update lands afterwards and must lose
	if err := m.UpdateCommandStatus(ctx, "c5", command.StatusSent); err != nil {
		t.Fatalf("late sent: %v", err)
	}
	got, err := m.GetCommand(ctx, "c5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != command.StatusReceived {
		t.Fatalf("status = %s, want %s", got.Status, command.StatusReceived)
	}
}

func TestIllegalTransitionIgnored(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.InsertCommand(ctx, command.Command{ID: "c2", Status: command.StatusError}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.UpdateCommandStatus(ctx, "c2", command.StatusSent); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := m.GetCommand(ctx, "c2")
	if got.Status != command.StatusError {
		t.Fatalf("terminal status overwritten: %s", got.Status)
	}
}

func TestGetCommandNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetCommand(context.Background(), "nope"); !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("want ErrCommandNotFound, got %v", err)
	}
}

func TestDeleteCommandCompensation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.InsertCommand(ctx, command.Command{ID: "c3", Status: command.StatusQueued})
	if err := m.DeleteCommand(ctx, "c3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetCommand(ctx, "c3"); !errors.Is(err, ErrCommandNotFound) {
		t.Fatalf("row survived compensation: %v", err)
	}
}
