package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetwire/fleetwire/internal/command"
)

// ErrCommandNotFound is returned when no command row matches the id.
var ErrCommandNotFound = errors.New("sink: command not found")

// Memory is an in-process Sink for tests and single-node development runs.
// It honors the same idempotent transition rules as the Postgres sink.
type Memory struct {
	mu        sync.Mutex
	telemetry map[string][]byte
	commands  map[string]command.Command

	// FailTelemetry and FailCommands force errors for failure-path tests.
	FailTelemetry bool
	FailCommands  bool
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		telemetry: make(map[string][]byte),
		commands:  make(map[string]command.Command),
	}
}

// InsertTelemetry implements Sink.
func (m *Memory) InsertTelemetry(_ context.Context, messageID string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTelemetry {
		return errors.New("sink: telemetry insert failed")
	}
	m.telemetry[messageID] = append([]byte(nil), body...)
	return nil
}

// InsertCommand implements Sink.
func (m *Memory) InsertCommand(_ context.Context, cmd command.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommands {
		return errors.New("sink: command insert failed")
	}
	m.commands[cmd.ID] = cmd
	return nil
}

// UpdateCommandStatus implements Sink. Transitions that are not legal from
// the current status are dropped silently, which makes repeated Received
// updates no-ops.
func (m *Memory) UpdateCommandStatus(_ context.Context, commandID string, status command.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommands {
		return errors.New("sink: command update failed")
	}
	cmd, ok := m.commands[commandID]
	if !ok {
		return nil
	}
	if !cmd.Status.CanTransition(status) {
		return nil
	}
	cmd.Status = status
	m.commands[commandID] = cmd
	return nil
}

// GetCommand implements Sink.
func (m *Memory) GetCommand(_ context.Context, commandID string) (command.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.commands[commandID]
	if !ok {
		return command.Command{}, ErrCommandNotFound
	}
	return cmd, nil
}

// Telemetry returns the stored body for a message id, for tests.
func (m *Memory) Telemetry(messageID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.telemetry[messageID]
	return b, ok
}

// DeleteCommand implements Sink.
func (m *Memory) DeleteCommand(_ context.Context, commandID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commands, commandID)
	return nil
}

// Close implements Sink.
func (m *Memory) Close() error { return nil }
