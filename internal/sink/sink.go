// Package sink defines the durable relational sink the pipeline writes
// through: telemetry rows, command rows, and command status transitions.
// Implementations must make status updates idempotent compare-and-set style
// so concurrent writers (dispatch loop vs. device reducer) stay safe.
package sink

import (
	"context"

	"github.com/fleetwire/fleetwire/internal/command"
)

// Sink is the relational sink contract.
type Sink interface {
	// InsertTelemetry persists one telemetry row keyed by message id.
	InsertTelemetry(ctx context.Context, messageID string, body []byte) error
	// InsertCommand persists a new command row.
	InsertCommand(ctx context.Context, cmd command.Command) error
	// UpdateCommandStatus applies a status transition to the command row.
	// Illegal transitions (per command.Status.CanTransition) are ignored, so
	// re-applying Received to an already-Received command is a no-op.
	UpdateCommandStatus(ctx context.Context, commandID string, status command.Status) error
	// DeleteCommand removes a command row. Used only to compensate a failed
	// enqueue so an aborted enqueue leaves no trace in the sink.
	DeleteCommand(ctx context.Context, commandID string) error
	// GetCommand loads a command row by id. Returns ErrCommandNotFound when
	// no row exists.
	GetCommand(ctx context.Context, commandID string) (command.Command, error)
	// Close releases the underlying connection resources.
	Close() error
}
