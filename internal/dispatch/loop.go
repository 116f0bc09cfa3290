package dispatch

import (
	"context"
	"time"

	"github.com/fleetwire/fleetwire/internal/cmdqueue"
	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/metrics"
	"github.com/fleetwire/fleetwire/internal/sink"
	"github.com/fleetwire/fleetwire/pkg/log"
)

const defaultIdleBackoff = time.Second

// Loop drains the command queue with a single worker. Commands are delivered
// at most once: a send failure records Error and the command is removed, it
// is never requeued.
type Loop struct {
	queue    *cmdqueue.Queue
	sink     sink.Sink
	endpoint Endpoint
	logger   log.Logger
	pipeline *metrics.Pipeline
	idle     time.Duration
}

// NewLoop builds a dispatch loop. idle controls the backoff when the queue is
// empty; zero means one second. pipeline may be nil.
func NewLoop(q *cmdqueue.Queue, s sink.Sink, ep Endpoint, logger log.Logger, pipeline *metrics.Pipeline, idle time.Duration) *Loop {
	if idle <= 0 {
		idle = defaultIdleBackoff
	}
	return &Loop{
		queue:    q,
		sink:     s,
		endpoint: ep,
		logger:   logger.WithComponent("dispatch"),
		pipeline: pipeline,
		idle:     idle,
	}
}

// Run processes queued commands until ctx is cancelled. It returns ctx.Err()
// on cancellation; any in-flight command is finished first.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, seq, ok, err := l.queue.Head()
		if err != nil {
			// Corrupt head entry. Drop it so the queue keeps moving, then
			// back off in case the store itself is failing.
			l.logger.Error("dropping unreadable queue entry", log.Uint64("seq", seq), log.Err(err))
			if cerr := l.queue.Commit(ctx, seq); cerr != nil {
				l.logger.Error("failed to remove unreadable queue entry", log.Uint64("seq", seq), log.Err(cerr))
			}
			if !l.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		if !ok {
			if !l.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}
		l.dispatchOne(ctx, cmd, seq)
	}
}

// dispatchOne sends one command and settles its status. The queue entry is
// committed whether the send succeeded or not.
func (l *Loop) dispatchOne(ctx context.Context, cmd command.Command, seq uint64) {
	status := command.StatusSent
	sendErr := l.endpoint.Send(ctx, cmd.DeviceID, cmd.ID)
	if sendErr != nil {
		status = command.StatusError
		l.pipeline.IncCommandsErrored()
		l.logger.Warn("command send failed",
			log.Str("command_id", cmd.ID),
			log.Str("device_id", cmd.DeviceID),
			log.Err(sendErr))
	} else {
		l.pipeline.IncCommandsSent()
		l.logger.Debug("command sent",
			log.Str("command_id", cmd.ID),
			log.Str("device_id", cmd.DeviceID))
	}

	// Status tracking is best effort. A failed update must not block the
	// queue or resend the command.
	if err := l.sink.UpdateCommandStatus(ctx, cmd.ID, status); err != nil {
		l.logger.Error("command status update failed",
			log.Str("command_id", cmd.ID),
			log.Str("status", string(status)),
			log.Err(err))
	}

	if err := l.queue.Commit(ctx, seq); err != nil {
		// The entry stays at the head and will be retried; the guarded
		// status transitions keep the redelivery harmless.
		l.logger.Error("queue commit failed", log.Uint64("seq", seq), log.Err(err))
	}
}

// sleep waits for the idle backoff or cancellation. It reports false when ctx
// ended.
func (l *Loop) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
