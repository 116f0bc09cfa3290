package consumer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fleetwire/fleetwire/internal/lease"
	"github.com/fleetwire/fleetwire/internal/metrics"
	"github.com/fleetwire/fleetwire/internal/stream"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/log"
)

// State is the consumer lifecycle phase.
type State int32

const (
	StateOpening State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	defaultCheckpointInterval = 5 * time.Minute
	defaultBatchSize          = 256
	defaultPollTimeout        = time.Second
)

// Dispatcher routes one event to its device reducer.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev telemetry.Event) error
}

// Options tunes a partition consumer.
type Options struct {
	// Group is the consumer group name the cursor is stored under.
	Group string
	// CheckpointInterval is how often the cursor is persisted. Zero means
	// five minutes.
	CheckpointInterval time.Duration
	// Filter is an optional CEL expression; events it rejects are dropped
	// before dispatch.
	Filter string
	// BatchSize caps events pulled per iteration. Zero means 256.
	BatchSize int
	// PollTimeout bounds the wait for new appends when caught up. Zero
	// means one second.
	PollTimeout time.Duration
}

// Consumer owns one partition's cursor: it pulls batches from the partition,
// dispatches each event in order, and checkpoints the watermark through the
// lease store. Exactly one consumer runs per partition.
type Consumer struct {
	part       *stream.Partition
	cursors    *lease.Store
	dispatcher Dispatcher
	logger     log.Logger
	pipeline   *metrics.Pipeline
	filter     celFilter

	namespace  string
	streamName string
	opts       Options

	state atomic.Int32

	// watermark is the highest dispatched sequence; checkpointed is the
	// last sequence successfully saved. Both touched only by Run.
	watermark    uint64
	checkpointed uint64
}

// New builds a consumer for one partition. pipeline may be nil. Returns an
// error when opts.Filter does not compile.
func New(part *stream.Partition, cursors *lease.Store, d Dispatcher, namespace, streamName string, opts Options, logger log.Logger, pipeline *metrics.Pipeline) (*Consumer, error) {
	if opts.Group == "" {
		opts.Group = "default"
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = defaultCheckpointInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("compile ingest filter: %w", err)
	}
	c := &Consumer{
		part:       part,
		cursors:    cursors,
		dispatcher: d,
		logger: logger.WithComponent("consumer").With(
			log.Str("group", opts.Group),
			log.Uint64("partition", uint64(part.Index()))),
		pipeline:   pipeline,
		filter:     filter,
		namespace:  namespace,
		streamName: streamName,
		opts:       opts,
	}
	c.state.Store(int32(StateOpening))
	return c, nil
}

// State returns the current lifecycle phase.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Watermark returns the highest dispatched sequence. Zero means nothing has
// been dispatched yet.
func (c *Consumer) Watermark() uint64 { return atomic.LoadUint64(&c.watermark) }

// Run consumes the partition until ctx is cancelled. The stored cursor wins
// over the zero default, so a restarted consumer resumes where the last
// checkpoint left off. A final checkpoint runs during close.
func (c *Consumer) Run(ctx context.Context) error {
	cur, err := c.cursors.Load(c.namespace, c.opts.Group, c.streamName, c.part.Index())
	if err != nil {
		c.state.Store(int32(StateClosed))
		return fmt.Errorf("load cursor: %w", err)
	}
	atomic.StoreUint64(&c.watermark, cur.Sequence)
	c.checkpointed = cur.Sequence
	c.logger.Info("consumer opened", log.Uint64("resume_seq", cur.Sequence))

	c.state.Store(int32(StateRunning))
	ticker := time.NewTicker(c.opts.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return ctx.Err()
		case <-ticker.C:
			c.checkpoint()
		default:
		}
		c.pump(ctx)
	}
}

// pump pulls one batch and dispatches it in order. All errors are logged and
// swallowed so a bad batch cannot halt the partition.
func (c *Consumer) pump(ctx context.Context) {
	start := atomic.LoadUint64(&c.watermark) + 1
	items, err := c.part.ReadFrom(start, c.opts.BatchSize)
	if err != nil {
		c.logger.Error("partition read failed", log.Uint64("start_seq", start), log.Err(err))
		c.part.WaitForAppend(c.opts.PollTimeout)
		return
	}
	if len(items) == 0 {
		c.part.WaitForAppend(c.opts.PollTimeout)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if !c.filter.Eval(item.Event) {
			c.pipeline.IncEventsFiltered()
			atomic.StoreUint64(&c.watermark, item.Seq)
			continue
		}
		if err := c.dispatcher.Dispatch(ctx, item.Event); err != nil {
			// Rejected events are terminal; redelivering them would
			// fail the same way.
			c.pipeline.IncEventsSkipped()
			c.logger.Warn("event rejected",
				log.Uint64("seq", item.Seq),
				log.Str("message_id", item.Event.MessageID),
				log.Err(err))
		} else {
			c.pipeline.IncEventsProcessed()
		}
		atomic.StoreUint64(&c.watermark, item.Seq)
	}
}

// checkpoint persists the watermark. Failures are logged and retried on the
// next tick; the monotonic store ignores stale saves.
func (c *Consumer) checkpoint() {
	wm := atomic.LoadUint64(&c.watermark)
	if wm == c.checkpointed {
		return
	}
	cur := lease.Cursor{
		Namespace: c.namespace,
		Group:     c.opts.Group,
		Stream:    c.streamName,
		Partition: c.part.Index(),
		Sequence:  wm,
	}
	if err := c.cursors.Save(cur); err != nil {
		c.pipeline.IncCheckpointFailures()
		c.logger.Error("checkpoint failed", log.Uint64("seq", wm), log.Err(err))
		return
	}
	c.checkpointed = wm
	c.pipeline.IncCheckpointSaves()
	c.logger.Debug("checkpoint saved", log.Uint64("seq", wm))
}

// close runs the final checkpoint so a clean shutdown loses no progress.
func (c *Consumer) close() {
	c.state.Store(int32(StateClosing))
	c.checkpoint()
	c.state.Store(int32(StateClosed))
	c.logger.Info("consumer closed", log.Uint64("seq", atomic.LoadUint64(&c.watermark)))
}
