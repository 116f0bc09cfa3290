package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetwire/fleetwire/internal/cmdqueue"
	cfgpkg "github.com/fleetwire/fleetwire/internal/config"
	"github.com/fleetwire/fleetwire/internal/lease"
	"github.com/fleetwire/fleetwire/internal/metrics"
	"github.com/fleetwire/fleetwire/internal/reducer"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/stream"
	"github.com/fleetwire/fleetwire/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// Sink overrides the config-selected sink. Tests use this to inject
	// the in-memory sink with failure flags.
	Sink sink.Sink
}

// Runtime wires storage, the telemetry stream, the command queue, and the
// per-device reducers for a single-node instance.
type Runtime struct {
	config   cfgpkg.Config
	logger   log.Logger
	db       *pebblestore.DB
	sink     sink.Sink
	stream   *stream.Stream
	cursors  *lease.Store
	queue    *cmdqueue.Queue
	reducers *reducer.Registry
	pipeline *metrics.Pipeline
	registry *prometheus.Registry
}

// Open initializes storage and wires the pipeline components.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(log.WithOutput(log.NullOutput{}))
	}

	registry := prometheus.NewRegistry()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         pebblestore.ParseFsyncMode(cfg.Storage.FsyncMode),
		FsyncInterval: time.Duration(cfg.Storage.FsyncIntervalMs) * time.Millisecond,
		Metrics:       metrics.NewStorage(registry),
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	snk := opts.Sink
	if snk == nil {
		if cfg.Sink.PostgresDSN != "" {
			snk, err = sink.OpenPostgres(cfg.Sink.PostgresDSN)
			if err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("open postgres sink: %w", err)
			}
		} else {
			logger.Warn("no postgres dsn configured, using in-memory sink")
			snk = sink.NewMemory()
		}
	}

	st, err := stream.Open(db, cfg.Namespace, cfg.Stream.Name, cfg.Stream.Partitions)
	if err != nil {
		_ = snk.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	queue, err := cmdqueue.Open(db, snk, cfg.Namespace, cfg.Queue.Name)
	if err != nil {
		_ = snk.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open command queue: %w", err)
	}

	pipeline := metrics.NewPipeline(registry)
	rt := &Runtime{
		config:   cfg,
		logger:   logger,
		db:       db,
		sink:     snk,
		stream:   st,
		cursors:  lease.NewStore(db),
		queue:    queue,
		reducers: reducer.NewRegistry(db, snk, cfg.Namespace, logger, pipeline),
		pipeline: pipeline,
		registry: registry,
	}
	return rt, nil
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	var errs []error
	if r.sink != nil {
		errs = append(errs, r.sink.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth performs a simple health check on the embedded store.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return ctx.Err()
}

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// DB exposes the underlying store for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Sink returns the relational sink.
func (r *Runtime) Sink() sink.Sink { return r.sink }

// Stream returns the telemetry stream.
func (r *Runtime) Stream() *stream.Stream { return r.stream }

// Cursors returns the lease store holding consumer checkpoints.
func (r *Runtime) Cursors() *lease.Store { return r.cursors }

// Queue returns the durable command queue.
func (r *Runtime) Queue() *cmdqueue.Queue { return r.queue }

// Reducers returns the device reducer registry.
func (r *Runtime) Reducers() *reducer.Registry { return r.reducers }

// Pipeline returns the pipeline counters.
func (r *Runtime) Pipeline() *metrics.Pipeline { return r.pipeline }

// MetricsRegistry returns the prometheus registry backing /metrics.
func (r *Runtime) MetricsRegistry() *prometheus.Registry { return r.registry }
