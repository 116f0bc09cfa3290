// Package metrics exposes fleetwire's prometheus instrumentation: pipeline
// counters and the storage observation hook.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the counters the ingest and dispatch paths update. A nil
// *Pipeline is valid and records nothing, so tests can pass nil.
type Pipeline struct {
	EventsProcessed      prometheus.Counter
	EventsSkipped        prometheus.Counter
	EventsFiltered       prometheus.Counter
	TelemetryPersistFail prometheus.Counter
	CheckpointSaves      prometheus.Counter
	CheckpointFailures   prometheus.Counter
	CommandsEnqueued     prometheus.Counter
	CommandsSent         prometheus.Counter
	CommandsErrored      prometheus.Counter
	CommandsAcked        prometheus.Counter
}

// NewPipeline registers the pipeline counters on reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		EventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_events_processed_total",
			Help: "Telemetry events dispatched to a device reducer.",
		}),
		EventsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_events_skipped_total",
			Help: "Telemetry events dropped after a processing failure.",
		}),
		EventsFiltered: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_events_filtered_total",
			Help: "Telemetry events dropped by the ingest filter expression.",
		}),
		TelemetryPersistFail: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_telemetry_persist_failures_total",
			Help: "Telemetry rows lost to sink write failures.",
		}),
		CheckpointSaves: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_checkpoint_saves_total",
			Help: "Successful partition cursor checkpoints.",
		}),
		CheckpointFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_checkpoint_failures_total",
			Help: "Failed partition cursor checkpoints (retried next interval).",
		}),
		CommandsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_commands_enqueued_total",
			Help: "Commands accepted into the durable queue.",
		}),
		CommandsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_commands_sent_total",
			Help: "Commands handed off to the device endpoint.",
		}),
		CommandsErrored: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_commands_errored_total",
			Help: "Commands whose endpoint send failed.",
		}),
		CommandsAcked: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetwire_commands_acked_total",
			Help: "Commands acknowledged by device telemetry.",
		}),
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Nil-safe increment helpers.

func (p *Pipeline) IncEventsProcessed() {
	if p != nil {
		inc(p.EventsProcessed)
	}
}
func (p *Pipeline) IncEventsSkipped() {
	if p != nil {
		inc(p.EventsSkipped)
	}
}
func (p *Pipeline) IncEventsFiltered() {
	if p != nil {
		inc(p.EventsFiltered)
	}
}
func (p *Pipeline) IncTelemetryPersistFail() {
	if p != nil {
		inc(p.TelemetryPersistFail)
	}
}
func (p *Pipeline) IncCheckpointSaves() {
	if p != nil {
		inc(p.CheckpointSaves)
	}
}
func (p *Pipeline) IncCheckpointFailures() {
	if p != nil {
		inc(p.CheckpointFailures)
	}
}
func (p *Pipeline) IncCommandsEnqueued() {
	if p != nil {
		inc(p.CommandsEnqueued)
	}
}
func (p *Pipeline) IncCommandsSent() {
	if p != nil {
		inc(p.CommandsSent)
	}
}
func (p *Pipeline) IncCommandsErrored() {
	if p != nil {
		inc(p.CommandsErrored)
	}
}
func (p *Pipeline) IncCommandsAcked() {
	if p != nil {
		inc(p.CommandsAcked)
	}
}

// Storage implements pebblestore.MetricsHook with prometheus histograms.
type Storage struct {
	writeSeconds  prometheus.Histogram
	readSeconds   prometheus.Histogram
	commitSeconds prometheus.Histogram
	commitBytes   prometheus.Histogram
}

// NewStorage registers the storage histograms on reg.
func NewStorage(reg prometheus.Registerer) *Storage {
	f := promauto.With(reg)
	return &Storage{
		writeSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetwire_storage_write_seconds",
			Help:    "Latency of single-key storage writes.",
			Buckets: prometheus.DefBuckets,
		}),
		readSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetwire_storage_read_seconds",
			Help:    "Latency of single-key storage reads.",
			Buckets: prometheus.DefBuckets,
		}),
		commitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetwire_storage_commit_seconds",
			Help:    "Latency of batch commits.",
			Buckets: prometheus.DefBuckets,
		}),
		commitBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetwire_storage_commit_bytes",
			Help:    "Size of committed batches.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
	}
}

// ObserveWrite implements pebblestore.MetricsHook.
func (s *Storage) ObserveWrite(elapsed time.Duration, _ int) {
	s.writeSeconds.Observe(elapsed.Seconds())
}

// ObserveRead implements pebblestore.MetricsHook.
func (s *Storage) ObserveRead(elapsed time.Duration, _ int) {
	s.readSeconds.Observe(elapsed.Seconds())
}

// ObserveBatchCommit implements pebblestore.MetricsHook.
func (s *Storage) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	s.commitSeconds.Observe(elapsed.Seconds())
	s.commitBytes.Observe(float64(bytes))
}
