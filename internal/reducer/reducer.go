package reducer

import (
	"context"
	"sync"
	"time"

	"github.com/fleetwire/fleetwire/internal/command"
	"github.com/fleetwire/fleetwire/internal/metrics"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/log"
)

// Reducer folds one device's telemetry into its DeviceState. Apply holds the
// device mutex for its whole body, so events for one device are strictly
// serial while different devices run in parallel.
type Reducer struct {
	db        *pebblestore.DB
	sink      sink.Sink
	logger    log.Logger
	pipeline  *metrics.Pipeline
	namespace string
	deviceID  string

	mu    sync.Mutex
	state DeviceState
}

// newReducer loads persisted state for deviceID or initializes a fresh
// Connected state and persists it.
func newReducer(db *pebblestore.DB, s sink.Sink, namespace, deviceID string, logger log.Logger, pipeline *metrics.Pipeline) (*Reducer, error) {
	r := &Reducer{
		db:        db,
		sink:      s,
		logger:    logger.With(log.Str("device_id", deviceID)),
		pipeline:  pipeline,
		namespace: namespace,
		deviceID:  deviceID,
	}

	raw, err := db.Get(stateKey(namespace, deviceID))
	switch {
	case err == nil:
		state, derr := decodeState(raw)
		if derr != nil {
			return nil, derr
		}
		r.state = state
	case pebblestore.IsNotFound(err):
		r.state = DeviceState{DeviceID: deviceID, ConnectionStatus: ConnectionStatusConnected}
		r.persistLocked()
	default:
		return nil, err
	}
	return r, nil
}

// Apply folds one event into the device state. Sink and state persistence
// failures are logged and counted but never fail the event; the stream must
// keep moving.
func (r *Reducer) Apply(ctx context.Context, ev telemetry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.EventCount++
	if ev.EnqueuedMs > 0 {
		r.state.LastSeenMs = ev.EnqueuedMs
	} else {
		r.state.LastSeenMs = time.Now().UnixMilli()
	}

	if ev.IsAck() {
		r.state.LastCommandID = ev.CorrelationID
		if err := r.sink.UpdateCommandStatus(ctx, ev.CorrelationID, command.StatusReceived); err != nil {
			r.logger.Error("command ack update failed",
				log.Str("command_id", ev.CorrelationID),
				log.Err(err))
		} else {
			r.pipeline.IncCommandsAcked()
		}
	}

	if err := r.sink.InsertTelemetry(ctx, ev.MessageID, ev.Body); err != nil {
		r.pipeline.IncTelemetryPersistFail()
		r.logger.Error("telemetry persist failed",
			log.Str("message_id", ev.MessageID),
			log.Err(err))
	}

	r.persistLocked()
	return nil
}

// State returns a copy of the current device state.
func (r *Reducer) State() DeviceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// persistLocked writes the state row. Callers hold r.mu.
func (r *Reducer) persistLocked() {
	raw, err := encodeState(r.state)
	if err != nil {
		r.logger.Error("device state encode failed", log.Err(err))
		return
	}
	if err := r.db.Set(stateKey(r.namespace, r.deviceID), raw); err != nil {
		r.logger.Error("device state persist failed", log.Err(err))
	}
}
