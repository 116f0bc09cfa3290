package reducer

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetwire/fleetwire/internal/metrics"
	"github.com/fleetwire/fleetwire/internal/sink"
	pebblestore "github.com/fleetwire/fleetwire/internal/storage/pebble"
	"github.com/fleetwire/fleetwire/internal/telemetry"
	"github.com/fleetwire/fleetwire/pkg/log"
)

// ErrMissingDeviceID is returned for events that cannot be routed to a
// device reducer.
var ErrMissingDeviceID = errors.New("reducer: event has no device id")

// Registry owns one Reducer per device. Reducers are created on first use
// and kept for the life of the process.
type Registry struct {
	db        *pebblestore.DB
	sink      sink.Sink
	logger    log.Logger
	pipeline  *metrics.Pipeline
	namespace string

	mu       sync.RWMutex
	reducers map[string]*Reducer
}

// NewRegistry builds an empty registry. pipeline may be nil.
func NewRegistry(db *pebblestore.DB, s sink.Sink, namespace string, logger log.Logger, pipeline *metrics.Pipeline) *Registry {
	return &Registry{
		db:        db,
		sink:      s,
		logger:    logger.WithComponent("reducer"),
		pipeline:  pipeline,
		namespace: namespace,
		reducers:  make(map[string]*Reducer),
	}
}

// Dispatch routes ev to its device's reducer, creating the reducer if the
// device has not been seen before.
func (g *Registry) Dispatch(ctx context.Context, ev telemetry.Event) error {
	if ev.DeviceID == "" {
		return ErrMissingDeviceID
	}
	r, err := g.get(ev.DeviceID)
	if err != nil {
		return err
	}
	return r.Apply(ctx, ev)
}

// Get returns the reducer for deviceID if one exists. It does not create.
func (g *Registry) Get(deviceID string) (*Reducer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.reducers[deviceID]
	return r, ok
}

// Len reports the number of live reducers.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.reducers)
}

// get is double-checked get-or-create so the common path takes only the read
// lock.
func (g *Registry) get(deviceID string) (*Reducer, error) {
	g.mu.RLock()
	r, ok := g.reducers[deviceID]
	g.mu.RUnlock()
	if ok {
		return r, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.reducers[deviceID]; ok {
		return r, nil
	}
	r, err := newReducer(g.db, g.sink, g.namespace, deviceID, g.logger, g.pipeline)
	if err != nil {
		return nil, err
	}
	g.reducers[deviceID] = r
	return r, nil
}
