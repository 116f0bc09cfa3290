package dispatch

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fleetwire/fleetwire/pkg/log"
)

// Endpoint delivers a command to a device. Implementations must treat an
// unreachable device as an error, not a silent drop.
type Endpoint interface {
	Send(ctx context.Context, deviceID, commandID string) error
}

// EndpointFunc adapts a function to the Endpoint interface.
type EndpointFunc func(ctx context.Context, deviceID, commandID string) error

func (f EndpointFunc) Send(ctx context.Context, deviceID, commandID string) error {
	return f(ctx, deviceID, commandID)
}

// BreakerEndpoint wraps an Endpoint with a circuit breaker so a flapping
// downstream fails fast instead of stalling the dispatch loop. While the
// breaker is open every send fails immediately with gobreaker.ErrOpenState.
type BreakerEndpoint struct {
	inner   Endpoint
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// BreakerConfig tunes the circuit breaker. Zero values fall back to the
// defaults below.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive send failures that
	// open the breaker. Default 5.
	FailureThreshold uint32
	// Timeout is how long the breaker stays open before probing again.
	// Default 30s.
	Timeout time.Duration
}

// NewBreakerEndpoint wraps inner with a circuit breaker named name.
func NewBreakerEndpoint(name string, inner Endpoint, cfg BreakerConfig, logger log.Logger) *BreakerEndpoint {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if logger != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Info("endpoint breaker state changed",
				log.Str("breaker", name),
				log.Str("from", from.String()),
				log.Str("to", to.String()))
		}
	}
	return &BreakerEndpoint{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Send implements Endpoint.
func (b *BreakerEndpoint) Send(ctx context.Context, deviceID, commandID string) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.inner.Send(ctx, deviceID, commandID)
	})
	return err
}
