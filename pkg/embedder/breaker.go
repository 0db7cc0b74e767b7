package embedder

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the embedding circuit breaker.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// BreakerClient wraps a Client with a circuit breaker. While the breaker is
// open the client reports unavailable, which the engine treats the same as a
// missing embedding backend.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker decorates the client with a circuit breaker.
func WithBreaker(inner Client, settings BreakerSettings) *BreakerClient {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTripRatio == 0 {
		settings.ReadyToTripRatio = 0.6
	}

	ratio := settings.ReadyToTripRatio
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedder",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
	})

	return &BreakerClient{inner: inner, breaker: breaker}
}

func (b *BreakerClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, texts)
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}

func (b *BreakerClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.EmbedSingle(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (b *BreakerClient) Dimensions() int { return b.inner.Dimensions() }

// IsAvailable reflects both the inner backend and the breaker state.
func (b *BreakerClient) IsAvailable() bool {
	return b.inner.IsAvailable() && b.breaker.State() != gobreaker.StateOpen
}

func (b *BreakerClient) Close() error { return b.inner.Close() }
