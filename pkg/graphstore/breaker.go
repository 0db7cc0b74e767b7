package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soundprediction/recall/pkg/types"
)

// BreakerDriver wraps a Driver with a circuit breaker so a flapping graph
// backend stops absorbing latency and the caller falls through to the next
// retrieval tier quickly.
type BreakerDriver struct {
	inner   Driver
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps the driver. A nil settings uses the defaults: the breaker
// opens after 3 or more calls with a failure ratio of at least 0.6 and probes
// again after 30 seconds.
func WithBreaker(inner Driver, settings *gobreaker.Settings) *BreakerDriver {
	if settings == nil {
		settings = &gobreaker.Settings{
			Name:    "graphstore",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 3 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
		}
	}
	return &BreakerDriver{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(*settings),
	}
}

func (b *BreakerDriver) execute(fn func() (any, error)) (any, error) {
	result, err := b.breaker.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("%w: circuit breaker open", types.ErrBackendUnavailable)
	}
	return result, err
}

func (b *BreakerDriver) UpsertDocument(ctx context.Context, doc *Document) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.UpsertDocument(ctx, doc)
	})
	return err
}

func (b *BreakerDriver) GetDocument(ctx context.Context, docID string) (*Document, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.GetDocument(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	doc, _ := result.(*Document)
	return doc, nil
}

func (b *BreakerDriver) UpsertEntity(ctx context.Context, entity types.Entity) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.UpsertEntity(ctx, entity)
	})
	return err
}

func (b *BreakerDriver) FindEntity(ctx context.Context, text, entityType string) (*types.Entity, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.FindEntity(ctx, text, entityType)
	})
	if err != nil {
		return nil, err
	}
	entity, _ := result.(*types.Entity)
	return entity, nil
}

func (b *BreakerDriver) UpsertMention(ctx context.Context, docID, entityID string, position int) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.UpsertMention(ctx, docID, entityID, position)
	})
	return err
}

func (b *BreakerDriver) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.UpsertRelationship(ctx, rel)
	})
	return err
}

func (b *BreakerDriver) DocumentsMentioning(ctx context.Context, entityID string) ([]*Document, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.DocumentsMentioning(ctx, entityID)
	})
	if err != nil {
		return nil, err
	}
	docs, _ := result.([]*Document)
	return docs, nil
}

func (b *BreakerDriver) EntitiesMentionedIn(ctx context.Context, docID string) ([]types.Entity, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.EntitiesMentionedIn(ctx, docID)
	})
	if err != nil {
		return nil, err
	}
	entities, _ := result.([]types.Entity)
	return entities, nil
}

func (b *BreakerDriver) EntityRelationships(ctx context.Context, entityID string, depth int) ([]types.Relationship, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.EntityRelationships(ctx, entityID, depth)
	})
	if err != nil {
		return nil, err
	}
	rels, _ := result.([]types.Relationship)
	return rels, nil
}

func (b *BreakerDriver) AllDocuments(ctx context.Context) ([]*Document, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.AllDocuments(ctx)
	})
	if err != nil {
		return nil, err
	}
	docs, _ := result.([]*Document)
	return docs, nil
}

func (b *BreakerDriver) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.Statistics(ctx)
	})
	if err != nil {
		return nil, err
	}
	stats, _ := result.(*types.GraphStatistics)
	return stats, nil
}

// IsAvailable reports false while the breaker is open, regardless of the
// inner driver's state.
func (b *BreakerDriver) IsAvailable() bool {
	if b.breaker.State() == gobreaker.StateOpen {
		return false
	}
	return b.inner.IsAvailable()
}

func (b *BreakerDriver) Close(ctx context.Context) error {
	return b.inner.Close(ctx)
}
