package recall

import (
	"context"

	"github.com/soundprediction/recall/pkg/semindex"
	"github.com/soundprediction/recall/pkg/types"
)

// GraphStore is the knowledge graph surface the engine consumes. Implemented
// by graphstore.Store.
type GraphStore interface {
	AddDocument(ctx context.Context, content, docID string, metadata map[string]string, extractEntities bool) (*types.AddDocumentResult, error)
	Search(ctx context.Context, query string, limit int, useGraph bool, minRelevance float64) ([]types.DocumentResult, error)
	EntityRelationships(ctx context.Context, text, entityType string, depth int) (*types.EntityRelationships, error)
	Statistics(ctx context.Context) (*types.GraphStatistics, error)
	IsAvailable() bool
	Close(ctx context.Context) error
}

// SemanticIndex is the similarity surface the engine consumes. Implemented by
// semindex.Index.
type SemanticIndex interface {
	Mode() semindex.Mode
	SearchSimilar(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]types.ScoredEntry, error)
	DiversityFilter(scored []types.ScoredEntry, threshold float64) []types.ScoredEntry
	CachedVector(id string) []float32
	Invalidate(id string)
}

// AccessFilter is the permission surface the engine consumes. Implemented by
// access.Filter.
type AccessFilter interface {
	Scopes(ctx context.Context, consumerID string) ([]types.EntryType, bool, error)
	MaxEntries(ctx context.Context, consumerID string) (int, error)
	Apply(ctx context.Context, consumerID string, candidates []*types.ContextEntry) []*types.ContextEntry
}
