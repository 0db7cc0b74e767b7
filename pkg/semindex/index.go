// Package semindex ranks context entries against a query. With an embedding
// backend it compares dense vectors; without one it runs a keyword-overlap
// fallback. The two modes produce scores on different scales and are never
// compared against the same threshold.
package semindex

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/soundprediction/recall/pkg/embedder"
	"github.com/soundprediction/recall/pkg/entrystore"
	"github.com/soundprediction/recall/pkg/types"
	"github.com/soundprediction/recall/pkg/utils"
)

// Mode identifies which scoring strategy is active.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// Per-mode default similarity thresholds.
const (
	DefaultSemanticThreshold = 0.3
	DefaultKeywordThreshold  = 0.15
)

// DiversityThreshold is the cosine similarity above which a candidate is
// considered a near-duplicate of an already-kept result.
const DiversityThreshold = 0.9

// cachedVector pairs an embedding with the entry revision it was computed
// from.
type cachedVector struct {
	vec       []float32
	updatedAt time.Time
}

// Index scores entries from a backing store against queries.
type Index struct {
	source   entrystore.Store
	embedder embedder.Client
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedVector
}

// NewIndex creates an Index. A nil embedder puts the index in keyword mode
// permanently.
func NewIndex(source entrystore.Store, emb embedder.Client, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		source:   source,
		embedder: emb,
		logger:   logger,
		cache:    make(map[string]cachedVector),
	}
}

// Mode reports the active scoring strategy.
func (ix *Index) Mode() Mode {
	if ix.embedder != nil && ix.embedder.IsAvailable() {
		return ModeSemantic
	}
	return ModeKeyword
}

// IsAvailable is always true: the keyword fallback needs no backend.
func (ix *Index) IsAvailable() bool { return true }

// Invalidate drops the cached embedding for one entry.
func (ix *Index) Invalidate(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.cache, id)
}

// CachedVector returns the cached embedding for an entry, if any.
func (ix *Index) CachedVector(id string) []float32 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if cached, ok := ix.cache[id]; ok {
		return cached.vec
	}
	return nil
}

// vectorFor returns the embedding for an entry, regenerating it only when the
// entry was updated after the cached copy was computed, or on force.
func (ix *Index) vectorFor(ctx context.Context, entry *types.ContextEntry, force bool) ([]float32, error) {
	ix.mu.RLock()
	cached, ok := ix.cache[entry.ID]
	ix.mu.RUnlock()
	if ok && !force && !entry.UpdatedAt.After(cached.updatedAt) {
		return cached.vec, nil
	}

	var vec []float32
	if entry.Embedding != nil && !force {
		vec = entry.Embedding
	} else {
		if ix.embedder == nil || !ix.embedder.IsAvailable() {
			return nil, types.ErrBackendUnavailable
		}
		computed, err := ix.embedder.EmbedSingle(ctx, entry.Content)
		if err != nil {
			return nil, err
		}
		vec = computed
	}

	ix.mu.Lock()
	ix.cache[entry.ID] = cachedVector{vec: vec, updatedAt: entry.UpdatedAt}
	ix.mu.Unlock()
	return vec, nil
}

// SearchSimilar scores all stored entries against the query and returns the
// ones at or above minSimilarity, best first. A non-positive minSimilarity
// selects the active mode's default threshold.
func (ix *Index) SearchSimilar(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]types.ScoredEntry, error) {
	if maxResults <= 0 {
		return nil, types.NewValidationError("max_results", "must be positive")
	}

	entries, err := ix.source.List(ctx, entrystore.Query{})
	if err != nil {
		return nil, err
	}

	mode := ix.Mode()
	if minSimilarity <= 0 {
		if mode == ModeSemantic {
			minSimilarity = DefaultSemanticThreshold
		} else {
			minSimilarity = DefaultKeywordThreshold
		}
	}

	var queryVec []float32
	if mode == ModeSemantic {
		queryVec, err = ix.embedder.EmbedSingle(ctx, query)
		if err != nil {
			ix.logger.Warn("query embedding failed, falling back to keyword scoring", "error", err)
			mode = ModeKeyword
			if minSimilarity > DefaultKeywordThreshold {
				minSimilarity = DefaultKeywordThreshold
			}
		}
	}

	var scored []types.ScoredEntry
	for _, entry := range entries {
		var score float64
		if mode == ModeSemantic {
			vec, err := ix.vectorFor(ctx, entry, false)
			if err != nil {
				ix.logger.Warn("entry embedding failed, skipping", "entry_id", entry.ID, "error", err)
				continue
			}
			score = utils.ClampedCosine(queryVec, vec)
		} else {
			score = KeywordScore(query, entry.Content)
		}
		if score >= minSimilarity {
			entry.RelevanceScore = score
			scored = append(scored, types.ScoredEntry{
				Entry: entry,
				Score: score,
				Breakdown: types.ScoreBreakdown{
					Semantic: score,
				},
			})
		}
	}

	sortScored(scored)
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored, nil
}

func sortScored(scored []types.ScoredEntry) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.ID < scored[j].Entry.ID
	})
}
