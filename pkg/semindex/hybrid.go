package semindex

import (
	"context"
	"time"

	"github.com/soundprediction/recall/pkg/types"
	"github.com/soundprediction/recall/pkg/utils"
)

// Weights blend the hybrid score components. They should sum to 1 so a
// candidate that maxes every signal scores exactly 1.
type Weights struct {
	Semantic  float64 `json:"semantic" mapstructure:"semantic"`
	Recency   float64 `json:"recency" mapstructure:"recency"`
	Frequency float64 `json:"frequency" mapstructure:"frequency"`
}

// DefaultWeights favor semantic match, then recency, then access frequency.
var DefaultWeights = Weights{Semantic: 0.6, Recency: 0.3, Frequency: 0.1}

// recencyWindowDays is the span over which recency decays linearly to zero.
const recencyWindowDays = 30.0

// RecencyScore maps entry age to [0,1]: 1 at creation, 0 at thirty days.
func RecencyScore(entry *types.ContextEntry, now time.Time) float64 {
	score := 1 - entry.AgeDays(now)/recencyWindowDays
	if score < 0 {
		return 0
	}
	return score
}

// HybridScore ranks entries by a weighted blend of similarity, recency, and
// access frequency, then applies the diversity filter.
func (ix *Index) HybridScore(ctx context.Context, query string, maxResults int, weights Weights) ([]types.ScoredEntry, error) {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}

	// gather more candidates than requested so the diversity filter has
	// something to reject
	candidates, err := ix.SearchSimilar(ctx, query, maxResults*3+10, 0)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	var maxAccess int64 = 1
	for _, c := range candidates {
		if c.Entry.AccessCount > maxAccess {
			maxAccess = c.Entry.AccessCount
		}
	}

	now := time.Now().UTC()
	for i := range candidates {
		c := &candidates[i]
		c.Breakdown.Recency = RecencyScore(c.Entry, now)
		c.Breakdown.Frequency = float64(c.Entry.AccessCount) / float64(maxAccess)
		c.Score = c.Breakdown.Semantic*weights.Semantic +
			c.Breakdown.Recency*weights.Recency +
			c.Breakdown.Frequency*weights.Frequency
		c.Entry.RelevanceScore = c.Score
	}

	sortScored(candidates)
	kept := ix.DiversityFilter(candidates, DiversityThreshold)
	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return kept, nil
}

// DiversityFilter walks the score-sorted list, always keeping the top result
// and rejecting candidates whose cached embedding is more similar than
// threshold to any already-kept result. Candidates without cached embeddings
// pass through. Quadratic in the candidate count, which the callers keep
// small.
func (ix *Index) DiversityFilter(scored []types.ScoredEntry, threshold float64) []types.ScoredEntry {
	if len(scored) <= 1 {
		return scored
	}

	kept := make([]types.ScoredEntry, 0, len(scored))
	keptVecs := make([][]float32, 0, len(scored))
	for _, candidate := range scored {
		vec := ix.CachedVector(candidate.Entry.ID)
		if vec == nil {
			vec = candidate.Entry.Embedding
		}

		redundant := false
		if vec != nil {
			for _, keptVec := range keptVecs {
				if keptVec == nil {
					continue
				}
				if utils.CosineSimilarity(vec, keptVec) > threshold {
					redundant = true
					break
				}
			}
		}
		if redundant {
			continue
		}
		kept = append(kept, candidate)
		keptVecs = append(keptVecs, vec)
	}
	return kept
}
