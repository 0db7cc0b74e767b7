package recall

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/soundprediction/recall/pkg/entrystore"
	"github.com/soundprediction/recall/pkg/semindex"
	"github.com/soundprediction/recall/pkg/telemetry"
	"github.com/soundprediction/recall/pkg/types"
	"github.com/soundprediction/recall/pkg/utils"
)

// Request asks for context relevant to a consumer's query.
type Request struct {
	ConsumerID string
	// Query drives tiered retrieval. Empty means "most recent context".
	Query string
	// Limit must be positive.
	Limit      int
	Types      []types.EntryType
	Tags       []string
	MaxAgeDays int
}

// Result is a ranked slice of entries plus how they were retrieved.
type Result struct {
	Entries  []*types.ContextEntry
	Metadata types.RetrievalMetadata
}

// PromptContext is the prompt-ready rendering of a retrieval result.
type PromptContext struct {
	// FormattedContext is the context block wrapped with the prompt.
	FormattedContext string
	EntriesUsed      int
	// TotalLength is the character length of the bare context block.
	TotalLength int
}

// GetRelevantContext runs the tier state machine, applies access filtering,
// scores, deduplicates, and returns at most req.Limit entries. Only
// validation errors escape; every backend failure degrades to the next tier.
func (e *Engine) GetRelevantContext(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	if req.Limit <= 0 {
		return nil, types.NewValidationError("limit", "must be positive")
	}

	ctx = telemetry.WithConsumerID(ctx, req.ConsumerID)
	limit := req.Limit
	effTypes := req.Types
	if e.filter != nil {
		scopes, ok, err := e.filter.Scopes(ctx, req.ConsumerID)
		if err != nil {
			e.logger.WarnContext(ctx, "scope lookup failed, denying request",
				"consumer_id", req.ConsumerID, "error", err)
			return e.deniedResult(started), nil
		}
		if !ok {
			return e.deniedResult(started), nil
		}
		effTypes = intersectTypes(req.Types, scopes)
		if len(effTypes) == 0 {
			return e.deniedResult(started), nil
		}
		maxEntries, err := e.filter.MaxEntries(ctx, req.ConsumerID)
		if err != nil {
			return e.deniedResult(started), nil
		}
		if maxEntries > 0 && maxEntries < limit {
			limit = maxEntries
		}
	}

	candidates, tier := e.runTiers(ctx, req, effTypes, limit)
	ctx = telemetry.WithTier(ctx, string(tier))
	candidates = e.filterRequest(candidates, req, effTypes)
	retrieved := len(candidates)
	e.observeStage("retrieved", retrieved)

	if e.filter != nil {
		candidates = e.filter.Apply(ctx, req.ConsumerID, candidates)
	}
	afterAccess := len(candidates)
	e.observeStage("after_access", afterAccess)

	if req.Query != "" {
		e.scoreHybrid(candidates)
		sortByRelevance(candidates)
	} else {
		// listing order is already newest first
		e.scoreRecency(candidates)
	}

	candidates = e.deduplicate(candidates)
	candidates = e.diversify(candidates)
	afterDedup := len(candidates)
	e.observeStage("after_dedup", afterDedup)

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, entry := range candidates {
		if err := e.entries.RecordAccess(ctx, entry.ID); err != nil {
			e.logger.WarnContext(ctx, "failed to record access", "entry_id", entry.ID, "error", err)
		}
	}
	e.observeStage("returned", len(candidates))

	elapsed := time.Since(started)
	if e.metrics != nil {
		e.metrics.ObserveRetrieval(string(tier), elapsed.Seconds())
	}
	return &Result{
		Entries: candidates,
		Metadata: types.RetrievalMetadata{
			ServedBy: tier,
			Stages: types.StageCounts{
				Retrieved:   retrieved,
				AfterAccess: afterAccess,
				AfterDedup:  afterDedup,
				Returned:    len(candidates),
			},
			Elapsed: elapsed,
		},
	}, nil
}

// runTiers walks TRY_GRAPH -> TRY_SEMANTIC -> TRY_KEYWORD. The first tier to
// produce candidates wins; tiers are never merged. The keyword tier is
// terminal regardless of outcome.
func (e *Engine) runTiers(ctx context.Context, req Request, effTypes []types.EntryType, limit int) ([]*types.ContextEntry, types.Tier) {
	fetch := limit*3 + 10

	if req.Query == "" {
		return e.recencyTier(ctx, req, effTypes, fetch), types.TierRecency
	}

	if e.config.UseGraph && e.graph != nil && e.graph.IsAvailable() {
		candidates := e.safeTier(string(types.TierGraph), func() []*types.ContextEntry {
			return e.graphTier(ctx, req.Query, fetch)
		})
		if len(candidates) > 0 {
			return candidates, types.TierGraph
		}
	}

	if e.index.Mode() == semindex.ModeSemantic {
		candidates := e.safeTier(string(types.TierSemantic), func() []*types.ContextEntry {
			return e.semanticTier(ctx, req.Query, fetch)
		})
		if len(candidates) > 0 {
			return candidates, types.TierSemantic
		}
	}

	candidates := e.safeTier(string(types.TierKeyword), func() []*types.ContextEntry {
		return e.keywordTier(ctx, req.Query, effTypes)
	})
	return candidates, types.TierKeyword
}

// bounded derives the timeout context for one tier's backend calls.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.BackendTimeout)
}

// safeTier converts a tier panic into "this tier produced nothing".
func (e *Engine) safeTier(name string, fn func() []*types.ContextEntry) (out []*types.ContextEntry) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("retrieval tier panicked", "tier", name, "panic", r)
			if e.metrics != nil {
				e.metrics.BackendError(name)
			}
			out = nil
		}
	}()
	return fn()
}

func (e *Engine) graphTier(ctx context.Context, query string, fetch int) []*types.ContextEntry {
	bctx, cancel := e.bounded(ctx)
	defer cancel()

	docs, err := e.graph.Search(bctx, query, fetch, true, 0)
	if err != nil {
		e.logger.WarnContext(ctx, "graph tier failed, falling through", "error", err)
		if e.metrics != nil {
			e.metrics.BackendError("graph")
		}
		return nil
	}

	var out []*types.ContextEntry
	for _, doc := range docs {
		entry, err := e.entries.Get(ctx, doc.DocID)
		if err != nil || entry == nil {
			continue
		}
		entry.RelevanceScore = doc.Relevance
		out = append(out, entry)
	}
	return out
}

func (e *Engine) semanticTier(ctx context.Context, query string, fetch int) []*types.ContextEntry {
	bctx, cancel := e.bounded(ctx)
	defer cancel()

	scored, err := e.index.SearchSimilar(bctx, query, fetch, e.config.MinSimilarity)
	if err == nil && bctx.Err() != nil {
		// The index degrades to keyword scoring when the embedding call
		// fails mid-search. If that failure was our deadline expiring the
		// backend hung, so discard and let the keyword tier serve under
		// its own name.
		err = types.ErrBackendUnavailable
	}
	if err != nil {
		e.logger.WarnContext(ctx, "semantic tier failed, falling through", "error", err)
		if e.metrics != nil {
			e.metrics.BackendError("semantic")
		}
		return nil
	}

	out := make([]*types.ContextEntry, 0, len(scored))
	for _, s := range scored {
		s.Entry.RelevanceScore = s.Score
		out = append(out, s.Entry)
	}
	return out
}

// keywordTier is the guaranteed-available terminal tier: plain token overlap
// over the stored entries.
func (e *Engine) keywordTier(ctx context.Context, query string, effTypes []types.EntryType) []*types.ContextEntry {
	entries, err := e.entries.List(ctx, entrystore.Query{Types: effTypes})
	if err != nil {
		e.logger.WarnContext(ctx, "keyword tier failed", "error", err)
		return nil
	}

	var out []*types.ContextEntry
	for _, entry := range entries {
		score := semindex.KeywordScore(query, entry.Content)
		if score > 0 {
			entry.RelevanceScore = score
			out = append(out, entry)
		}
	}
	return out
}

func (e *Engine) recencyTier(ctx context.Context, req Request, effTypes []types.EntryType, fetch int) []*types.ContextEntry {
	entries, err := e.entries.List(ctx, entrystore.Query{
		Types:      effTypes,
		Tags:       req.Tags,
		MaxAgeDays: req.MaxAgeDays,
		Limit:      fetch,
	})
	if err != nil {
		e.logger.WarnContext(ctx, "recency listing failed", "error", err)
		return nil
	}
	return entries
}

// filterRequest applies the caller's type/tag/age constraints to tier output.
func (e *Engine) filterRequest(candidates []*types.ContextEntry, req Request, effTypes []types.EntryType) []*types.ContextEntry {
	now := time.Now().UTC()
	out := candidates[:0]
	for _, entry := range candidates {
		if len(effTypes) > 0 && !typeIn(entry.Type, effTypes) {
			continue
		}
		tagged := true
		for _, tag := range req.Tags {
			if !entry.HasTag(tag) {
				tagged = false
				break
			}
		}
		if !tagged {
			continue
		}
		if req.MaxAgeDays > 0 && entry.AgeDays(now) > float64(req.MaxAgeDays) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// scoreHybrid blends each candidate's tier relevance with recency and access
// frequency. The tier relevance is the semantic component.
func (e *Engine) scoreHybrid(candidates []*types.ContextEntry) {
	if len(candidates) == 0 {
		return
	}
	var maxAccess int64 = 1
	for _, entry := range candidates {
		if entry.AccessCount > maxAccess {
			maxAccess = entry.AccessCount
		}
	}
	now := time.Now().UTC()
	w := e.config.Weights
	for _, entry := range candidates {
		semantic := entry.RelevanceScore
		recency := semindex.RecencyScore(entry, now)
		frequency := float64(entry.AccessCount) / float64(maxAccess)
		entry.RelevanceScore = semantic*w.Semantic + recency*w.Recency + frequency*w.Frequency
	}
}

func (e *Engine) scoreRecency(candidates []*types.ContextEntry) {
	now := time.Now().UTC()
	for _, entry := range candidates {
		entry.RelevanceScore = semindex.RecencyScore(entry, now)
	}
}

func sortByRelevance(candidates []*types.ContextEntry) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].ID < candidates[j].ID
	})
}

// deduplicate collapses entries with identical normalized content or
// near-identical embeddings, keeping the more recently created (then more
// accessed) copy.
func (e *Engine) deduplicate(candidates []*types.ContextEntry) []*types.ContextEntry {
	if len(candidates) <= 1 {
		return candidates
	}

	kept := make([]*types.ContextEntry, 0, len(candidates))
	norms := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		norm := types.NormalizeContent(candidate.Content)
		dup := -1
		for i := range kept {
			if norms[i] == norm {
				dup = i
				break
			}
			if e.embeddingsMatch(candidate, kept[i]) {
				dup = i
				break
			}
		}
		if dup == -1 {
			kept = append(kept, candidate)
			norms = append(norms, norm)
			continue
		}
		if preferCopy(candidate, kept[dup]) {
			kept[dup] = candidate
			norms[dup] = norm
		}
	}
	return kept
}

func (e *Engine) embeddingsMatch(a, b *types.ContextEntry) bool {
	va := e.cachedOrOwn(a)
	vb := e.cachedOrOwn(b)
	if va == nil || vb == nil {
		return false
	}
	return utils.CosineSimilarity(va, vb) > e.config.DuplicateThreshold
}

func (e *Engine) cachedOrOwn(entry *types.ContextEntry) []float32 {
	if vec := e.index.CachedVector(entry.ID); vec != nil {
		return vec
	}
	return entry.Embedding
}

// preferCopy reports whether a should replace b when they are duplicates.
func preferCopy(a, b *types.ContextEntry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.AccessCount > b.AccessCount
}

func (e *Engine) diversify(candidates []*types.ContextEntry) []*types.ContextEntry {
	if len(candidates) <= 1 {
		return candidates
	}
	scored := make([]types.ScoredEntry, len(candidates))
	for i, entry := range candidates {
		scored[i] = types.ScoredEntry{Entry: entry, Score: entry.RelevanceScore}
	}
	kept := e.index.DiversityFilter(scored, semindex.DiversityThreshold)
	out := make([]*types.ContextEntry, len(kept))
	for i, s := range kept {
		out[i] = s.Entry
	}
	return out
}

func (e *Engine) deniedResult(started time.Time) *Result {
	return &Result{
		Metadata: types.RetrievalMetadata{
			Reason:  ReasonAccessDenied,
			Elapsed: time.Since(started),
		},
	}
}

func (e *Engine) observeStage(stage string, count int) {
	if e.metrics != nil {
		e.metrics.ObserveStage(stage, count)
	}
}

func intersectTypes(requested, allowed []types.EntryType) []types.EntryType {
	if len(requested) == 0 {
		return allowed
	}
	var out []types.EntryType
	for _, t := range requested {
		if typeIn(t, allowed) {
			out = append(out, t)
		}
	}
	return out
}

func typeIn(t types.EntryType, list []types.EntryType) bool {
	for _, item := range list {
		if item == t {
			return true
		}
	}
	return false
}

// GetContextForPrompt retrieves context for the prompt and renders it as a
// character-budgeted block: entries are appended in rank order and an entry
// that would push the block past maxChars is dropped, never truncated.
func (e *Engine) GetContextForPrompt(ctx context.Context, consumerID, prompt string, maxChars int) (*PromptContext, error) {
	if maxChars <= 0 {
		return nil, types.NewValidationError("max_chars", "must be positive")
	}

	result, err := e.GetRelevantContext(ctx, Request{
		ConsumerID: consumerID,
		Query:      prompt,
		Limit:      e.config.DefaultLimit,
	})
	if err != nil {
		return nil, err
	}

	var block strings.Builder
	used := 0
	for _, entry := range result.Entries {
		line := FormatEntry(entry)
		needed := len(line)
		if block.Len() > 0 {
			needed++ // newline separator
		}
		if block.Len()+needed > maxChars {
			break
		}
		if block.Len() > 0 {
			block.WriteByte('\n')
		}
		block.WriteString(line)
		used++
	}

	return &PromptContext{
		FormattedContext: wrapPrompt(block.String(), prompt),
		EntriesUsed:      used,
		TotalLength:      block.Len(),
	}, nil
}

// FormatEntry renders one entry as a context line: "[TYPE] content" with an
// optional tag suffix.
func FormatEntry(entry *types.ContextEntry) string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.ToUpper(string(entry.Type)))
	b.WriteString("] ")
	b.WriteString(entry.Content)
	if len(entry.Tags) > 0 {
		b.WriteString(" (tags: ")
		b.WriteString(strings.Join(entry.Tags, ", "))
		b.WriteByte(')')
	}
	return b.String()
}

func wrapPrompt(block, prompt string) string {
	if block == "" {
		return prompt
	}
	return "Relevant context:\n" + block + "\n\n" + prompt
}
