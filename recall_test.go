package recall

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/recall/pkg/entrystore"
	"github.com/soundprediction/recall/pkg/semindex"
	"github.com/soundprediction/recall/pkg/types"
)

type stubGraph struct {
	docs      []types.DocumentResult
	searchErr error
	panics    bool
}

func (g *stubGraph) AddDocument(ctx context.Context, content, docID string, metadata map[string]string, extractEntities bool) (*types.AddDocumentResult, error) {
	return &types.AddDocumentResult{DocID: docID}, nil
}

func (g *stubGraph) Search(ctx context.Context, query string, limit int, useGraph bool, minRelevance float64) ([]types.DocumentResult, error) {
	if g.panics {
		panic("graph backend corrupted")
	}
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.docs, nil
}

func (g *stubGraph) EntityRelationships(ctx context.Context, text, entityType string, depth int) (*types.EntityRelationships, error) {
	return &types.EntityRelationships{}, nil
}

func (g *stubGraph) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	return &types.GraphStatistics{}, nil
}

func (g *stubGraph) IsAvailable() bool { return true }

func (g *stubGraph) Close(ctx context.Context) error { return nil }

type stubFilter struct {
	scopes    []types.EntryType
	known     bool
	scopesErr error
	max       int
}

func (f *stubFilter) Scopes(ctx context.Context, consumerID string) ([]types.EntryType, bool, error) {
	return f.scopes, f.known, f.scopesErr
}

func (f *stubFilter) MaxEntries(ctx context.Context, consumerID string) (int, error) {
	return f.max, nil
}

func (f *stubFilter) Apply(ctx context.Context, consumerID string, candidates []*types.ContextEntry) []*types.ContextEntry {
	return candidates
}

type fixtureEmbedder struct {
	vectors map[string][]float32
}

func (e *fixtureEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vectorFor(text)
	}
	return out, nil
}

func (e *fixtureEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

func (e *fixtureEmbedder) vectorFor(text string) []float32 {
	if vec, ok := e.vectors[text]; ok {
		return vec
	}
	return []float32{1, 0, 0}
}

func (e *fixtureEmbedder) Dimensions() int   { return 3 }
func (e *fixtureEmbedder) IsAvailable() bool { return true }
func (e *fixtureEmbedder) Close() error      { return nil }

// blockingEmbedder simulates a hung embedding backend: calls return only once
// the context is cancelled.
type blockingEmbedder struct{}

func (e *blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e *blockingEmbedder) Dimensions() int   { return 3 }
func (e *blockingEmbedder) IsAvailable() bool { return true }
func (e *blockingEmbedder) Close() error      { return nil }

func seedEntry(t *testing.T, store entrystore.Store, entry *types.ContextEntry) {
	t.Helper()
	if entry.Type == "" {
		entry.Type = types.EntryTypeText
	}
	require.NoError(t, store.Put(context.Background(), entry))
}

// keywordEngine has no graph and no embedder, so every query lands on the
// keyword tier.
func keywordEngine(t *testing.T, opts *Options) (*Engine, *entrystore.MemoryStore) {
	t.Helper()
	store := entrystore.NewMemoryStore()
	index := semindex.NewIndex(store, nil, nil)
	engine, err := New(store, index, opts)
	require.NoError(t, err)
	return engine, store
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := entrystore.NewMemoryStore()
	index := semindex.NewIndex(store, nil, nil)

	_, err := New(nil, index, nil)
	assert.ErrorIs(t, err, ErrMissingEntryStore)

	_, err = New(store, nil, nil)
	assert.Error(t, err)

	engine, err := New(store, index, nil)
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestGetRelevantContextRejectsBadLimit(t *testing.T) {
	engine, _ := keywordEngine(t, nil)

	for _, limit := range []int{0, -1} {
		_, err := engine.GetRelevantContext(context.Background(), Request{Query: "anything", Limit: limit})
		assert.True(t, types.IsValidation(err), "limit %d should be rejected", limit)
	}
}

func TestKeywordTierMatchesOnContent(t *testing.T) {
	engine, _ := keywordEngine(t, nil)
	ctx := context.Background()

	seedEntry(t, engine.Entries(), &types.ContextEntry{ID: "cats", Content: "I have two cats"})
	seedEntry(t, engine.Entries(), &types.ContextEntry{ID: "car", Content: "I drive a Tesla Model 3"})

	result, err := engine.GetRelevantContext(ctx, Request{Query: "What car do I drive?", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, types.TierKeyword, result.Metadata.ServedBy)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "car", result.Entries[0].ID)
}

func TestHungEmbeddingBackendFallsThroughToKeyword(t *testing.T) {
	store := entrystore.NewMemoryStore()
	seedEntry(t, store, &types.ContextEntry{ID: "cats", Content: "I have two cats"})
	seedEntry(t, store, &types.ContextEntry{ID: "car", Content: "I drive a Tesla Model 3"})

	index := semindex.NewIndex(store, &blockingEmbedder{}, nil)
	engine, err := New(store, index, &Options{
		Config: &Config{BackendTimeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := engine.GetRelevantContext(context.Background(), Request{
			ConsumerID: "assistant",
			Query:      "What car do I drive?",
			Limit:      5,
		})
		done <- outcome{result, err}
	}()

	select {
	case got := <-done:
		require.NoError(t, got.err)
		assert.Equal(t, types.TierKeyword, got.result.Metadata.ServedBy)
		require.Len(t, got.result.Entries, 1)
		assert.Equal(t, "car", got.result.Entries[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("retrieval did not return while the embedding backend hung")
	}
}

func TestGraphTierServesWhenAvailable(t *testing.T) {
	graph := &stubGraph{docs: []types.DocumentResult{
		{DocID: "doc-1", Relevance: 0.8, SearchType: types.SearchTypeGraph},
	}}
	engine, store := keywordEngine(t, &Options{Graph: graph})
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{ID: "doc-1", Content: "Acme ships widgets"})

	result, err := engine.GetRelevantContext(ctx, Request{Query: "who ships widgets?", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, types.TierGraph, result.Metadata.ServedBy)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "doc-1", result.Entries[0].ID)
}

func TestGraphFailureFallsThroughToSemantic(t *testing.T) {
	store := entrystore.NewMemoryStore()
	emb := &fixtureEmbedder{vectors: map[string][]float32{
		"unrelated": {0, 1, 0},
	}}
	index := semindex.NewIndex(store, emb, nil)
	graph := &stubGraph{searchErr: types.ErrBackendUnavailable}
	engine, err := New(store, index, &Options{Graph: graph})
	require.NoError(t, err)
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{
		ID: "match", Content: "matching entry", Type: types.EntryTypeText,
		Embedding: []float32{1, 0, 0},
	})
	seedEntry(t, store, &types.ContextEntry{
		ID: "other", Content: "unrelated", Type: types.EntryTypeText,
		Embedding: []float32{0, 1, 0},
	})

	result, err := engine.GetRelevantContext(ctx, Request{Query: "matching entry", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, types.TierSemantic, result.Metadata.ServedBy)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "match", result.Entries[0].ID)
}

func TestGraphPanicIsContained(t *testing.T) {
	engine, store := keywordEngine(t, &Options{Graph: &stubGraph{panics: true}})
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{ID: "car", Content: "I drive a Tesla Model 3"})

	result, err := engine.GetRelevantContext(ctx, Request{Query: "What car do I drive?", Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, types.TierKeyword, result.Metadata.ServedBy)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "car", result.Entries[0].ID)
}

func TestUnknownConsumerIsDenied(t *testing.T) {
	engine, store := keywordEngine(t, &Options{Filter: &stubFilter{known: false}})
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{ID: "car", Content: "I drive a Tesla Model 3"})

	result, err := engine.GetRelevantContext(ctx, Request{
		ConsumerID: "stranger", Query: "What car do I drive?", Limit: 5,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Entries)
	assert.Equal(t, ReasonAccessDenied, result.Metadata.Reason)
}

func TestScopeRestrictsEntryTypes(t *testing.T) {
	filter := &stubFilter{
		scopes: []types.EntryType{types.EntryTypePreference},
		known:  true,
	}
	engine, store := keywordEngine(t, &Options{Filter: filter})
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{
		ID: "car", Content: "I drive a Tesla Model 3", Type: types.EntryTypeText,
	})
	seedEntry(t, store, &types.ContextEntry{
		ID: "pref", Content: "I drive with dark mode navigation", Type: types.EntryTypePreference,
	})

	result, err := engine.GetRelevantContext(ctx, Request{
		ConsumerID: "assistant", Query: "What car do I drive?", Limit: 5,
	})
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, types.EntryTypePreference, result.Entries[0].Type)
}

func TestMaxEntriesCapsLimit(t *testing.T) {
	filter := &stubFilter{
		scopes: []types.EntryType{types.EntryTypeText},
		known:  true,
		max:    1,
	}
	engine, store := keywordEngine(t, &Options{Filter: filter})
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{ID: "a", Content: "tesla service appointment"})
	seedEntry(t, store, &types.ContextEntry{ID: "b", Content: "tesla charging schedule"})

	result, err := engine.GetRelevantContext(ctx, Request{
		ConsumerID: "assistant", Query: "tesla", Limit: 5,
	})
	require.NoError(t, err)

	assert.Len(t, result.Entries, 1)
	assert.Equal(t, 1, result.Metadata.Stages.Returned)
}

func TestDeduplicationKeepsNewerCopy(t *testing.T) {
	engine, store := keywordEngine(t, nil)
	ctx := context.Background()

	old := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	seedEntry(t, store, &types.ContextEntry{
		ID: "dup-old", Content: "I prefer tabs over spaces", CreatedAt: old,
	})
	seedEntry(t, store, &types.ContextEntry{
		ID: "dup-new", Content: "I prefer  tabs over spaces", CreatedAt: old.Add(48 * time.Hour),
	})

	result, err := engine.GetRelevantContext(ctx, Request{Query: "tabs or spaces preference", Limit: 5})
	require.NoError(t, err)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "dup-new", result.Entries[0].ID)
	assert.Equal(t, 2, result.Metadata.Stages.Retrieved)
	assert.Equal(t, 1, result.Metadata.Stages.AfterDedup)
}

func TestEmptyQueryReturnsRecentFirst(t *testing.T) {
	engine, store := keywordEngine(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedEntry(t, store, &types.ContextEntry{ID: "oldest", Content: "first note", CreatedAt: base})
	seedEntry(t, store, &types.ContextEntry{ID: "middle", Content: "second note", CreatedAt: base.AddDate(0, 0, 1)})
	seedEntry(t, store, &types.ContextEntry{ID: "newest", Content: "third note", CreatedAt: base.AddDate(0, 0, 2)})

	result, err := engine.GetRelevantContext(ctx, Request{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, types.TierRecency, result.Metadata.ServedBy)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "newest", result.Entries[0].ID)
	assert.Equal(t, "middle", result.Entries[1].ID)
}

func TestAccessRecordedOnlyForReturnedEntries(t *testing.T) {
	engine, store := keywordEngine(t, nil)
	ctx := context.Background()

	seedEntry(t, store, &types.ContextEntry{ID: "car", Content: "I drive a Tesla Model 3"})
	seedEntry(t, store, &types.ContextEntry{ID: "cats", Content: "I have two cats"})

	_, err := engine.GetRelevantContext(ctx, Request{Query: "What car do I drive?", Limit: 5})
	require.NoError(t, err)

	returned, err := store.Get(ctx, "car")
	require.NoError(t, err)
	assert.Equal(t, int64(1), returned.AccessCount)

	skipped, err := store.Get(ctx, "cats")
	require.NoError(t, err)
	assert.Equal(t, int64(0), skipped.AccessCount)
}

func TestFormatEntry(t *testing.T) {
	plain := &types.ContextEntry{Type: types.EntryTypeText, Content: "remember the milk"}
	assert.Equal(t, "[TEXT] remember the milk", FormatEntry(plain))

	tagged := &types.ContextEntry{Type: types.EntryTypeNote, Content: "standup at nine", Tags: []string{"work", "daily"}}
	assert.Equal(t, "[NOTE] standup at nine (tags: work, daily)", FormatEntry(tagged))
}

func TestGetContextForPromptRespectsBudget(t *testing.T) {
	engine, store := keywordEngine(t, nil)
	ctx := context.Background()

	// Each entry formats to exactly 40 characters: "[TEXT] " plus 33 of
	// content.
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	contents := []string{
		"alpha bravo charlie delta echo xx",
		"alpha bravo charlie delta echo yy",
		"alpha bravo charlie delta echo zz",
	}
	for i, content := range contents {
		require.Len(t, content, 33)
		seedEntry(t, store, &types.ContextEntry{
			ID:        contents[i][31:],
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	pc, err := engine.GetContextForPrompt(ctx, "assistant", "alpha bravo charlie", 50)
	require.NoError(t, err)

	assert.Equal(t, 1, pc.EntriesUsed)
	assert.Equal(t, 40, pc.TotalLength)
	assert.LessOrEqual(t, pc.TotalLength, 50)
	assert.Contains(t, pc.FormattedContext, "Relevant context:\n")
	assert.Contains(t, pc.FormattedContext, "alpha bravo charlie")
	assert.Equal(t, 1, strings.Count(pc.FormattedContext, "[TEXT]"))
}

func TestGetContextForPromptRejectsBadBudget(t *testing.T) {
	engine, _ := keywordEngine(t, nil)

	_, err := engine.GetContextForPrompt(context.Background(), "assistant", "anything", 0)
	assert.True(t, types.IsValidation(err))
}

func TestGetContextForPromptEmptyStore(t *testing.T) {
	engine, _ := keywordEngine(t, nil)

	pc, err := engine.GetContextForPrompt(context.Background(), "assistant", "hello there", 500)
	require.NoError(t, err)

	assert.Equal(t, 0, pc.EntriesUsed)
	assert.Equal(t, 0, pc.TotalLength)
	assert.Equal(t, "hello there", pc.FormattedContext)
}

func TestAddEntryIndexesIntoGraph(t *testing.T) {
	graph := &stubGraph{}
	engine, store := keywordEngine(t, &Options{Graph: graph})
	ctx := context.Background()

	entry := &types.ContextEntry{ID: "e1", Content: "Acme hired Jane", Type: types.EntryTypeEvent}
	require.NoError(t, engine.AddEntry(ctx, entry, true))

	stored, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, types.EntryTypeEvent, stored.Type)

	assert.Error(t, engine.AddEntry(ctx, nil, false))
}
