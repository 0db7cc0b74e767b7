package graphstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/recall/pkg/types"
)

// stubExtractor returns a fixed entity map for any text.
type stubExtractor struct {
	entities map[string][]types.Span
	rels     []types.Relationship
	err      error
}

func (s *stubExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.entities, nil
}

func (s *stubExtractor) ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rels, nil
}

func (s *stubExtractor) IsAvailable() bool { return s.err == nil }
func (s *stubExtractor) Close() error      { return nil }

// stubEmbedder returns the same vector for every input.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

func (s *stubEmbedder) Dimensions() int   { return len(s.vec) }
func (s *stubEmbedder) IsAvailable() bool { return s.err == nil }
func (s *stubEmbedder) Close() error      { return nil }

func acmeExtractor() *stubExtractor {
	return &stubExtractor{
		entities: map[string][]types.Span{
			types.EntityOrg: {{Text: "Acme", Start: 0, End: 4}},
		},
	}
}

func TestAddDocumentIdempotent(t *testing.T) {
	driver := NewMemoryDriver()
	store := NewStore(driver, acmeExtractor(), nil, nil)
	ctx := context.Background()

	first, err := store.AddDocument(ctx, "Acme shipped a release.", "doc-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EntitiesExtracted)

	second, err := store.AddDocument(ctx, "Acme shipped a release.", "doc-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, first.EntitiesExtracted, second.EntitiesExtracted)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)
	assert.Equal(t, int64(1), stats.Entities)
}

func TestAddDocumentValidation(t *testing.T) {
	store := NewStore(NewMemoryDriver(), nil, nil, nil)
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "content", "", nil, false)
	assert.True(t, types.IsValidation(err))

	_, err = store.AddDocument(ctx, "", "doc-1", nil, false)
	assert.True(t, types.IsValidation(err))
}

func TestAddDocumentExtractionSoftFailure(t *testing.T) {
	driver := NewMemoryDriver()
	failing := &stubExtractor{err: errors.New("model not loaded")}
	store := NewStore(driver, failing, nil, nil)
	ctx := context.Background()

	result, err := store.AddDocument(ctx, "Acme shipped a release.", "doc-1", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.EntitiesExtracted)

	doc, err := driver.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Acme shipped a release.", doc.Content)
}

func TestSearchGraphTier(t *testing.T) {
	driver := NewMemoryDriver()
	store := NewStore(driver, acmeExtractor(), nil, nil)
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "Acme shipped a release.", "doc-1", nil, true)
	require.NoError(t, err)
	_, err = store.AddDocument(ctx, "Unrelated gardening note.", "doc-2", nil, false)
	require.NoError(t, err)

	results, err := store.Search(ctx, "what did Acme do", 10, true, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocID)
	assert.Equal(t, types.SearchTypeGraph, results[0].SearchType)
	assert.Equal(t, "Acme", results[0].MatchedEntity)
	assert.InDelta(t, 0.8, results[0].Relevance, 1e-9)
}

func TestSearchGraphScoreBlendsEmbedding(t *testing.T) {
	driver := NewMemoryDriver()
	emb := &stubEmbedder{vec: []float32{1, 0, 0}}
	store := NewStore(driver, acmeExtractor(), emb, nil)
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "Acme shipped a release.", "doc-1", nil, true)
	require.NoError(t, err)

	results, err := store.Search(ctx, "Acme release", 10, true, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// identical vectors: 0.5*0.8 + 0.5*1.0
	assert.InDelta(t, 0.9, results[0].Relevance, 1e-9)
}

func TestSearchVectorFallback(t *testing.T) {
	driver := NewMemoryDriver()
	emb := &stubEmbedder{vec: []float32{0, 1, 0}}
	// extractor finds nothing so the graph pass yields no anchors
	empty := &stubExtractor{entities: map[string][]types.Span{}}
	store := NewStore(driver, empty, emb, nil)
	ctx := context.Background()

	_, err := store.AddDocument(ctx, "some document", "doc-1", nil, false)
	require.NoError(t, err)

	results, err := store.Search(ctx, "anything", 10, true, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.SearchTypeVector, results[0].SearchType)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
}

func TestSearchUnavailableBackend(t *testing.T) {
	driver := NewMemoryDriver()
	driver.SetAvailable(false)
	store := NewStore(driver, nil, nil, nil)

	_, err := store.Search(context.Background(), "query", 10, true, 0)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

func TestSearchLimitValidation(t *testing.T) {
	store := NewStore(NewMemoryDriver(), nil, nil, nil)
	_, err := store.Search(context.Background(), "query", 0, true, 0)
	assert.True(t, types.IsValidation(err))
}

func TestFinalizeResultsDedupAndOrder(t *testing.T) {
	results := []types.DocumentResult{
		{DocID: "a", Relevance: 0.4},
		{DocID: "a", Relevance: 0.9},
		{DocID: "b", Relevance: 0.7},
		{DocID: "c", Relevance: 0.1},
	}
	out := finalizeResults(results, 2, 0.2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].DocID)
	assert.InDelta(t, 0.9, out[0].Relevance, 1e-9)
	assert.Equal(t, "b", out[1].DocID)
}

func TestEntityRelationshipsDepthValidation(t *testing.T) {
	store := NewStore(NewMemoryDriver(), nil, nil, nil)
	ctx := context.Background()

	for _, depth := range []int{0, -1, MaxTraversalDepth + 1} {
		_, err := store.EntityRelationships(ctx, "Acme", types.EntityOrg, depth)
		assert.True(t, types.IsValidation(err), "depth %d", depth)
	}
}

func TestEntityRelationshipsUnknownEntity(t *testing.T) {
	store := NewStore(NewMemoryDriver(), nil, nil, nil)

	out, err := store.EntityRelationships(context.Background(), "Nobody", types.EntityPerson, 1)
	require.NoError(t, err)
	assert.Equal(t, "Nobody", out.Entity.Text)
	assert.Empty(t, out.Relationships)
}

func TestEntityRelationshipsTraversal(t *testing.T) {
	driver := NewMemoryDriver()
	ctx := context.Background()

	jane := types.NewEntity("Jane", types.EntityPerson)
	acme := types.NewEntity("Acme", types.EntityOrg)
	globex := types.NewEntity("Globex", types.EntityOrg)
	require.NoError(t, driver.UpsertEntity(ctx, jane))
	require.NoError(t, driver.UpsertEntity(ctx, acme))
	require.NoError(t, driver.UpsertEntity(ctx, globex))

	require.NoError(t, driver.UpsertRelationship(ctx, types.Relationship{
		SourceID: jane.ID, SourceText: "Jane", SourceType: types.EntityPerson,
		TargetID: acme.ID, TargetText: "Acme", TargetType: types.EntityOrg,
		Type: types.RelationWorksAt,
	}))
	require.NoError(t, driver.UpsertRelationship(ctx, types.Relationship{
		SourceID: acme.ID, SourceText: "Acme", SourceType: types.EntityOrg,
		TargetID: globex.ID, TargetText: "Globex", TargetType: types.EntityOrg,
		Type: types.RelationAcquired,
	}))

	store := NewStore(driver, nil, nil, nil)

	depth1, err := store.EntityRelationships(ctx, "Jane", types.EntityPerson, 1)
	require.NoError(t, err)
	require.Len(t, depth1.Relationships, 1)
	assert.Equal(t, types.RelationWorksAt, depth1.Relationships[0].Type)

	depth2, err := store.EntityRelationships(ctx, "Jane", types.EntityPerson, 2)
	require.NoError(t, err)
	assert.Len(t, depth2.Relationships, 2)
}

func TestMemoryDriverMergeSemantics(t *testing.T) {
	driver := NewMemoryDriver()
	ctx := context.Background()

	doc := &Document{ID: "doc-1", Content: "first"}
	require.NoError(t, driver.UpsertDocument(ctx, doc))
	require.NoError(t, driver.UpsertDocument(ctx, &Document{ID: "doc-1", Content: "second"}))

	got, err := driver.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)

	stats, err := driver.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Documents)
}

func TestMemoryDriverUnavailable(t *testing.T) {
	driver := NewMemoryDriver()
	driver.SetAvailable(false)
	ctx := context.Background()

	err := driver.UpsertDocument(ctx, &Document{ID: "d", Content: "c"})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)

	_, err = driver.AllDocuments(ctx)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

func TestBreakerDriverOpensAfterFailures(t *testing.T) {
	driver := NewMemoryDriver()
	driver.SetAvailable(false)
	wrapped := WithBreaker(driver, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = wrapped.AllDocuments(ctx)
	}

	assert.False(t, wrapped.IsAvailable())
	_, err := wrapped.AllDocuments(ctx)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}
