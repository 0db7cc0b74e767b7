package graphstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/soundprediction/recall/pkg/embedder"
	"github.com/soundprediction/recall/pkg/extract"
	"github.com/soundprediction/recall/pkg/types"
	"github.com/soundprediction/recall/pkg/utils"
)

// entityMatchBase is the relevance contribution of a direct entity match.
const entityMatchBase = 0.8

// DefaultTimeout bounds individual backend calls.
const DefaultTimeout = 5 * time.Second

// Store is the knowledge graph store: document ingestion with entity and
// relationship extraction, and graph-anchored search with a vector fallback.
type Store struct {
	driver    Driver
	extractor extract.Extractor
	embedder  embedder.Client
	timeout   time.Duration
	logger    *slog.Logger
}

// Options tunes Store construction.
type Options struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewStore creates a Store. The extractor and embedder may be unavailable;
// ingestion then stores bare documents and search degrades accordingly.
func NewStore(driver Driver, ex extract.Extractor, emb embedder.Client, opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if ex == nil {
		ex = extract.Noop{}
	}
	return &Store{
		driver:    driver,
		extractor: ex,
		embedder:  emb,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
}

// IsAvailable reports whether the graph backend is reachable.
func (s *Store) IsAvailable() bool {
	return s.driver != nil && s.driver.IsAvailable()
}

// bounded derives a timeout context for one backend call.
func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// wrapBackend normalizes backend failures: timeouts and unreachable backends
// become ErrBackendUnavailable so callers move to the next tier.
func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", types.ErrBackendUnavailable, "backend call timed out")
	}
	if errors.Is(err, types.ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", types.ErrBackendUnavailable, err)
}

// AddDocument upserts a document node and, when extraction is requested and
// available, its entity mentions and inferred relationship edges. The whole
// operation is idempotent: repeating it with the same id and content leaves
// the same graph.
func (s *Store) AddDocument(ctx context.Context, content, docID string, metadata map[string]string, extractEntities bool) (*types.AddDocumentResult, error) {
	if !s.IsAvailable() {
		return nil, types.ErrBackendUnavailable
	}
	if docID == "" {
		return nil, types.NewValidationError("doc_id", "cannot be empty")
	}
	if content == "" {
		return nil, types.NewValidationError("content", "cannot be empty")
	}

	doc := &Document{ID: docID, Content: content, Metadata: metadata}

	if s.embedder != nil && s.embedder.IsAvailable() {
		bctx, cancel := s.bounded(ctx)
		vec, err := s.embedder.EmbedSingle(bctx, content)
		cancel()
		if err != nil {
			s.logger.Warn("document embedding failed, storing without vector",
				"doc_id", docID, "error", err)
		} else {
			doc.Embedding = vec
		}
	}

	bctx, cancel := s.bounded(ctx)
	err := s.driver.UpsertDocument(bctx, doc)
	cancel()
	if err != nil {
		return nil, wrapBackend(err)
	}

	result := &types.AddDocumentResult{DocID: docID}
	if !extractEntities {
		return result, nil
	}

	entities, err := s.extractor.ExtractEntities(ctx, content)
	if err != nil {
		// extraction is a soft failure: the document is already stored
		s.logger.Warn("entity extraction failed", "doc_id", docID, "error", err)
		return result, nil
	}

	for entityType, spans := range entities {
		for _, span := range spans {
			entity := types.NewEntity(span.Text, entityType)

			bctx, cancel := s.bounded(ctx)
			err := s.driver.UpsertEntity(bctx, entity)
			cancel()
			if err != nil {
				return result, wrapBackend(err)
			}

			bctx, cancel = s.bounded(ctx)
			err = s.driver.UpsertMention(bctx, docID, entity.ID, span.Start)
			cancel()
			if err != nil {
				return result, wrapBackend(err)
			}
			result.EntitiesExtracted++
		}
	}

	rels, err := s.extractor.ExtractRelationships(ctx, content, entities)
	if err != nil {
		s.logger.Warn("relationship extraction failed", "doc_id", docID, "error", err)
		return result, nil
	}
	for _, rel := range rels {
		rel.DiscoveredIn = docID
		bctx, cancel := s.bounded(ctx)
		err := s.driver.UpsertRelationship(bctx, rel)
		cancel()
		if err != nil {
			return result, wrapBackend(err)
		}
		result.RelationshipsCreated++
	}

	return result, nil
}

// Search finds documents relevant to the query. With useGraph, entities
// extracted from the query anchor a traversal over MENTIONS edges; when that
// yields nothing and embeddings are available, it falls back to pure vector
// similarity over all documents.
func (s *Store) Search(ctx context.Context, query string, limit int, useGraph bool, minRelevance float64) ([]types.DocumentResult, error) {
	if !s.IsAvailable() {
		return nil, types.ErrBackendUnavailable
	}
	if limit <= 0 {
		return nil, types.NewValidationError("limit", "must be positive")
	}

	var queryVec []float32
	if s.embedder != nil && s.embedder.IsAvailable() {
		bctx, cancel := s.bounded(ctx)
		vec, err := s.embedder.EmbedSingle(bctx, query)
		cancel()
		if err != nil {
			s.logger.Warn("query embedding failed", "error", err)
		} else {
			queryVec = vec
		}
	}

	var results []types.DocumentResult
	if useGraph {
		graphResults, err := s.graphSearch(ctx, query, queryVec)
		if err != nil {
			return nil, err
		}
		results = graphResults
	}

	if len(results) == 0 && queryVec != nil {
		vectorResults, err := s.vectorSearch(ctx, queryVec)
		if err != nil {
			return nil, err
		}
		results = vectorResults
	}

	return finalizeResults(results, limit, minRelevance), nil
}

func (s *Store) graphSearch(ctx context.Context, query string, queryVec []float32) ([]types.DocumentResult, error) {
	entities, err := s.extractor.ExtractEntities(ctx, query)
	if err != nil {
		s.logger.Warn("query entity extraction failed", "error", err)
		return nil, nil
	}

	var results []types.DocumentResult
	for entityType, spans := range entities {
		for _, span := range spans {
			entityID := types.EntityID(span.Text, entityType)

			bctx, cancel := s.bounded(ctx)
			docs, err := s.driver.DocumentsMentioning(bctx, entityID)
			cancel()
			if err != nil {
				return nil, wrapBackend(err)
			}

			for _, doc := range docs {
				relevance := entityMatchBase
				if queryVec != nil && doc.Embedding != nil {
					relevance = 0.5*entityMatchBase + 0.5*utils.ClampedCosine(queryVec, doc.Embedding)
				}

				bctx, cancel := s.bounded(ctx)
				related, err := s.driver.EntitiesMentionedIn(bctx, doc.ID)
				cancel()
				if err != nil {
					return nil, wrapBackend(err)
				}

				var relatedNames []string
				for _, rel := range related {
					if rel.ID != entityID {
						relatedNames = append(relatedNames, rel.Text)
					}
				}

				results = append(results, types.DocumentResult{
					DocID:           doc.ID,
					Content:         doc.Content,
					MatchedEntity:   span.Text,
					EntityType:      entityType,
					RelatedEntities: relatedNames,
					Relevance:       relevance,
					SearchType:      types.SearchTypeGraph,
				})
			}
		}
	}
	return results, nil
}

func (s *Store) vectorSearch(ctx context.Context, queryVec []float32) ([]types.DocumentResult, error) {
	bctx, cancel := s.bounded(ctx)
	docs, err := s.driver.AllDocuments(bctx)
	cancel()
	if err != nil {
		return nil, wrapBackend(err)
	}

	var results []types.DocumentResult
	for _, doc := range docs {
		if doc.Embedding == nil {
			continue
		}
		results = append(results, types.DocumentResult{
			DocID:      doc.ID,
			Content:    doc.Content,
			Relevance:  utils.ClampedCosine(queryVec, doc.Embedding),
			SearchType: types.SearchTypeVector,
		})
	}
	return results, nil
}

// finalizeResults deduplicates by doc id keeping the highest score, sorts
// descending, applies the relevance floor, and truncates.
func finalizeResults(results []types.DocumentResult, limit int, minRelevance float64) []types.DocumentResult {
	best := make(map[string]types.DocumentResult)
	for _, r := range results {
		if existing, ok := best[r.DocID]; !ok || r.Relevance > existing.Relevance {
			best[r.DocID] = r
		}
	}

	deduped := make([]types.DocumentResult, 0, len(best))
	for _, r := range best {
		if r.Relevance >= minRelevance {
			deduped = append(deduped, r)
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Relevance != deduped[j].Relevance {
			return deduped[i].Relevance > deduped[j].Relevance
		}
		return deduped[i].DocID < deduped[j].DocID
	})

	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

// EntityRelationships traverses relationship edges from the named entity up
// to depth hops. Depth outside 1..MaxTraversalDepth is a validation error.
func (s *Store) EntityRelationships(ctx context.Context, text, entityType string, depth int) (*types.EntityRelationships, error) {
	if depth < 1 || depth > MaxTraversalDepth {
		return nil, types.NewValidationError("depth", fmt.Sprintf("must be between 1 and %d", MaxTraversalDepth))
	}
	if !s.IsAvailable() {
		return nil, types.ErrBackendUnavailable
	}

	bctx, cancel := s.bounded(ctx)
	entity, err := s.driver.FindEntity(bctx, text, entityType)
	cancel()
	if err != nil {
		return nil, wrapBackend(err)
	}
	if entity == nil {
		return &types.EntityRelationships{
			Entity: types.Entity{Text: text, Type: entityType},
		}, nil
	}

	bctx, cancel = s.bounded(ctx)
	rels, err := s.driver.EntityRelationships(bctx, entity.ID, depth)
	cancel()
	if err != nil {
		return nil, wrapBackend(err)
	}

	return &types.EntityRelationships{Entity: *entity, Relationships: rels}, nil
}

// Statistics reports graph contents.
func (s *Store) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	if !s.IsAvailable() {
		return nil, types.ErrBackendUnavailable
	}
	bctx, cancel := s.bounded(ctx)
	defer cancel()

	stats, err := s.driver.Statistics(bctx)
	if err != nil {
		return nil, wrapBackend(err)
	}
	return stats, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}
