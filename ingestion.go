package recall

import (
	"context"

	"github.com/soundprediction/recall/pkg/types"
)

// AddEntry stores a context entry and drops any cached embedding for it so
// the next retrieval re-embeds the new content. When indexInGraph is set and
// a graph store is configured, the entry is also indexed as a document with
// entity extraction; graph failures are logged and never fail the ingest.
func (e *Engine) AddEntry(ctx context.Context, entry *types.ContextEntry, indexInGraph bool) error {
	if entry == nil {
		return types.NewValidationError("entry", "must not be nil")
	}
	if err := e.entries.Put(ctx, entry); err != nil {
		return err
	}
	e.index.Invalidate(entry.ID)
	if e.metrics != nil {
		e.metrics.EntryIngested()
	}

	if indexInGraph && e.graph != nil {
		if _, err := e.graph.AddDocument(ctx, entry.Content, entry.ID, entry.Metadata, true); err != nil {
			e.logger.Warn("graph indexing failed for entry", "entry_id", entry.ID, "error", err)
		} else if e.metrics != nil {
			e.metrics.DocumentIngested()
		}
	}
	return nil
}

// AddDocument indexes a raw document into the knowledge graph without
// creating a context entry.
func (e *Engine) AddDocument(ctx context.Context, content, docID string, metadata map[string]string) (*types.AddDocumentResult, error) {
	if e.graph == nil {
		return nil, types.ErrBackendUnavailable
	}
	result, err := e.graph.AddDocument(ctx, content, docID, metadata, true)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.DocumentIngested()
	}
	return result, nil
}

// EntityRelationships traverses the knowledge graph around a named entity.
func (e *Engine) EntityRelationships(ctx context.Context, text, entityType string, depth int) (*types.EntityRelationships, error) {
	if e.graph == nil {
		return nil, types.ErrBackendUnavailable
	}
	return e.graph.EntityRelationships(ctx, text, entityType, depth)
}

// GraphStatistics reports node and relationship counts from the graph store.
func (e *Engine) GraphStatistics(ctx context.Context) (*types.GraphStatistics, error) {
	if e.graph == nil {
		return nil, types.ErrBackendUnavailable
	}
	return e.graph.Statistics(ctx)
}

// Close releases the graph store connection, if any. The entry store is owned
// by the caller.
func (e *Engine) Close(ctx context.Context) error {
	if e.graph == nil {
		return nil
	}
	return e.graph.Close(ctx)
}
