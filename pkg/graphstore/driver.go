// Package graphstore persists documents, entities, and relationship edges in
// a knowledge graph and serves graph-traversal and vector search over them.
//
// The Store implements the retrieval semantics (entity-anchored search with
// a vector fallback, bounded-depth traversal); Driver implementations bind
// it to Neo4j, an embedded Ladybug database, or an in-process map store.
package graphstore

import (
	"context"
	"time"

	"github.com/soundprediction/recall/pkg/types"
)

// Document is a stored unit of graph-indexed content.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// MaxTraversalDepth bounds entity-relationship traversal.
const MaxTraversalDepth = 3

// Driver is the graph database binding. All mutating operations have merge
// semantics: re-upserting an identical node or edge must not duplicate it.
type Driver interface {
	// UpsertDocument creates or updates a document node keyed by ID.
	UpsertDocument(ctx context.Context, doc *Document) error

	// GetDocument retrieves a document node, or nil when absent.
	GetDocument(ctx context.Context, docID string) (*Document, error)

	// UpsertEntity creates or updates an entity node keyed by its
	// deterministic id.
	UpsertEntity(ctx context.Context, entity types.Entity) error

	// FindEntity resolves an entity by text, and type when non-empty.
	// Returns nil when absent.
	FindEntity(ctx context.Context, text, entityType string) (*types.Entity, error)

	// UpsertMention merges a Document-MENTIONS->Entity edge carrying the
	// character offset of the mention.
	UpsertMention(ctx context.Context, docID, entityID string, position int) error

	// UpsertRelationship merges a typed edge between two entities.
	// Uniqueness is per (source, target, type).
	UpsertRelationship(ctx context.Context, rel types.Relationship) error

	// DocumentsMentioning returns documents connected to the entity through
	// MENTIONS edges.
	DocumentsMentioning(ctx context.Context, entityID string) ([]*Document, error)

	// EntitiesMentionedIn returns the entities a document mentions.
	EntitiesMentionedIn(ctx context.Context, docID string) ([]types.Entity, error)

	// EntityRelationships returns relationship edges reachable from the
	// entity within depth hops.
	EntityRelationships(ctx context.Context, entityID string, depth int) ([]types.Relationship, error)

	// AllDocuments lists every document node.
	AllDocuments(ctx context.Context) ([]*Document, error)

	// Statistics counts documents, entities, and relationship edges.
	Statistics(ctx context.Context) (*types.GraphStatistics, error)

	// IsAvailable reports whether the backend is reachable. Checked at
	// construction and refreshed on connection errors.
	IsAvailable() bool

	// Close releases the connection.
	Close(ctx context.Context) error
}
