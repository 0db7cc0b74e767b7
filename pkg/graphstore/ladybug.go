package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	ladybug "github.com/LadybugDB/go-ladybug"

	"github.com/soundprediction/recall/pkg/types"
)

// ladybugSchema declares the node and rel tables. Ladybug requires an
// explicit schema before any MERGE can run.
const ladybugSchema = `
    CREATE NODE TABLE IF NOT EXISTS Document (
        id STRING PRIMARY KEY,
        content STRING,
        embedding FLOAT[],
        metadata STRING,
        created_at TIMESTAMP,
        updated_at TIMESTAMP
    );
    CREATE NODE TABLE IF NOT EXISTS Entity (
        id STRING PRIMARY KEY,
        text STRING,
        type STRING
    );
    CREATE REL TABLE IF NOT EXISTS MENTIONS (
        FROM Document TO Entity,
        position INT64
    );
    CREATE REL TABLE IF NOT EXISTS RELATED (
        FROM Entity TO Entity,
        rel_type STRING,
        discovered_in STRING
    );
`

// LadybugConfig tunes the embedded database.
type LadybugConfig struct {
	DBPath            string
	BufferPoolSize    uint64
	MaxNumThreads     uint64
	EnableCompression bool
}

// LadybugDriver implements Driver on an embedded Ladybug database. The
// underlying C++ library is not thread-safe, so every query holds a mutex.
type LadybugDriver struct {
	db     *ladybug.Database
	client *ladybug.Connection
	mu     sync.Mutex
	closed bool
}

// NewLadybugDriver opens (or creates) the database at config.DBPath and
// applies the schema.
func NewLadybugDriver(config LadybugConfig) (*LadybugDriver, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("ladybug db path cannot be empty")
	}
	systemConfig := ladybug.SystemConfig{
		BufferPoolSize:    config.BufferPoolSize,
		MaxNumThreads:     config.MaxNumThreads,
		EnableCompression: config.EnableCompression,
		ReadOnly:          false,
	}
	db, err := ladybug.OpenDatabase(config.DBPath, systemConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open ladybug database: %w", err)
	}
	client, err := ladybug.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open ladybug connection: %w", err)
	}

	d := &LadybugDriver{db: db, client: client}
	if err := d.applySchema(); err != nil {
		d.Close(context.Background())
		return nil, err
	}
	return d, nil
}

func (l *LadybugDriver) applySchema() error {
	if _, err := l.query(ladybugSchema, nil); err != nil {
		return fmt.Errorf("failed to apply ladybug schema: %w", err)
	}
	return nil
}

// query runs one cypher statement and materializes the rows as maps keyed by
// column name.
func (l *LadybugDriver) query(cypher string, params map[string]any) ([]map[string]any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, types.ErrBackendUnavailable
	}

	var results *ladybug.QueryResult
	var err error
	if len(params) > 0 {
		stmt, err := l.client.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare query: %w", err)
		}
		results, err = l.client.Execute(stmt, params)
		if err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", err)
		}
	} else {
		results, err = l.client.Query(cypher)
		if err != nil {
			return nil, fmt.Errorf("failed to run query: %w", err)
		}
	}
	defer results.Close()

	columns := results.GetColumnNames()
	var rows []map[string]any
	for results.HasNext() {
		row, err := results.Next()
		if err != nil {
			continue
		}
		values, err := row.GetAsSlice()
		if err != nil {
			continue
		}
		dict := make(map[string]any, len(values))
		for i, value := range values {
			if i < len(columns) {
				dict[columns[i]] = value
			}
		}
		rows = append(rows, dict)
	}
	return rows, nil
}

// UpsertDocument merges a document row keyed by id.
func (l *LadybugDriver) UpsertDocument(ctx context.Context, doc *Document) error {
	metadata := "{}"
	if len(doc.Metadata) > 0 {
		raw, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = string(raw)
	}
	embedding := make([]any, len(doc.Embedding))
	for i, v := range doc.Embedding {
		embedding[i] = v
	}

	_, err := l.query(`
		MERGE (d:Document {id: $id})
		ON CREATE SET d.created_at = $now
		SET d.content = $content,
		    d.embedding = $embedding,
		    d.metadata = $metadata,
		    d.updated_at = $now
	`, map[string]any{
		"id":        doc.ID,
		"content":   doc.Content,
		"embedding": embedding,
		"metadata":  metadata,
		"now":       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document with the given id, or nil when absent.
func (l *LadybugDriver) GetDocument(ctx context.Context, docID string) (*Document, error) {
	rows, err := l.query(`
		MATCH (d:Document {id: $id})
		RETURN d.id AS id, d.content AS content, d.embedding AS embedding,
		       d.metadata AS metadata, d.created_at AS created_at, d.updated_at AS updated_at
	`, map[string]any{"id": docID})
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return documentFromRow(rows[0]), nil
}

// UpsertEntity merges an entity row keyed by its deterministic id.
func (l *LadybugDriver) UpsertEntity(ctx context.Context, entity types.Entity) error {
	_, err := l.query(`
		MERGE (e:Entity {id: $id})
		SET e.text = $text, e.type = $type
	`, map[string]any{
		"id":   entity.ID,
		"text": entity.Text,
		"type": entity.Type,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", entity.ID, err)
	}
	return nil
}

// FindEntity looks up an entity by text and type. Returns nil when absent.
func (l *LadybugDriver) FindEntity(ctx context.Context, text, entityType string) (*types.Entity, error) {
	entityID := types.EntityID(text, entityType)
	rows, err := l.query(`
		MATCH (e:Entity {id: $id})
		RETURN e.text AS text, e.type AS type
	`, map[string]any{"id": entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to find entity: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &types.Entity{
		ID:   entityID,
		Text: stringValue(rows[0]["text"]),
		Type: stringValue(rows[0]["type"]),
	}, nil
}

// UpsertMention merges a MENTIONS edge from document to entity.
func (l *LadybugDriver) UpsertMention(ctx context.Context, docID, entityID string, position int) error {
	_, err := l.query(`
		MATCH (d:Document {id: $docID})
		MATCH (e:Entity {id: $entityID})
		MERGE (d)-[m:MENTIONS]->(e)
		SET m.position = $position
	`, map[string]any{
		"docID":    docID,
		"entityID": entityID,
		"position": int64(position),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert mention %s -> %s: %w", docID, entityID, err)
	}
	return nil
}

// UpsertRelationship merges a RELATED edge keyed by (source, target, type).
func (l *LadybugDriver) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	_, err := l.query(`
		MATCH (s:Entity {id: $sourceID})
		MATCH (t:Entity {id: $targetID})
		MERGE (s)-[r:RELATED {rel_type: $relType}]->(t)
		SET r.discovered_in = $discoveredIn
	`, map[string]any{
		"sourceID":     rel.SourceID,
		"targetID":     rel.TargetID,
		"relType":      rel.Type,
		"discoveredIn": rel.DiscoveredIn,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s: %w", rel.Key(), err)
	}
	return nil
}

// DocumentsMentioning returns all documents with a MENTIONS edge to the entity.
func (l *LadybugDriver) DocumentsMentioning(ctx context.Context, entityID string) ([]*Document, error) {
	rows, err := l.query(`
		MATCH (d:Document)-[:MENTIONS]->(e:Entity {id: $entityID})
		RETURN d.id AS id, d.content AS content, d.embedding AS embedding,
		       d.metadata AS metadata, d.created_at AS created_at, d.updated_at AS updated_at
		ORDER BY d.id
	`, map[string]any{"entityID": entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents mentioning %s: %w", entityID, err)
	}
	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRow(row))
	}
	return docs, nil
}

// EntitiesMentionedIn returns all entities the document mentions.
func (l *LadybugDriver) EntitiesMentionedIn(ctx context.Context, docID string) ([]types.Entity, error) {
	rows, err := l.query(`
		MATCH (d:Document {id: $docID})-[:MENTIONS]->(e:Entity)
		RETURN e.id AS id, e.text AS text, e.type AS type
		ORDER BY e.text
	`, map[string]any{"docID": docID})
	if err != nil {
		return nil, fmt.Errorf("failed to query entities in %s: %w", docID, err)
	}
	entities := make([]types.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, types.Entity{
			ID:   stringValue(row["id"]),
			Text: stringValue(row["text"]),
			Type: stringValue(row["type"]),
		})
	}
	return entities, nil
}

// EntityRelationships returns RELATED edges reachable from the entity within
// the given number of hops.
func (l *LadybugDriver) EntityRelationships(ctx context.Context, entityID string, depth int) ([]types.Relationship, error) {
	if depth < 1 || depth > MaxTraversalDepth {
		return nil, fmt.Errorf("depth %d out of range", depth)
	}
	rows, err := l.query(fmt.Sprintf(`
		MATCH (start:Entity {id: $entityID})-[:RELATED*0..%d]-(s:Entity)
		MATCH (s)-[r:RELATED]->(t:Entity)
		RETURN DISTINCT s.id AS source_id, s.text AS source_text, s.type AS source_type,
		       t.id AS target_id, t.text AS target_text, t.type AS target_type,
		       r.rel_type AS rel_type, r.discovered_in AS discovered_in
	`, depth-1), map[string]any{"entityID": entityID})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse from %s: %w", entityID, err)
	}
	rels := make([]types.Relationship, 0, len(rows))
	for _, row := range rows {
		rels = append(rels, types.Relationship{
			SourceID:     stringValue(row["source_id"]),
			SourceText:   stringValue(row["source_text"]),
			SourceType:   stringValue(row["source_type"]),
			TargetID:     stringValue(row["target_id"]),
			TargetText:   stringValue(row["target_text"]),
			TargetType:   stringValue(row["target_type"]),
			Type:         stringValue(row["rel_type"]),
			DiscoveredIn: stringValue(row["discovered_in"]),
		})
	}
	return rels, nil
}

// AllDocuments returns every document row.
func (l *LadybugDriver) AllDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := l.query(`
		MATCH (d:Document)
		RETURN d.id AS id, d.content AS content, d.embedding AS embedding,
		       d.metadata AS metadata, d.created_at AS created_at, d.updated_at AS updated_at
		ORDER BY d.id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, documentFromRow(row))
	}
	return docs, nil
}

// Statistics counts documents, entities, and relationship edges.
func (l *LadybugDriver) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	stats := &types.GraphStatistics{}

	rows, err := l.query(`MATCH (d:Document) RETURN count(d) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if len(rows) > 0 {
		stats.Documents = intValue(rows[0]["n"])
	}

	rows, err = l.query(`MATCH (e:Entity) RETURN count(e) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	if len(rows) > 0 {
		stats.Entities = intValue(rows[0]["n"])
	}

	rows, err = l.query(`MATCH ()-[r:RELATED]->() RETURN count(r) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count relationships: %w", err)
	}
	if len(rows) > 0 {
		stats.Relationships = intValue(rows[0]["n"])
	}
	return stats, nil
}

// IsAvailable reports whether the connection is open.
func (l *LadybugDriver) IsAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed && l.client != nil
}

// Close shuts the connection and database down.
func (l *LadybugDriver) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.client != nil {
		l.client.Close()
	}
	if l.db != nil {
		l.db.Close()
	}
	return nil
}

func documentFromRow(row map[string]any) *Document {
	doc := &Document{
		ID:      stringValue(row["id"]),
		Content: stringValue(row["content"]),
	}
	if raw := stringValue(row["metadata"]); raw != "" && raw != "{}" {
		metadata := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &metadata); err == nil {
			doc.Metadata = metadata
		}
	}
	switch vec := row["embedding"].(type) {
	case []float32:
		doc.Embedding = vec
	case []any:
		if len(vec) > 0 {
			doc.Embedding = make([]float32, 0, len(vec))
			for _, v := range vec {
				switch f := v.(type) {
				case float32:
					doc.Embedding = append(doc.Embedding, f)
				case float64:
					doc.Embedding = append(doc.Embedding, float32(f))
				}
			}
		}
	}
	if t, ok := row["created_at"].(time.Time); ok {
		doc.CreatedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		doc.UpdatedAt = t
	}
	return doc
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
