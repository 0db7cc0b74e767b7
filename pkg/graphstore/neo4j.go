package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/soundprediction/recall/pkg/types"
)

// Neo4jDriver implements Driver against a Neo4j server. All writes use MERGE
// so repeated ingestion of the same document or entity is a no-op.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver connects to a Neo4j server.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jDriver{client: client, database: database}, nil
}

func (n *Neo4jDriver) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

// UpsertDocument merges a Document node keyed by id.
func (n *Neo4jDriver) UpsertDocument(ctx context.Context, doc *Document) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	embedding := make([]any, len(doc.Embedding))
	for i, v := range doc.Embedding {
		embedding[i] = float64(v)
	}
	metadata := make(map[string]any, len(doc.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = v
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (d:Document {id: $id})
			ON CREATE SET d.created_at = $now
			SET d.content = $content,
			    d.embedding = $embedding,
			    d.metadata_keys = $metadataKeys,
			    d.updated_at = $now
		`
		metadataKeys := make([]any, 0, len(metadata))
		for k := range metadata {
			metadataKeys = append(metadataKeys, k)
		}
		params := map[string]any{
			"id":           doc.ID,
			"content":      doc.Content,
			"embedding":    embedding,
			"metadataKeys": metadataKeys,
			"now":          time.Now().UTC().Format(time.RFC3339),
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}

	if len(metadata) > 0 {
		_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, `MATCH (d:Document {id: $id}) SET d += $metadata`, map[string]any{
				"id":       doc.ID,
				"metadata": metadata,
			})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("failed to set document metadata %s: %w", doc.ID, err)
		}
	}
	return nil
}

// GetDocument returns the document with the given id, or nil when absent.
func (n *Neo4jDriver) GetDocument(ctx context.Context, docID string) (*Document, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (d:Document {id: $id}) RETURN d`, map[string]any{"id": docID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, nil
	}
	nodeValue, found := records[0].Get("d")
	if !found {
		return nil, nil
	}
	node, ok := nodeValue.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for document node: %T", nodeValue)
	}
	return documentFromNode(node), nil
}

// UpsertEntity merges an Entity node keyed by its deterministic id.
func (n *Neo4jDriver) UpsertEntity(ctx context.Context, entity types.Entity) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (e:Entity {id: $id})
			SET e.text = $text, e.type = $type
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":   entity.ID,
			"text": entity.Text,
			"type": entity.Type,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", entity.ID, err)
	}
	return nil
}

// FindEntity looks up an entity by text and type. Returns nil when absent.
func (n *Neo4jDriver) FindEntity(ctx context.Context, text, entityType string) (*types.Entity, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	entityID := types.EntityID(text, entityType)
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (e:Entity {id: $id}) RETURN e.text AS text, e.type AS type`, map[string]any{"id": entityID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find entity: %w", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, nil
	}
	text, _ = recordString(records[0], "text")
	typ, _ := recordString(records[0], "type")
	return &types.Entity{ID: entityID, Text: text, Type: typ}, nil
}

// UpsertMention merges a MENTIONS edge from document to entity.
func (n *Neo4jDriver) UpsertMention(ctx context.Context, docID, entityID string, position int) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (d:Document {id: $docID})
			MATCH (e:Entity {id: $entityID})
			MERGE (d)-[m:MENTIONS]->(e)
			SET m.position = $position
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"docID":    docID,
			"entityID": entityID,
			"position": position,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert mention %s -> %s: %w", docID, entityID, err)
	}
	return nil
}

// UpsertRelationship merges a RELATED edge keyed by (source, target, type).
func (n *Neo4jDriver) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (s:Entity {id: $sourceID})
			MATCH (t:Entity {id: $targetID})
			MERGE (s)-[r:RELATED {type: $type}]->(t)
			SET r.discovered_in = $discoveredIn
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"sourceID":     rel.SourceID,
			"targetID":     rel.TargetID,
			"type":         rel.Type,
			"discoveredIn": rel.DiscoveredIn,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert relationship %s: %w", rel.Key(), err)
	}
	return nil
}

// DocumentsMentioning returns all documents with a MENTIONS edge to the entity.
func (n *Neo4jDriver) DocumentsMentioning(ctx context.Context, entityID string) ([]*Document, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (d:Document)-[:MENTIONS]->(e:Entity {id: $entityID})
			RETURN d
			ORDER BY d.id
		`
		res, err := tx.Run(ctx, query, map[string]any{"entityID": entityID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents mentioning %s: %w", entityID, err)
	}

	records := result.([]*db.Record)
	docs := make([]*Document, 0, len(records))
	for _, record := range records {
		nodeValue, found := record.Get("d")
		if !found {
			continue
		}
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			continue
		}
		docs = append(docs, documentFromNode(node))
	}
	return docs, nil
}

// EntitiesMentionedIn returns all entities the document mentions.
func (n *Neo4jDriver) EntitiesMentionedIn(ctx context.Context, docID string) ([]types.Entity, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (d:Document {id: $docID})-[:MENTIONS]->(e:Entity)
			RETURN e.id AS id, e.text AS text, e.type AS type
			ORDER BY e.text
		`
		res, err := tx.Run(ctx, query, map[string]any{"docID": docID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query entities in %s: %w", docID, err)
	}

	records := result.([]*db.Record)
	entities := make([]types.Entity, 0, len(records))
	for _, record := range records {
		id, _ := recordString(record, "id")
		text, _ := recordString(record, "text")
		typ, _ := recordString(record, "type")
		entities = append(entities, types.Entity{ID: id, Text: text, Type: typ})
	}
	return entities, nil
}

// EntityRelationships returns RELATED edges reachable from the entity within
// the given number of hops.
func (n *Neo4jDriver) EntityRelationships(ctx context.Context, entityID string, depth int) ([]types.Relationship, error) {
	if depth < 1 || depth > MaxTraversalDepth {
		return nil, fmt.Errorf("depth %d out of range", depth)
	}
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// variable-length patterns cannot be parameterized, depth is
		// validated above
		query := fmt.Sprintf(`
			MATCH (start:Entity {id: $entityID})-[:RELATED*0..%d]-(s:Entity)
			MATCH (s)-[r:RELATED]->(t:Entity)
			RETURN DISTINCT s.id AS source_id, s.text AS source_text, s.type AS source_type,
			       t.id AS target_id, t.text AS target_text, t.type AS target_type,
			       r.type AS rel_type, r.discovered_in AS discovered_in
		`, depth-1)
		res, err := tx.Run(ctx, query, map[string]any{"entityID": entityID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse from %s: %w", entityID, err)
	}

	records := result.([]*db.Record)
	rels := make([]types.Relationship, 0, len(records))
	for _, record := range records {
		rel := types.Relationship{}
		rel.SourceID, _ = recordString(record, "source_id")
		rel.SourceText, _ = recordString(record, "source_text")
		rel.SourceType, _ = recordString(record, "source_type")
		rel.TargetID, _ = recordString(record, "target_id")
		rel.TargetText, _ = recordString(record, "target_text")
		rel.TargetType, _ = recordString(record, "target_type")
		rel.Type, _ = recordString(record, "rel_type")
		rel.DiscoveredIn, _ = recordString(record, "discovered_in")
		rels = append(rels, rel)
	}
	return rels, nil
}

// AllDocuments returns every document node.
func (n *Neo4jDriver) AllDocuments(ctx context.Context) ([]*Document, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (d:Document) RETURN d ORDER BY d.id`, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	records := result.([]*db.Record)
	docs := make([]*Document, 0, len(records))
	for _, record := range records {
		nodeValue, found := record.Get("d")
		if !found {
			continue
		}
		node, ok := nodeValue.(dbtype.Node)
		if !ok {
			continue
		}
		docs = append(docs, documentFromNode(node))
	}
	return docs, nil
}

// Statistics counts documents, entities, and relationship edges.
func (n *Neo4jDriver) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (d:Document) WITH count(d) AS docs
			MATCH (e:Entity) WITH docs, count(e) AS ents
			OPTIONAL MATCH ()-[r:RELATED]->()
			RETURN docs, ents, count(r) AS rels
		`
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect statistics: %w", err)
	}

	record := result.(*db.Record)
	stats := &types.GraphStatistics{}
	if v, ok := record.Get("docs"); ok {
		stats.Documents, _ = v.(int64)
	}
	if v, ok := record.Get("ents"); ok {
		stats.Entities, _ = v.(int64)
	}
	if v, ok := record.Get("rels"); ok {
		stats.Relationships, _ = v.(int64)
	}
	return stats, nil
}

// IsAvailable verifies connectivity with a short-lived ping.
func (n *Neo4jDriver) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return n.client.VerifyConnectivity(ctx) == nil
}

// Close shuts down the underlying driver.
func (n *Neo4jDriver) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func documentFromNode(node dbtype.Node) *Document {
	doc := &Document{Metadata: map[string]string{}}
	reserved := map[string]bool{
		"id": true, "content": true, "embedding": true,
		"metadata_keys": true, "created_at": true, "updated_at": true,
	}
	metadataKeys := map[string]bool{}
	if v, ok := node.Props["metadata_keys"]; ok {
		if keys, ok := v.([]any); ok {
			for _, k := range keys {
				if s, ok := k.(string); ok {
					metadataKeys[s] = true
				}
			}
		}
	}
	for key, value := range node.Props {
		switch key {
		case "id":
			doc.ID, _ = value.(string)
		case "content":
			doc.Content, _ = value.(string)
		case "embedding":
			if vec, ok := value.([]any); ok && len(vec) > 0 {
				doc.Embedding = make([]float32, 0, len(vec))
				for _, f := range vec {
					if fv, ok := f.(float64); ok {
						doc.Embedding = append(doc.Embedding, float32(fv))
					}
				}
			}
		case "created_at":
			if s, ok := value.(string); ok {
				doc.CreatedAt, _ = time.Parse(time.RFC3339, s)
			}
		case "updated_at":
			if s, ok := value.(string); ok {
				doc.UpdatedAt, _ = time.Parse(time.RFC3339, s)
			}
		default:
			if !reserved[key] && metadataKeys[key] {
				if s, ok := value.(string); ok {
					doc.Metadata[key] = s
				}
			}
		}
	}
	return doc
}

func recordString(record *db.Record, key string) (string, bool) {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
