package types

import "time"

// SearchType identifies which strategy produced a document result.
type SearchType string

const (
	SearchTypeGraph   SearchType = "graph"
	SearchTypeVector  SearchType = "vector"
	SearchTypeKeyword SearchType = "keyword"
)

// DocumentResult is one hit from the knowledge graph store.
type DocumentResult struct {
	DocID           string     `json:"doc_id"`
	Content         string     `json:"content"`
	MatchedEntity   string     `json:"matched_entity,omitempty"`
	EntityType      string     `json:"entity_type,omitempty"`
	RelatedEntities []string   `json:"related_entities,omitempty"`
	Relevance       float64    `json:"relevance"`
	SearchType      SearchType `json:"search_type"`
}

// EntityRelationships is the bounded-depth neighborhood of one entity.
type EntityRelationships struct {
	Entity        Entity         `json:"entity"`
	Relationships []Relationship `json:"relationships"`
}

// GraphStatistics summarizes graph store contents.
type GraphStatistics struct {
	Documents     int64 `json:"documents"`
	Entities      int64 `json:"entities"`
	Relationships int64 `json:"relationships"`
}

// AddDocumentResult reports what a document ingestion produced.
type AddDocumentResult struct {
	DocID                string `json:"doc_id"`
	EntitiesExtracted    int    `json:"entities_extracted"`
	RelationshipsCreated int    `json:"relationships_created"`
}

// ScoreBreakdown itemizes the hybrid score components.
type ScoreBreakdown struct {
	Semantic  float64 `json:"semantic"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
}

// ScoredEntry pairs an entry with its request-scoped score.
type ScoredEntry struct {
	Entry     *ContextEntry  `json:"entry"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Tier names the retrieval strategy that served a request.
type Tier string

const (
	TierGraph    Tier = "graph"
	TierSemantic Tier = "semantic"
	TierKeyword  Tier = "keyword"
	TierRecency  Tier = "recency"
)

// StageCounts records candidate counts as the pipeline narrows them.
type StageCounts struct {
	Retrieved   int `json:"retrieved"`
	AfterAccess int `json:"after_access"`
	AfterDedup  int `json:"after_dedup"`
	Returned    int `json:"returned"`
}

// RetrievalMetadata describes how a retrieval request was served.
type RetrievalMetadata struct {
	ServedBy Tier          `json:"served_by"`
	Stages   StageCounts   `json:"stages"`
	Elapsed  time.Duration `json:"elapsed"`
	Reason   string        `json:"reason,omitempty"`
}
