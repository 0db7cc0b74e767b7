package graphstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/recall/pkg/types"
)

// MemoryDriver is an in-process Driver backed by maps. It serves tests, the
// CLI default, and deployments that do not run a graph database.
type MemoryDriver struct {
	mu            sync.RWMutex
	documents     map[string]*Document
	entities      map[string]types.Entity
	mentions      map[string]map[string]int // docID -> entityID -> position
	relationships map[string]types.Relationship
	available     bool
}

// NewMemoryDriver creates an empty in-memory graph.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		documents:     make(map[string]*Document),
		entities:      make(map[string]types.Entity),
		mentions:      make(map[string]map[string]int),
		relationships: make(map[string]types.Relationship),
		available:     true,
	}
}

// SetAvailable toggles availability, used to exercise fallback paths.
func (m *MemoryDriver) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

func (m *MemoryDriver) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

func (m *MemoryDriver) check() error {
	if !m.IsAvailable() {
		return types.ErrBackendUnavailable
	}
	return nil
}

func (m *MemoryDriver) UpsertDocument(ctx context.Context, doc *Document) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.documents[doc.ID]; ok {
		doc.CreatedAt = existing.CreatedAt
	} else if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()
	copied := *doc
	m.documents[doc.ID] = &copied
	return nil
}

func (m *MemoryDriver) GetDocument(ctx context.Context, docID string) (*Document, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[docID]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (m *MemoryDriver) UpsertEntity(ctx context.Context, entity types.Entity) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[entity.ID] = entity
	return nil
}

func (m *MemoryDriver) FindEntity(ctx context.Context, text, entityType string) (*types.Entity, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entityType != "" {
		if e, ok := m.entities[types.EntityID(text, entityType)]; ok {
			copied := e
			return &copied, nil
		}
		return nil, nil
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, e := range m.entities {
		if strings.ToLower(e.Text) == normalized {
			copied := e
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MemoryDriver) UpsertMention(ctx context.Context, docID, entityID string, position int) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mentions[docID] == nil {
		m.mentions[docID] = make(map[string]int)
	}
	m.mentions[docID][entityID] = position
	return nil
}

func (m *MemoryDriver) UpsertRelationship(ctx context.Context, rel types.Relationship) error {
	if err := m.check(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relationships[rel.Key()] = rel
	return nil
}

func (m *MemoryDriver) DocumentsMentioning(ctx context.Context, entityID string) ([]*Document, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var docs []*Document
	for docID, mentioned := range m.mentions {
		if _, ok := mentioned[entityID]; ok {
			if doc, exists := m.documents[docID]; exists {
				copied := *doc
				docs = append(docs, &copied)
			}
		}
	}
	return docs, nil
}

func (m *MemoryDriver) EntitiesMentionedIn(ctx context.Context, docID string) ([]types.Entity, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entities []types.Entity
	for entityID := range m.mentions[docID] {
		if e, ok := m.entities[entityID]; ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (m *MemoryDriver) EntityRelationships(ctx context.Context, entityID string, depth int) ([]types.Relationship, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	visited := map[string]struct{}{entityID: {}}
	frontier := []string{entityID}
	seen := make(map[string]struct{})
	var result []types.Relationship

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, rel := range m.relationships {
				if rel.SourceID != id && rel.TargetID != id {
					continue
				}
				if _, dup := seen[rel.Key()]; dup {
					continue
				}
				seen[rel.Key()] = struct{}{}
				result = append(result, rel)

				other := rel.TargetID
				if rel.TargetID == id {
					other = rel.SourceID
				}
				if _, ok := visited[other]; !ok {
					visited[other] = struct{}{}
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return result, nil
}

func (m *MemoryDriver) AllDocuments(ctx context.Context) ([]*Document, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]*Document, 0, len(m.documents))
	for _, doc := range m.documents {
		copied := *doc
		docs = append(docs, &copied)
	}
	return docs, nil
}

func (m *MemoryDriver) Statistics(ctx context.Context) (*types.GraphStatistics, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &types.GraphStatistics{
		Documents:     int64(len(m.documents)),
		Entities:      int64(len(m.entities)),
		Relationships: int64(len(m.relationships)),
	}, nil
}

func (m *MemoryDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = false
	return nil
}
