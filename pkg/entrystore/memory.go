package entrystore

import (
	"context"
	"sync"
	"time"

	"github.com/soundprediction/recall/pkg/types"
)

// MemoryStore is an in-process Store used by tests and the CLI default.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*types.ContextEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*types.ContextEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Put(ctx context.Context, entry *types.ContextEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := copyEntry(entry)
	stored.SetTags(stored.Tags)
	now := m.now()
	if existing, ok := m.entries[entry.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
		stored.AccessCount = existing.AccessCount
		stored.LastAccessedAt = existing.LastAccessedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.entries[entry.ID] = stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*types.ContextEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return copyEntry(entry), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, q Query) ([]*types.ContextEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	var out []*types.ContextEntry
	for _, entry := range m.entries {
		if matches(entry, q, now) {
			out = append(out, copyEntry(entry))
		}
	}
	sortedNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) RecordAccess(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil
	}
	entry.AccessCount++
	entry.LastAccessedAt = m.now()
	return nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryStore) Close() error { return nil }

func copyEntry(entry *types.ContextEntry) *types.ContextEntry {
	dup := *entry
	if entry.Tags != nil {
		dup.Tags = append([]string(nil), entry.Tags...)
	}
	if entry.Metadata != nil {
		dup.Metadata = make(map[string]string, len(entry.Metadata))
		for k, v := range entry.Metadata {
			dup.Metadata[k] = v
		}
	}
	if entry.Embedding != nil {
		dup.Embedding = append([]float32(nil), entry.Embedding...)
	}
	return &dup
}
