package entrystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/recall/pkg/types"
)

func newEntry(id, content string, entryType types.EntryType, tags ...string) *types.ContextEntry {
	return &types.ContextEntry{
		ID:      id,
		Content: content,
		Type:    entryType,
		Tags:    tags,
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := newEntry("e1", "I drive a Tesla", types.EntryTypeText, "Car", " location ")
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "I drive a Tesla", got.Content)
	assert.Equal(t, []string{"car", "location"}, got.Tags)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStorePutPreservesCreatedAtAndCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newEntry("e1", "first", types.EntryTypeNote)))
	require.NoError(t, store.RecordAccess(ctx, "e1"))

	first, err := store.Get(ctx, "e1")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, newEntry("e1", "second", types.EntryTypeNote)))
	second, err := store.Get(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, "second", second.Content)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, int64(1), second.AccessCount)
}

func TestMemoryStorePutValidates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.Error(t, store.Put(ctx, newEntry("", "content", types.EntryTypeText)))
	assert.Error(t, store.Put(ctx, newEntry("e1", "", types.EntryTypeText)))
	assert.Error(t, store.Put(ctx, newEntry("e1", "content", types.EntryType("bogus"))))
}

func TestMemoryStoreListFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newEntry("e1", "I drive a Tesla", types.EntryTypeText, "car")))
	require.NoError(t, store.Put(ctx, newEntry("e2", "I have two cats", types.EntryTypeText, "pets")))
	require.NoError(t, store.Put(ctx, newEntry("e3", "dark mode please", types.EntryTypePreference)))

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"by type", Query{Types: []types.EntryType{types.EntryTypePreference}}, []string{"e3"}},
		{"by tag", Query{Tags: []string{"car"}}, []string{"e1"}},
		{"by text", Query{TextContains: "tesla"}, []string{"e1"}},
		{"no match", Query{Tags: []string{"absent"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.q)
			require.NoError(t, err)
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		entry := newEntry(id, "content "+id, types.EntryTypeText)
		entry.CreatedAt = base.AddDate(0, 0, i)
		require.NoError(t, store.Put(ctx, entry))
	}

	got, err := store.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[2].ID)

	limited, err := store.List(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new", limited[0].ID)
}

func TestMemoryStoreRecordAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newEntry("e1", "content", types.EntryTypeText)))
	require.NoError(t, store.RecordAccess(ctx, "e1"))
	require.NoError(t, store.RecordAccess(ctx, "e1"))
	// unknown id is a no-op
	require.NoError(t, store.RecordAccess(ctx, "ghost"))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.False(t, got.LastAccessedAt.IsZero())
}

func TestMemoryStoreDefensiveCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := newEntry("e1", "content", types.EntryTypeText, "tag")
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	got.Content = "mutated"
	got.Tags[0] = "mutated"

	again, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "content", again.Content)
	assert.Equal(t, []string{"tag"}, again.Tags)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore("")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	entry := newEntry("e1", "I drive a Tesla", types.EntryTypeText, "car")
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "I drive a Tesla", got.Content)
	assert.Equal(t, []string{"car"}, got.Tags)

	require.NoError(t, store.RecordAccess(ctx, "e1"))
	got, err = store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.AccessCount)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, store.Delete(ctx, "e1"))
	gone, err := store.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestBadgerStoreList(t *testing.T) {
	store, err := NewBadgerStore("")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newEntry("e1", "I drive a Tesla", types.EntryTypeText, "car")))
	require.NoError(t, store.Put(ctx, newEntry("e2", "I have two cats", types.EntryTypeText, "pets")))

	got, err := store.List(ctx, Query{Tags: []string{"car"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}
