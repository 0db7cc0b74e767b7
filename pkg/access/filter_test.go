package access

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/recall/pkg/types"
)

// failingRuleStore simulates an unreachable rule backend.
type failingRuleStore struct{}

func (failingRuleStore) RulesFor(ctx context.Context, consumerID string) ([]*types.AccessRule, error) {
	return nil, errors.New("rule store unreachable")
}
func (failingRuleStore) Close() error { return nil }

func entryOf(id string, entryType types.EntryType, tags ...string) *types.ContextEntry {
	return &types.ContextEntry{
		ID:        id,
		Content:   "content of " + id,
		Type:      entryType,
		Tags:      types.NormalizeTags(tags),
		CreatedAt: time.Now().UTC(),
	}
}

func TestCheckDenyAllWins(t *testing.T) {
	store := NewMemoryRuleStore()
	require.NoError(t, store.Add(&types.AccessRule{ConsumerID: "bot", AllowAll: true}))
	require.NoError(t, store.Add(&types.AccessRule{ConsumerID: "bot", DenyAll: true}))
	filter := NewFilter(store, false, nil)

	allowed, reason, err := filter.Check(context.Background(), "bot", entryOf("e1", types.EntryTypeText))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, ReasonDenyAll, reason)
}

func TestCheckAllowAll(t *testing.T) {
	store := NewMemoryRuleStore()
	rule := &types.AccessRule{ConsumerID: "bot", AllowAll: true}
	require.NoError(t, store.Add(rule))
	filter := NewFilter(store, false, nil)

	allowed, reason, err := filter.Check(context.Background(), "bot", entryOf("e1", types.EntryTypeEvent))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, ReasonAllowAll, reason)
	assert.Equal(t, int64(1), rule.UsageCount())
}

func TestCheckSingleRuleAllConstraints(t *testing.T) {
	store := NewMemoryRuleStore()
	require.NoError(t, store.Add(&types.AccessRule{
		ConsumerID:       "bot",
		Scopes:           []types.EntryType{types.EntryTypeText},
		MaxAgeDays:       7,
		AllowedTags:      []string{"work", "car"},
		ExcludedTags:     []string{"secret"},
		MaxContentLength: 100,
		BlockedSources:   []string{"slack"},
	}))
	filter := NewFilter(store, false, nil)
	ctx := context.Background()

	ok, _, err := filter.Check(ctx, "bot", entryOf("e1", types.EntryTypeText, "work"))
	require.NoError(t, err)
	assert.True(t, ok)

	tests := []struct {
		name  string
		entry *types.ContextEntry
	}{
		{"wrong scope", entryOf("e2", types.EntryTypeEvent, "work")},
		{"excluded tag", entryOf("e3", types.EntryTypeText, "work", "secret")},
		{"tag outside allow list", entryOf("e4", types.EntryTypeText, "gossip")},
		{"too old", func() *types.ContextEntry {
			e := entryOf("e5", types.EntryTypeText, "work")
			e.CreatedAt = time.Now().AddDate(0, 0, -30)
			return e
		}()},
		{"blocked source", func() *types.ContextEntry {
			e := entryOf("e6", types.EntryTypeText, "work")
			e.Source = "slack-random"
			return e
		}()},
		{"content too long", func() *types.ContextEntry {
			e := entryOf("e7", types.EntryTypeText, "work")
			e.Content = string(make([]byte, 200))
			return e
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason, err := filter.Check(ctx, "bot", tt.entry)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, ReasonNoMatchingRule, reason)
		})
	}
}

func TestCheckUnknownConsumer(t *testing.T) {
	denying := NewFilter(NewMemoryRuleStore(), false, nil)
	ok, reason, err := denying.Check(context.Background(), "ghost", entryOf("e1", types.EntryTypeText))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ReasonUnknownConsumer, reason)

	permissive := NewFilter(NewMemoryRuleStore(), true, nil)
	ok, reason, err = permissive.Check(context.Background(), "ghost", entryOf("e2", types.EntryTypeNote))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReasonDefaultScope, reason)

	// the default scope does not cover events
	ok, _, err = permissive.Check(context.Background(), "ghost", entryOf("e3", types.EntryTypeEvent))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplyFailsClosed(t *testing.T) {
	filter := NewFilter(failingRuleStore{}, true, nil)
	candidates := []*types.ContextEntry{
		entryOf("e1", types.EntryTypeText),
		entryOf("e2", types.EntryTypeText),
	}

	out := filter.Apply(context.Background(), "bot", candidates)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestApplyKeepsOrder(t *testing.T) {
	store := NewMemoryRuleStore()
	require.NoError(t, store.Add(&types.AccessRule{
		ConsumerID: "bot",
		Scopes:     []types.EntryType{types.EntryTypeText},
	}))
	filter := NewFilter(store, false, nil)

	out := filter.Apply(context.Background(), "bot", []*types.ContextEntry{
		entryOf("first", types.EntryTypeText),
		entryOf("skip", types.EntryTypeEvent),
		entryOf("second", types.EntryTypeText),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, "second", out[1].ID)
}

func TestScopes(t *testing.T) {
	store := NewMemoryRuleStore()
	require.NoError(t, store.Add(&types.AccessRule{
		ConsumerID: "bot",
		Scopes:     []types.EntryType{types.EntryTypeText, types.EntryTypePreference},
	}))
	filter := NewFilter(store, false, nil)

	scopes, ok, err := filter.Scopes(context.Background(), "bot")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ElementsMatch(t, []types.EntryType{types.EntryTypeText, types.EntryTypePreference}, scopes)

	_, ok, err = filter.Scopes(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMaxEntriesTightestWins(t *testing.T) {
	store := NewMemoryRuleStore()
	require.NoError(t, store.Add(&types.AccessRule{ConsumerID: "bot", Scopes: []types.EntryType{types.EntryTypeText}, MaxEntries: 10}))
	require.NoError(t, store.Add(&types.AccessRule{ConsumerID: "bot", Scopes: []types.EntryType{types.EntryTypeNote}, MaxEntries: 3}))
	filter := NewFilter(store, false, nil)

	max, err := filter.MaxEntries(context.Background(), "bot")
	require.NoError(t, err)
	assert.Equal(t, 3, max)
}

func TestYAMLRuleStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - consumer_id: chatbot
    scopes: [text, note]
    max_age_days: 30
    excluded_tags: [secret]
  - consumer_id: admin
    allow_all: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := NewYAMLRuleStore(path)
	require.NoError(t, err)
	defer store.Close()

	rules, err := store.RulesFor(context.Background(), "chatbot")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []types.EntryType{types.EntryTypeText, types.EntryTypeNote}, rules[0].Scopes)
	assert.Equal(t, 30, rules[0].MaxAgeDays)

	admin, err := store.RulesFor(context.Background(), "admin")
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.True(t, admin[0].AllowAll)

	none, err := store.RulesFor(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestYAMLRuleStoreRejectsConflicts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - consumer_id: broken
    allow_all: true
    deny_all: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := NewYAMLRuleStore(path)
	assert.ErrorIs(t, err, types.ErrConflictingRule)
}
