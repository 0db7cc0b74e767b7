// Package entrystore persists context entries. The engine treats it as a
// collaborator: retrieval reads entries through Query and mutates them only
// via RecordAccess.
package entrystore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/soundprediction/recall/pkg/types"
)

// Query filters a List call. Zero values mean "no constraint".
type Query struct {
	Types          []types.EntryType
	Tags           []string
	SourceContains string
	TextContains   string
	MaxAgeDays     int
	Limit          int
}

// Store is the persistence contract for context entries.
type Store interface {
	// Put inserts or replaces the entry, stamping UpdatedAt.
	Put(ctx context.Context, entry *types.ContextEntry) error
	// Get returns the entry or nil when absent.
	Get(ctx context.Context, id string) (*types.ContextEntry, error)
	// Delete removes the entry. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// List returns entries matching the query, newest first.
	List(ctx context.Context, q Query) ([]*types.ContextEntry, error)
	// RecordAccess increments the access counter and stamps the access time.
	RecordAccess(ctx context.Context, id string) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
	Close() error
}

// matches applies the query constraints to one entry.
func matches(entry *types.ContextEntry, q Query, now time.Time) bool {
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if entry.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range q.Tags {
		if !entry.HasTag(tag) {
			return false
		}
	}
	if q.SourceContains != "" && !strings.Contains(strings.ToLower(entry.Source), strings.ToLower(q.SourceContains)) {
		return false
	}
	if q.TextContains != "" && !strings.Contains(strings.ToLower(entry.Content), strings.ToLower(q.TextContains)) {
		return false
	}
	if q.MaxAgeDays > 0 && entry.AgeDays(now) > float64(q.MaxAgeDays) {
		return false
	}
	return true
}

// sortedNewestFirst orders entries by CreatedAt descending, id ascending to
// keep ties stable.
func sortedNewestFirst(entries []*types.ContextEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}
