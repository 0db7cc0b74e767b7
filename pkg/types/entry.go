package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Validation errors
var (
	ErrEmptyID         = errors.New("id cannot be empty")
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrConflictingRule = errors.New("allow_all and deny_all are mutually exclusive")
)

// EntryType classifies a context entry.
type EntryType string

const (
	// EntryTypeText is free-form text content.
	EntryTypeText EntryType = "text"
	// EntryTypeFile is content sourced from a file.
	EntryTypeFile EntryType = "file"
	// EntryTypeEvent records something that happened at a point in time.
	EntryTypeEvent EntryType = "event"
	// EntryTypePreference records a stated user preference.
	EntryTypePreference EntryType = "preference"
	// EntryTypeNote is a short note the user asked to remember.
	EntryTypeNote EntryType = "note"
)

// EntryTypes lists all valid entry types.
var EntryTypes = []EntryType{
	EntryTypeText,
	EntryTypeFile,
	EntryTypeEvent,
	EntryTypePreference,
	EntryTypeNote,
}

// ParseEntryType converts a string to an EntryType.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range EntryTypes {
		if t == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown entry type %q", s)
}

// Valid reports whether t is one of the closed entry types.
func (t EntryType) Valid() bool {
	for _, known := range EntryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ContextEntry is a stored unit of context that may be injected into prompts.
type ContextEntry struct {
	ID       string            `json:"id" mapstructure:"id"`
	Content  string            `json:"content" mapstructure:"content"`
	Type     EntryType         `json:"type" mapstructure:"type"`
	Source   string            `json:"source,omitempty" mapstructure:"source"`
	Tags     []string          `json:"tags,omitempty" mapstructure:"tags"`
	Metadata map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`

	CreatedAt      time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" mapstructure:"updated_at"`
	AccessCount    int64     `json:"access_count" mapstructure:"access_count"`
	LastAccessedAt time.Time `json:"last_accessed_at,omitempty" mapstructure:"last_accessed_at"`

	// RelevanceScore is request-scoped: computed during retrieval and never
	// persisted as an authoritative value.
	RelevanceScore float64 `json:"relevance_score,omitempty" mapstructure:"relevance_score"`

	Embedding []float32 `json:"embedding,omitempty" mapstructure:"embedding"`
}

// Validate checks required fields.
func (e *ContextEntry) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.Content == "" {
		return ErrEmptyContent
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
	return nil
}

// SetTags normalizes and stores the given tags.
func (e *ContextEntry) SetTags(tags []string) {
	e.Tags = NormalizeTags(tags)
}

// HasTag reports whether the entry carries the given tag (normalized form).
func (e *ContextEntry) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AgeDays returns the whole days elapsed since the entry was created.
func (e *ContextEntry) AgeDays(now time.Time) float64 {
	return now.Sub(e.CreatedAt).Hours() / 24
}

// NormalizeTags lowercases, trims, and de-duplicates tags. The result is
// sorted so repeated normalization of the same input yields the same slice.
func NormalizeTags(tags []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set.Add(t)
		}
	}
	if set.Cardinality() == 0 {
		return nil
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

// NormalizeContent canonicalizes content for duplicate detection: lowercase
// with runs of whitespace collapsed to single spaces.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}
