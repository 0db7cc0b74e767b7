package types

import (
	"sync/atomic"
	"time"
)

// AccessRule grants or denies a consumer access to context entries.
// Rules are owned by the permission-management collaborator; the engine only
// reads them and increments UsageCount.
type AccessRule struct {
	ConsumerID string `json:"consumer_id" yaml:"consumer_id" mapstructure:"consumer_id"`

	// AllowAll and DenyAll are mutually exclusive short-circuits.
	AllowAll bool `json:"allow_all,omitempty" yaml:"allow_all" mapstructure:"allow_all"`
	DenyAll  bool `json:"deny_all,omitempty" yaml:"deny_all" mapstructure:"deny_all"`

	// Scopes are entry types this rule grants access to.
	Scopes []EntryType `json:"scopes,omitempty" yaml:"scopes" mapstructure:"scopes"`

	MaxEntries       int      `json:"max_entries,omitempty" yaml:"max_entries" mapstructure:"max_entries"`
	MaxAgeDays       int      `json:"max_age_days,omitempty" yaml:"max_age_days" mapstructure:"max_age_days"`
	AllowedTags      []string `json:"allowed_tags,omitempty" yaml:"allowed_tags" mapstructure:"allowed_tags"`
	ExcludedTags     []string `json:"excluded_tags,omitempty" yaml:"excluded_tags" mapstructure:"excluded_tags"`
	MaxContentLength int      `json:"max_content_length,omitempty" yaml:"max_content_length" mapstructure:"max_content_length"`
	AllowedSources   []string `json:"allowed_sources,omitempty" yaml:"allowed_sources" mapstructure:"allowed_sources"`
	BlockedSources   []string `json:"blocked_sources,omitempty" yaml:"blocked_sources" mapstructure:"blocked_sources"`

	usageCount atomic.Int64
}

// Validate rejects contradictory rules.
func (r *AccessRule) Validate() error {
	if r.ConsumerID == "" {
		return ErrEmptyID
	}
	if r.AllowAll && r.DenyAll {
		return ErrConflictingRule
	}
	return nil
}

// HasScope reports whether the rule covers the given entry type.
func (r *AccessRule) HasScope(t EntryType) bool {
	if r.AllowAll {
		return true
	}
	for _, s := range r.Scopes {
		if s == t {
			return true
		}
	}
	return false
}

// RecordUsage increments the rule's usage counter. Safe under concurrent
// callers.
func (r *AccessRule) RecordUsage() {
	r.usageCount.Add(1)
}

// UsageCount returns how many times the rule has granted access.
func (r *AccessRule) UsageCount() int64 {
	return r.usageCount.Load()
}

// WithinAge reports whether the entry satisfies the rule's max-age bound.
func (r *AccessRule) WithinAge(e *ContextEntry, now time.Time) bool {
	if r.MaxAgeDays <= 0 {
		return true
	}
	return e.AgeDays(now) <= float64(r.MaxAgeDays)
}
