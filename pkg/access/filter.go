package access

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/soundprediction/recall/pkg/types"
)

// Decision reasons returned by Check.
const (
	ReasonDenyAll         = "deny_all"
	ReasonAllowAll        = "allow_all"
	ReasonGranted         = "granted"
	ReasonUnknownConsumer = "unknown_consumer"
	ReasonDefaultScope    = "default_scope"
	ReasonNoMatchingRule  = "no_matching_rule"
	ReasonStoreError      = "rule_store_error"
)

// defaultScopes is the minimal grant applied to unknown consumers when
// AllowUnknownConsumers is set.
var defaultScopes = []types.EntryType{types.EntryTypeText, types.EntryTypeNote}

// Filter evaluates per-consumer access rules over retrieval candidates.
type Filter struct {
	store                 RuleStore
	allowUnknownConsumers bool
	logger                *slog.Logger
	now                   func() time.Time
}

// NewFilter creates a Filter. With allowUnknownConsumers, consumers without
// rules get the minimal default scope instead of a blanket deny.
func NewFilter(store RuleStore, allowUnknownConsumers bool, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{
		store:                 store,
		allowUnknownConsumers: allowUnknownConsumers,
		logger:                logger,
		now:                   time.Now,
	}
}

// Scopes returns the entry types the consumer may read at all, and whether
// the consumer has any access. Used by the orchestrator to shrink type
// filters before retrieval.
func (f *Filter) Scopes(ctx context.Context, consumerID string) ([]types.EntryType, bool, error) {
	rules, err := f.store.RulesFor(ctx, consumerID)
	if err != nil {
		return nil, false, err
	}
	if len(rules) == 0 {
		if f.allowUnknownConsumers {
			return append([]types.EntryType(nil), defaultScopes...), true, nil
		}
		return nil, false, nil
	}

	for _, rule := range rules {
		if rule.DenyAll {
			return nil, false, nil
		}
	}
	seen := map[types.EntryType]bool{}
	var scopes []types.EntryType
	for _, rule := range rules {
		if rule.AllowAll {
			return append([]types.EntryType(nil), types.EntryTypes...), true, nil
		}
		for _, s := range rule.Scopes {
			if !seen[s] {
				seen[s] = true
				scopes = append(scopes, s)
			}
		}
	}
	return scopes, len(scopes) > 0, nil
}

// MaxEntries returns the tightest entry budget across the consumer's rules,
// or 0 when unbounded.
func (f *Filter) MaxEntries(ctx context.Context, consumerID string) (int, error) {
	rules, err := f.store.RulesFor(ctx, consumerID)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, rule := range rules {
		if rule.MaxEntries > 0 && (max == 0 || rule.MaxEntries < max) {
			max = rule.MaxEntries
		}
	}
	return max, nil
}

// Check evaluates whether the consumer may read the candidate. Deny-all rules
// win over everything, then allow-all; otherwise a single rule must satisfy
// every constraint at once.
func (f *Filter) Check(ctx context.Context, consumerID string, entry *types.ContextEntry) (bool, string, error) {
	rules, err := f.store.RulesFor(ctx, consumerID)
	if err != nil {
		return false, ReasonStoreError, err
	}
	if len(rules) == 0 {
		if f.allowUnknownConsumers {
			for _, scope := range defaultScopes {
				if entry.Type == scope {
					return true, ReasonDefaultScope, nil
				}
			}
			return false, ReasonNoMatchingRule, nil
		}
		return false, ReasonUnknownConsumer, nil
	}

	for _, rule := range rules {
		if rule.DenyAll {
			return false, ReasonDenyAll, nil
		}
	}
	for _, rule := range rules {
		if rule.AllowAll {
			rule.RecordUsage()
			return true, ReasonAllowAll, nil
		}
	}

	now := f.now()
	for _, rule := range rules {
		if f.ruleGrants(rule, entry, now) {
			rule.RecordUsage()
			return true, ReasonGranted, nil
		}
	}
	return false, ReasonNoMatchingRule, nil
}

// ruleGrants requires every constraint of this one rule to hold.
func (f *Filter) ruleGrants(rule *types.AccessRule, entry *types.ContextEntry, now time.Time) bool {
	if !rule.HasScope(entry.Type) {
		return false
	}
	if !rule.WithinAge(entry, now) {
		return false
	}
	if rule.MaxContentLength > 0 && len(entry.Content) > rule.MaxContentLength {
		return false
	}
	if len(rule.AllowedTags) > 0 {
		for _, tag := range entry.Tags {
			if !containsString(rule.AllowedTags, tag) {
				return false
			}
		}
	}
	for _, excluded := range rule.ExcludedTags {
		if entry.HasTag(excluded) {
			return false
		}
	}
	if len(rule.AllowedSources) > 0 && !sourceMatches(rule.AllowedSources, entry.Source) {
		return false
	}
	if sourceMatches(rule.BlockedSources, entry.Source) {
		return false
	}
	return true
}

// Apply filters candidates, keeping order. Fails closed: a rule-store error
// yields an empty slice.
func (f *Filter) Apply(ctx context.Context, consumerID string, candidates []*types.ContextEntry) []*types.ContextEntry {
	filtered := make([]*types.ContextEntry, 0, len(candidates))
	for _, entry := range candidates {
		allowed, reason, err := f.Check(ctx, consumerID, entry)
		if err != nil {
			f.logger.Warn("access check failed, denying all candidates",
				"consumer_id", consumerID, "error", err)
			return []*types.ContextEntry{}
		}
		if allowed {
			filtered = append(filtered, entry)
		} else {
			f.logger.Debug("candidate filtered",
				"consumer_id", consumerID, "entry_id", entry.ID, "reason", reason)
		}
	}
	return filtered
}

func containsString(list []string, s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, item := range list {
		if strings.ToLower(strings.TrimSpace(item)) == s {
			return true
		}
	}
	return false
}

// sourceMatches does substring matching so a rule can block a whole source
// family ("slack") without enumerating channels.
func sourceMatches(patterns []string, source string) bool {
	if source == "" {
		return false
	}
	lower := strings.ToLower(source)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
