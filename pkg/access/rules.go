// Package access filters retrieval candidates through per-consumer rules.
// The filter fails closed: any rule-store error yields an empty result, never
// the unfiltered input.
package access

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/recall/pkg/types"
)

// RuleStore supplies the access rules configured for a consumer.
type RuleStore interface {
	// RulesFor returns every rule configured for the consumer. An empty
	// slice means the consumer is unknown.
	RulesFor(ctx context.Context, consumerID string) ([]*types.AccessRule, error)
	Close() error
}

// MemoryRuleStore holds rules in process. Used by tests and the CLI default.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string][]*types.AccessRule
}

// NewMemoryRuleStore creates an empty store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string][]*types.AccessRule)}
}

// Add registers a rule for its consumer.
func (m *MemoryRuleStore) Add(rule *types.AccessRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ConsumerID] = append(m.rules[rule.ConsumerID], rule)
	return nil
}

func (m *MemoryRuleStore) RulesFor(ctx context.Context, consumerID string) ([]*types.AccessRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := m.rules[consumerID]
	out := make([]*types.AccessRule, len(rules))
	copy(out, rules)
	return out, nil
}

func (m *MemoryRuleStore) Close() error { return nil }

// yamlRuleCacheTTL bounds how long a loaded rule file is reused before the
// file is re-read.
const yamlRuleCacheTTL = 30 * time.Second

// yamlRuleFile is the on-disk shape: a flat list of rules.
type yamlRuleFile struct {
	Rules []*types.AccessRule `yaml:"rules"`
}

// YAMLRuleStore reads rules from a YAML file, caching the parsed result for a
// short interval so hot retrieval paths do not hit the filesystem.
type YAMLRuleStore struct {
	path string

	mu       sync.RWMutex
	byID     map[string][]*types.AccessRule
	loadedAt time.Time
}

// NewYAMLRuleStore loads rules from path. The file must exist and parse at
// construction time; later reload failures keep serving the last good copy.
func NewYAMLRuleStore(path string) (*YAMLRuleStore, error) {
	s := &YAMLRuleStore{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *YAMLRuleStore) reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}
	var file yamlRuleFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse rule file %s: %w", s.path, err)
	}

	byID := make(map[string][]*types.AccessRule)
	for _, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("invalid rule for consumer %q: %w", rule.ConsumerID, err)
		}
		byID[rule.ConsumerID] = append(byID[rule.ConsumerID], rule)
	}

	s.mu.Lock()
	s.byID = byID
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *YAMLRuleStore) RulesFor(ctx context.Context, consumerID string) ([]*types.AccessRule, error) {
	s.mu.RLock()
	stale := time.Since(s.loadedAt) > yamlRuleCacheTTL
	s.mu.RUnlock()

	if stale {
		if err := s.reload(); err != nil {
			// keep serving the previous copy
			s.mu.Lock()
			s.loadedAt = time.Now()
			s.mu.Unlock()
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := s.byID[consumerID]
	out := make([]*types.AccessRule, len(rules))
	copy(out, rules)
	return out, nil
}

func (s *YAMLRuleStore) Close() error { return nil }
