package types

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// Common entity type labels. The set is open: extraction backends may emit
// labels outside this list and they are stored as-is.
const (
	EntityPerson   = "PERSON"
	EntityOrg      = "ORG"
	EntityLocation = "GPE"
	EntityMoney    = "MONEY"
	EntityDate     = "DATE"
	EntityProduct  = "PRODUCT"
)

// Relationship types produced by the inference table.
const (
	RelationWorksAt    = "WORKS_AT"
	RelationFounded    = "FOUNDED"
	RelationAcquired   = "ACQUIRED"
	RelationTransacted = "TRANSACTED"
	RelationOccurredOn = "OCCURRED_ON"
	RelationLivesIn    = "LIVES_IN"
	RelationMentions   = "MENTIONS"
)

// Entity is a typed span of text discovered by extraction.
type Entity struct {
	ID   string `json:"id" mapstructure:"id"`
	Text string `json:"text" mapstructure:"text"`
	Type string `json:"type" mapstructure:"type"`
}

// Span locates an extracted entity inside its source text.
type Span struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EntityID derives a deterministic id from normalized text and type, so
// extracting the same entity twice merges instead of duplicating.
func EntityID(text, entityType string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha1.Sum([]byte(normalized + "|" + entityType))
	return hex.EncodeToString(sum[:])
}

// NewEntity builds an Entity with its deterministic id.
func NewEntity(text, entityType string) Entity {
	return Entity{
		ID:   EntityID(text, entityType),
		Text: strings.TrimSpace(text),
		Type: entityType,
	}
}

// Relationship is a directed, typed edge between two entities, recorded with
// the document it was discovered in. Uniqueness is per (source, target, type).
type Relationship struct {
	SourceID     string `json:"source_id" mapstructure:"source_id"`
	SourceText   string `json:"source_text" mapstructure:"source_text"`
	SourceType   string `json:"source_type" mapstructure:"source_type"`
	TargetID     string `json:"target_id" mapstructure:"target_id"`
	TargetText   string `json:"target_text" mapstructure:"target_text"`
	TargetType   string `json:"target_type" mapstructure:"target_type"`
	Type         string `json:"type" mapstructure:"type"`
	DiscoveredIn string `json:"discovered_in,omitempty" mapstructure:"discovered_in"`
}

// Key identifies the edge for merge semantics.
func (r *Relationship) Key() string {
	return r.SourceID + "|" + r.TargetID + "|" + r.Type
}

// relationRule keys the closed inference table.
type relationRule struct {
	sourceType string // "*" matches any
	targetType string
	verb       string
}

// relationTable maps (source type, target type, verb lemma) to a relation.
// Combinations not listed here default to RelationMentions.
var relationTable = map[relationRule]string{
	{EntityPerson, EntityOrg, "work"}:      RelationWorksAt,
	{EntityPerson, EntityOrg, "join"}:      RelationWorksAt,
	{EntityPerson, EntityOrg, "found"}:     RelationFounded,
	{EntityPerson, EntityOrg, "start"}:     RelationFounded,
	{EntityOrg, EntityOrg, "acquire"}:      RelationAcquired,
	{EntityOrg, EntityOrg, "buy"}:          RelationAcquired,
	{EntityPerson, EntityLocation, "live"}: RelationLivesIn,
	{EntityPerson, EntityLocation, "move"}: RelationLivesIn,
	{"*", EntityMoney, "pay"}:              RelationTransacted,
	{"*", EntityMoney, "cost"}:             RelationTransacted,
	{"*", EntityDate, "occur"}:             RelationOccurredOn,
	{"*", EntityDate, "happen"}:            RelationOccurredOn,
}

// InferRelation resolves a relation type from the closed inference table.
func InferRelation(sourceType, targetType, verbLemma string) string {
	if rel, ok := relationTable[relationRule{sourceType, targetType, verbLemma}]; ok {
		return rel
	}
	if rel, ok := relationTable[relationRule{"*", targetType, verbLemma}]; ok {
		return rel
	}
	return RelationMentions
}

// LemmatizeVerb reduces a verb surface form to the lemma used by the
// inference table. This is a small suffix stripper, not a full lemmatizer;
// it only needs to cover the verbs the table knows about.
func LemmatizeVerb(verb string) string {
	v := strings.ToLower(strings.TrimSpace(verb))
	switch {
	case v == "bought":
		return "buy"
	case v == "paid":
		return "pay"
	case strings.HasSuffix(v, "ied"):
		return v[:len(v)-3] + "y"
	case strings.HasSuffix(v, "ing") && len(v) > 4:
		return v[:len(v)-3]
	case strings.HasSuffix(v, "ed") && len(v) > 3:
		stem := v[:len(v)-2]
		// founded -> found, acquired -> acquire, moved -> move
		if _, ok := knownLemma(stem); ok {
			return stem
		}
		if lemma, ok := knownLemma(stem + "e"); ok {
			return lemma
		}
		// occurred -> occur
		if len(stem) > 2 && stem[len(stem)-1] == stem[len(stem)-2] {
			if lemma, ok := knownLemma(stem[:len(stem)-1]); ok {
				return lemma
			}
		}
		return stem
	case strings.HasSuffix(v, "s") && len(v) > 2 && !strings.HasSuffix(v, "ss"):
		return v[:len(v)-1]
	default:
		return v
	}
}

func knownLemma(v string) (string, bool) {
	for rule := range relationTable {
		if rule.verb == v {
			return v, true
		}
	}
	return "", false
}
