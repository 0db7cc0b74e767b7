// Package extract provides entity and relationship extraction over context
// text. Backends wrap different NLP engines (GLiNER, RustBert, prose); a
// missing backend is a soft failure and yields empty results, never an error.
package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/soundprediction/recall/pkg/types"
)

// Extractor turns raw text into typed entity spans and relationship triples.
type Extractor interface {
	// ExtractEntities returns entity spans grouped by entity type label.
	ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error)

	// ExtractRelationships infers typed relationships between previously
	// extracted entities by scanning verb-headed clauses.
	ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error)

	// IsAvailable reports whether the NLP backend loaded. Checked once at
	// construction and cached; callers treat false as "no entities found".
	IsAvailable() bool

	// Close releases backend resources.
	Close() error
}

// Noop is the absent-backend extractor: it always reports unavailable and
// returns empty results.
type Noop struct{}

func (Noop) ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error) {
	return map[string][]types.Span{}, nil
}

func (Noop) ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error) {
	return nil, nil
}

func (Noop) IsAvailable() bool { return false }
func (Noop) Close() error      { return nil }

// entityRef locates one extracted entity inside the source text.
type entityRef struct {
	span       types.Span
	entityType string
}

// verbRef locates a verb occurrence inside the source text.
type verbRef struct {
	lemma string
	start int
	end   int
}

// inferRelationships is the shared relationship builder: for each verb, pick
// the nearest entity ending before it as subject and the nearest entity
// starting after it as object, then map (subject type, object type, lemma)
// through the closed inference table.
func inferRelationships(entities map[string][]types.Span, verbs []verbRef) []types.Relationship {
	refs := flattenEntities(entities)
	if len(refs) < 2 || len(verbs) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var rels []types.Relationship

	for _, verb := range verbs {
		subject, ok := nearestBefore(refs, verb.start)
		if !ok {
			continue
		}
		object, ok := nearestAfter(refs, verb.end)
		if !ok {
			continue
		}
		if subject.span.Text == object.span.Text {
			continue
		}

		rel := types.Relationship{
			SourceID:   types.EntityID(subject.span.Text, subject.entityType),
			SourceText: subject.span.Text,
			SourceType: subject.entityType,
			TargetID:   types.EntityID(object.span.Text, object.entityType),
			TargetText: object.span.Text,
			TargetType: object.entityType,
			Type:       types.InferRelation(subject.entityType, object.entityType, verb.lemma),
		}
		if _, dup := seen[rel.Key()]; dup {
			continue
		}
		seen[rel.Key()] = struct{}{}
		rels = append(rels, rel)
	}

	return rels
}

func flattenEntities(entities map[string][]types.Span) []entityRef {
	var refs []entityRef
	for entityType, spans := range entities {
		for _, span := range spans {
			refs = append(refs, entityRef{span: span, entityType: entityType})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].span.Start < refs[j].span.Start })
	return refs
}

func nearestBefore(refs []entityRef, pos int) (entityRef, bool) {
	best := -1
	for i, r := range refs {
		if r.span.End <= pos {
			best = i
		}
	}
	if best < 0 {
		return entityRef{}, false
	}
	return refs[best], true
}

func nearestAfter(refs []entityRef, pos int) (entityRef, bool) {
	for _, r := range refs {
		if r.span.Start >= pos {
			return r, true
		}
	}
	return entityRef{}, false
}

// tableVerbs are the surface forms recognized by backends that lack POS
// tagging. Inflections are generated from the inference table's lemmas.
var tableVerbs = buildVerbPattern()

func buildVerbPattern() *regexp.Regexp {
	lemmas := []string{
		"work", "join", "found", "start", "acquire", "buy", "bought",
		"live", "move", "pay", "paid", "cost", "occur", "happen",
	}
	var forms []string
	for _, l := range lemmas {
		forms = append(forms, l, l+"s")
		if strings.HasSuffix(l, "e") {
			forms = append(forms, l+"d", l[:len(l)-1]+"ing")
		} else {
			forms = append(forms, l+"ed", l+"ing")
		}
		if l == "occur" {
			forms = append(forms, "occurred", "occurring")
		}
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(forms, "|") + `)\b`)
}

// scanVerbs finds occurrences of table verbs in text, with offsets.
func scanVerbs(text string) []verbRef {
	matches := tableVerbs.FindAllStringIndex(text, -1)
	verbs := make([]verbRef, 0, len(matches))
	for _, m := range matches {
		verbs = append(verbs, verbRef{
			lemma: types.LemmatizeVerb(text[m[0]:m[1]]),
			start: m[0],
			end:   m[1],
		})
	}
	return verbs
}

// locateSpans assigns character offsets to entity texts by scanning the
// source left to right. Backends whose models return bare strings use this
// to recover positions.
func locateSpans(text string, entityTexts []string) []types.Span {
	spans := make([]types.Span, 0, len(entityTexts))
	cursor := 0
	for _, et := range entityTexts {
		idx := strings.Index(text[cursor:], et)
		if idx < 0 {
			// fall back to a search from the beginning for out-of-order results
			idx = strings.Index(text, et)
			if idx < 0 {
				continue
			}
			spans = append(spans, types.Span{Text: et, Start: idx, End: idx + len(et)})
			continue
		}
		start := cursor + idx
		spans = append(spans, types.Span{Text: et, Start: start, End: start + len(et)})
		cursor = start + len(et)
	}
	return spans
}
