package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"github.com/soundprediction/recall/pkg/types"
)

// ProseExtractor is the pure-Go backend. It combines prose's NER and POS
// tagging with pattern rules for labels prose does not emit (ORG, MONEY,
// DATE). It needs no model files, which makes it the default backend.
type ProseExtractor struct{}

// NewProseExtractor returns the prose-backed extractor.
func NewProseExtractor() *ProseExtractor {
	return &ProseExtractor{}
}

func (p *ProseExtractor) IsAvailable() bool { return true }
func (p *ProseExtractor) Close() error      { return nil }

var orgSuffixes = map[string]struct{}{
	"corp": {}, "corporation": {}, "inc": {}, "ltd": {}, "llc": {},
	"co": {}, "company": {}, "labs": {}, "technologies": {}, "systems": {},
	"group": {}, "gmbh": {},
}

var (
	moneyPattern = regexp.MustCompile(`\$\d[\d,]*(?:\.\d+)?|\b\d[\d,]*\s+(?:dollars|euros|pounds|cents)\b`)
	datePattern  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?\b|\b(?:Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b|\b(?:yesterday|today|tomorrow)\b`)
)

// ExtractEntities returns spans grouped by type label. Proper-noun runs are
// classified as ORG when they end in a company suffix, PERSON otherwise;
// prose's own NER labels win for spans it recognizes.
func (p *ProseExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error) {
	if strings.TrimSpace(text) == "" {
		return map[string][]types.Span{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]types.Span)
	var claimed []string

	add := func(entityType, entityText string) {
		key := strings.ToLower(entityText)
		// skip names already claimed, including as part of a longer name
		for _, c := range claimed {
			if strings.Contains(c, key) {
				return
			}
		}
		claimed = append(claimed, key)
		for _, span := range locateSpans(text, []string{entityText}) {
			result[entityType] = append(result[entityType], span)
		}
	}

	// Proper-noun runs first: they produce the longest candidate names, so
	// partial matches from prose's NER cannot shadow them.
	for _, run := range properNounRuns(doc.Tokens()) {
		if isOrgName(run) {
			add(types.EntityOrg, run)
		} else if strings.Contains(run, " ") {
			add(types.EntityPerson, run)
		}
	}

	for _, m := range moneyPattern.FindAllString(text, -1) {
		add(types.EntityMoney, m)
	}
	for _, m := range datePattern.FindAllString(text, -1) {
		add(types.EntityDate, m)
	}

	for _, ent := range doc.Entities() {
		label := ent.Label
		if isOrgName(ent.Text) {
			label = types.EntityOrg
		}
		add(label, ent.Text)
	}

	return result, nil
}

// ExtractRelationships scans verb-headed clauses using prose's POS tags.
func (p *ProseExtractor) ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil, err
	}

	verbs := verbsFromTokens(text, doc.Tokens())
	if len(verbs) == 0 {
		// POS tagging found nothing usable; fall back to the table-verb scan
		verbs = scanVerbs(text)
	}

	return inferRelationships(entities, verbs), nil
}

func isOrgName(name string) bool {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return false
	}
	last := strings.ToLower(strings.Trim(fields[len(fields)-1], ".,"))
	_, ok := orgSuffixes[last]
	return ok
}

// properNounRuns joins consecutive NNP/NNPS tokens into candidate names.
func properNounRuns(tokens []prose.Token) []string {
	var runs []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, strings.Join(current, " "))
			current = nil
		}
	}
	for _, tok := range tokens {
		if tok.Tag == "NNP" || tok.Tag == "NNPS" {
			current = append(current, tok.Text)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

// verbsFromTokens locates VB* tokens in the source text, walking left to
// right so repeated words resolve to distinct offsets.
func verbsFromTokens(text string, tokens []prose.Token) []verbRef {
	var verbs []verbRef
	cursor := 0
	for _, tok := range tokens {
		idx := strings.Index(text[cursor:], tok.Text)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		end := start + len(tok.Text)
		cursor = end
		if strings.HasPrefix(tok.Tag, "VB") {
			verbs = append(verbs, verbRef{
				lemma: types.LemmatizeVerb(tok.Text),
				start: start,
				end:   end,
			})
		}
	}
	return verbs
}
