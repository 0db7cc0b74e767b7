package semindex

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/soundprediction/recall/pkg/utils"
)

// stopwords are excluded from the overlap base so filler tokens never create
// relevance on their own.
var stopwords = mapset.NewThreadUnsafeSet(
	"a", "an", "the", "and", "or", "but", "is", "are", "was", "were",
	"be", "been", "do", "does", "did", "have", "has", "had", "what",
	"which", "who", "when", "where", "how", "why", "i", "me", "my",
	"mine", "we", "us", "our", "you", "your", "it", "its", "that",
	"this", "these", "those", "to", "of", "in", "on", "at", "for",
	"with", "about", "so", "not", "no",
)

// programmingTerms mark technical queries; sharing one is a strong signal.
var programmingTerms = mapset.NewThreadUnsafeSet(
	"go", "golang", "python", "rust", "javascript", "code", "coding",
	"programming", "function", "api", "database", "server", "bug",
	"test", "compile", "deploy", "build", "debug", "library", "repo",
)

// preferenceTerms mark preference-language overlap.
var preferenceTerms = mapset.NewThreadUnsafeSet(
	"prefer", "prefers", "preferred", "favorite", "favourite", "like",
	"likes", "love", "loves", "hate", "hates", "always", "never",
	"want", "wants", "wish",
)

// Personal-reference pronouns, split into subject and possessive forms. The
// possessive form is the stronger signal.
var (
	personalSubject    = mapset.NewThreadUnsafeSet("i", "me", "we", "us", "myself")
	personalPossessive = mapset.NewThreadUnsafeSet("my", "mine", "our", "ours")
)

// KeywordScore rates content against a query without embeddings: Jaccard
// overlap of non-stopword tokens, plus heuristic boosts, clamped to 1.0.
// Every boost requires a nonzero base overlap; boosts refine relevance, they
// never create it.
func KeywordScore(query, content string) float64 {
	queryTokens := utils.TokenSet(query)
	contentTokens := utils.TokenSet(content)
	if queryTokens.Cardinality() == 0 || contentTokens.Cardinality() == 0 {
		return 0
	}

	queryBase := queryTokens.Difference(stopwords)
	contentBase := contentTokens.Difference(stopwords)
	shared := queryBase.Intersect(contentBase)
	union := queryBase.Union(contentBase)
	if shared.Cardinality() == 0 || union.Cardinality() == 0 {
		return 0
	}
	score := float64(shared.Cardinality()) / float64(union.Cardinality())

	if containsEither(query, content) {
		score += 0.1
	}
	if sharesAny(queryTokens, contentTokens, programmingTerms) {
		score += 0.2
	}
	if sharesAny(queryTokens, contentTokens, preferenceTerms) {
		score += 0.15
	}
	subject := sharesAny(queryTokens, contentTokens, personalSubject)
	possessive := sharesAny(queryTokens, contentTokens, personalPossessive)
	switch {
	case subject && possessive:
		score += 0.4
	case subject || possessive:
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func sharesAny(a, b, terms mapset.Set[string]) bool {
	return a.Intersect(terms).Intersect(b).Cardinality() > 0
}

func containsEither(query, content string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(content)
	if q == "" {
		return false
	}
	return strings.Contains(c, q) || strings.Contains(q, c)
}
