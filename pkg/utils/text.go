package utils

import (
	"strings"
	"unicode"

	mapset "github.com/deckarep/golang-set/v2"
)

// MaxEmbeddingChars bounds text sent to embedding backends. Transformer
// models truncate around 512 tokens anyway; cutting client-side keeps
// payloads predictable.
const MaxEmbeddingChars = 512

// NormalizeForEmbedding collapses whitespace and truncates the text to
// MaxEmbeddingChars before it is sent to an embedding backend.
func NormalizeForEmbedding(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if len(normalized) > MaxEmbeddingChars {
		normalized = normalized[:MaxEmbeddingChars]
	}
	return normalized
}

// Tokenize splits text into lowercase word tokens, stripping punctuation.
// Used by the keyword-fallback scorer and the substring search tier.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 0 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenSet returns the unique tokens of text.
func TokenSet(text string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, tok := range Tokenize(text) {
		set.Add(tok)
	}
	return set
}
