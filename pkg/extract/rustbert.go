package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soundprediction/go-rust-bert/pkg/rustbert"
	"github.com/soundprediction/recall/pkg/types"
)

// rustbertLabelMap translates CoNLL-style NER labels to engine types.
var rustbertLabelMap = map[string]string{
	"PER":   types.EntityPerson,
	"I-PER": types.EntityPerson,
	"ORG":   types.EntityOrg,
	"I-ORG": types.EntityOrg,
	"LOC":   types.EntityLocation,
	"I-LOC": types.EntityLocation,
}

// RustBertExtractor runs NER through a rust-bert token classification model.
type RustBertExtractor struct {
	model *rustbert.NERModel
	mu    sync.Mutex
}

// NewRustBertExtractor loads the default BERT NER model.
func NewRustBertExtractor() (*RustBertExtractor, error) {
	model, err := rustbert.NewNERModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load rust-bert NER model: %w", err)
	}
	return &RustBertExtractor{model: model}, nil
}

func (r *RustBertExtractor) IsAvailable() bool { return r.model != nil }

func (r *RustBertExtractor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.model != nil {
		r.model.Close()
		r.model = nil
	}
	return nil
}

func (r *RustBertExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error) {
	if !r.IsAvailable() || strings.TrimSpace(text) == "" {
		return map[string][]types.Span{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	results, err := r.model.Predict(text)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("rust-bert prediction failed: %w", err)
	}

	grouped := make(map[string][]string)
	for _, ent := range results {
		entityType, ok := rustbertLabelMap[ent.Label]
		if !ok {
			entityType = strings.ToUpper(strings.TrimPrefix(ent.Label, "I-"))
		}
		grouped[entityType] = append(grouped[entityType], ent.Word)
	}

	spans := make(map[string][]types.Span, len(grouped))
	for entityType, texts := range grouped {
		spans[entityType] = locateSpans(text, texts)
	}
	return spans, nil
}

// ExtractRelationships uses the table-verb scan; the NER model does not
// provide POS tags.
func (r *RustBertExtractor) ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error) {
	if !r.IsAvailable() || len(entities) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inferRelationships(entities, scanVerbs(text)), nil
}
