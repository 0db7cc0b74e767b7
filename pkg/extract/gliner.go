package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/soundprediction/go-gline-rs/pkg/gline"
	"github.com/soundprediction/recall/pkg/types"
)

// glinerLabels are the prompt labels handed to the GLiNER span model, with
// the engine-side type they map to.
var glinerLabels = map[string]string{
	"person":       types.EntityPerson,
	"organization": types.EntityOrg,
	"location":     types.EntityLocation,
	"money":        types.EntityMoney,
	"date":         types.EntityDate,
	"product":      types.EntityProduct,
}

// GlinerExtractor runs zero-shot NER through a local GLiNER ONNX model.
type GlinerExtractor struct {
	model *gline.Model
	mu    sync.Mutex
}

// NewGlinerExtractor loads a GLiNER span model from a local directory or a
// Hugging Face model id. A load failure is returned to the caller, who can
// fall back to another backend.
func NewGlinerExtractor(modelID string) (*GlinerExtractor, error) {
	if err := gline.Init(); err != nil {
		return nil, fmt.Errorf("failed to init gline runtime: %w", err)
	}

	if _, err := os.Stat(modelID); err == nil {
		model, err := gline.NewSpanModel(
			filepath.Join(modelID, "model.onnx"),
			filepath.Join(modelID, "tokenizer.json"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load gliner model from %s: %w", modelID, err)
		}
		return &GlinerExtractor{model: model}, nil
	}

	model, err := gline.NewSpanModelFromHF(modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load gliner model %s: %w", modelID, err)
	}
	return &GlinerExtractor{model: model}, nil
}

func (g *GlinerExtractor) IsAvailable() bool { return g.model != nil }

func (g *GlinerExtractor) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model != nil {
		g.model.Close()
		g.model = nil
	}
	return nil
}

func (g *GlinerExtractor) ExtractEntities(ctx context.Context, text string) (map[string][]types.Span, error) {
	if !g.IsAvailable() || strings.TrimSpace(text) == "" {
		return map[string][]types.Span{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(glinerLabels))
	for label := range glinerLabels {
		labels = append(labels, label)
	}

	g.mu.Lock()
	results, err := g.model.Predict([]string{text}, labels)
	g.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("gliner prediction failed: %w", err)
	}
	if len(results) == 0 {
		return map[string][]types.Span{}, nil
	}

	grouped := make(map[string][]string)
	for _, ent := range results[0] {
		entityType, ok := glinerLabels[strings.ToLower(ent.Label)]
		if !ok {
			entityType = strings.ToUpper(ent.Label)
		}
		grouped[entityType] = append(grouped[entityType], ent.Text)
	}

	spans := make(map[string][]types.Span, len(grouped))
	for entityType, texts := range grouped {
		spans[entityType] = locateSpans(text, texts)
	}
	return spans, nil
}

// ExtractRelationships uses the table-verb scan; GLiNER span models do not
// provide POS tags.
func (g *GlinerExtractor) ExtractRelationships(ctx context.Context, text string, entities map[string][]types.Span) ([]types.Relationship, error) {
	if !g.IsAvailable() || len(entities) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return inferRelationships(entities, scanVerbs(text)), nil
}
