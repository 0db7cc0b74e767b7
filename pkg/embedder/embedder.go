package embedder

import (
	"context"
	"errors"

	"github.com/soundprediction/recall/pkg/utils"
)

// DefaultDimensions is the baseline embedding width.
const DefaultDimensions = 384

// ErrNoEmbeddings is returned when a backend answers with an empty batch.
var ErrNoEmbeddings = errors.New("no embeddings returned")

// Client generates fixed-dimension embeddings for text.
type Client interface {
	// Embed generates embeddings for the given texts in one backend call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// IsAvailable reports whether the backend loaded. Checked once at
	// construction and cached.
	IsAvailable() bool

	// Close cleans up any resources.
	Close() error
}

// Config holds common embedding client settings.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	BatchSize  int
}

// prepare normalizes a batch of texts before encoding.
func prepare(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = utils.NormalizeForEmbedding(t)
	}
	return out
}
