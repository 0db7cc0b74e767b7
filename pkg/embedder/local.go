package embedder

import (
	"context"
	"fmt"

	embed "github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// LocalClient runs embeddings in-process through go-embedeverything.
type LocalClient struct {
	client *embed.Embedder
	config Config
}

// NewLocalClient loads a local embedding model.
func NewLocalClient(config Config) (*LocalClient, error) {
	client, err := embed.NewEmbedder(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create local embedder: %w", err)
	}
	if config.Dimensions == 0 {
		config.Dimensions = DefaultDimensions
	}
	return &LocalClient{client: client, config: config}, nil
}

func (l *LocalClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// go-embedeverything does not take a context
	embeddings, err := l.client.Embed(prepare(texts))
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return embeddings, nil
}

func (l *LocalClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := l.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}
	return embeddings[0], nil
}

func (l *LocalClient) Dimensions() int   { return l.config.Dimensions }
func (l *LocalClient) IsAvailable() bool { return l.client != nil }

func (l *LocalClient) Close() error {
	if l.client != nil {
		l.client.Close()
	}
	return nil
}
