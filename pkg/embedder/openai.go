package embedder

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIBatchSize = 100

// OpenAIClient generates embeddings through the OpenAI embeddings API or any
// OpenAI-compatible endpoint.
type OpenAIClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIClient creates an OpenAI embedding client.
func NewOpenAIClient(config Config) *OpenAIClient {
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}
	if config.Dimensions == 0 {
		config.Dimensions = DefaultDimensions
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaultOpenAIBatchSize
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := prepare(texts)
	embeddings := make([][]float32, 0, len(prepared))

	for start := 0; start < len(prepared); start += o.config.BatchSize {
		end := start + o.config.BatchSize
		if end > len(prepared) {
			end = len(prepared)
		}

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input:      prepared[start:end],
			Model:      openai.EmbeddingModel(o.config.Model),
			Dimensions: o.config.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}

		for _, item := range resp.Data {
			embeddings = append(embeddings, item.Embedding)
		}
	}

	if len(embeddings) != len(prepared) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(prepared), len(embeddings))
	}
	return embeddings, nil
}

func (o *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := o.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}
	return embeddings[0], nil
}

func (o *OpenAIClient) Dimensions() int   { return o.config.Dimensions }
func (o *OpenAIClient) IsAvailable() bool { return o.client != nil }
func (o *OpenAIClient) Close() error      { return nil }
