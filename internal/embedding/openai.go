package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // Optional, for OpenAI-compatible endpoints
}

// OpenAIProvider embeds text with the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding: OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Embed returns the L2-normalized embedding of text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: OpenAI API error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding: no embedding data returned from API")
	}

	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	l2normalize(v)
	return v, nil
}

// GetModel returns the embedding model name.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// l2normalize normalizes a vector to unit length.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
