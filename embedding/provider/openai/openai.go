// Package openai provides an embedding provider backed by the OpenAI
// embeddings API. Any OpenAI-compatible endpoint works by overriding
// BaseURL (e.g. SiliconFlow, local inference gateways).
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/agentvale/recall-go-sdk/embedding"
)

// Config configures the OpenAI embedding provider.
type Config struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible services.
	BaseURL string

	// Model is the embedding model. Default: text-embedding-3-small.
	Model string

	// Dimensions is the vector size. Default: 1536.
	Dimensions int

	// CostPerMillionTokens is the billing rate used for cost estimates.
	// Default: 0.02 (text-embedding-3-small pricing).
	CostPerMillionTokens float64
}

// Provider embeds text via the OpenAI embeddings API.
type Provider struct {
	client *goopenai.Client
	config *Config
}

// New creates an OpenAI embedding provider.
func New(config *Config) *Provider {
	if config == nil {
		config = &Config{}
	}
	if config.Model == "" {
		config.Model = string(goopenai.SmallEmbedding3)
	}
	if config.Dimensions == 0 {
		config.Dimensions = 1536
	}
	if config.CostPerMillionTokens == 0 {
		config.CostPerMillionTokens = 0.02
	}
	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &Provider{
		client: goopenai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Model() string { return p.config.Model }

func (p *Provider) Dimensions() int { return p.config.Dimensions }

// EstimateCost approximates billing from text length, assuming roughly
// four characters per token.
func (p *Provider) EstimateCost(text string) float64 {
	estimatedTokens := float64(len(text)) / 4.0
	return estimatedTokens * p.config.CostPerMillionTokens / 1e6
}

// Embed generates a single embedding vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for texts in one API call, preserving
// input order. Implements embedding.BatchEmbedder.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", embedding.ErrProviderError)
	}
	req := goopenai.EmbeddingRequest{
		Input:      texts,
		Model:      goopenai.EmbeddingModel(p.config.Model),
		Dimensions: p.config.Dimensions,
	}
	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyAPIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			embedding.ErrProviderError, len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vecs[i] = data.Embedding
	}
	return vecs, nil
}

// Ping is a cheap validity check: configuration only, no round-trip.
func (p *Provider) Ping(ctx context.Context) error {
	if p.config.APIKey == "" {
		return fmt.Errorf("%w: API key not configured", embedding.ErrProviderUnavailable)
	}
	return nil
}

// classifyAPIError maps API failures onto the sentinel taxonomy.
// Auth, quota, timeout, and server-side failures are transient
// (unavailable); anything else is a malformed-interaction error.
func classifyAPIError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
		default:
			return fmt.Errorf("%w: %v", embedding.ErrProviderError, err)
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
	}
	// Transport-level failures (DNS, refused connection, context timeout).
	return fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
}
