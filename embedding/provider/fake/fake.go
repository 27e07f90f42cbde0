// Package fake provides a deterministic offline embedding provider.
//
// Vectors are derived purely from the input text: each lowercased token is
// hashed into a pseudo-random component vector and the token vectors are
// summed and normalized. Identical text always yields a bit-identical
// vector, and texts sharing tokens land measurably close in the embedding
// space, so the provider supports both cache-hit tests and keyword-level
// relevance ranking without any model or network.
//
// The provider never fails, which makes it the canonical last entry of a
// fallback chain.
package fake

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDimensions matches the all-MiniLM-L6-v2 vector size.
const DefaultDimensions = 384

// Provider is the offline deterministic embedding provider.
type Provider struct {
	dimensions int
}

// New creates a fake provider with DefaultDimensions.
func New() *Provider {
	return &Provider{dimensions: DefaultDimensions}
}

// NewWithDimensions creates a fake provider with a custom vector size,
// useful for small test dimensions.
func NewWithDimensions(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Provider{dimensions: dimensions}
}

func (p *Provider) Name() string { return "fake" }

func (p *Provider) Model() string { return "hashed-bow" }

func (p *Provider) Dimensions() int { return p.dimensions }

// EstimateCost is always zero: no network, no tokens billed.
func (p *Provider) EstimateCost(text string) float64 { return 0 }

// Embed derives a deterministic unit vector from text. It never fails.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	for _, token := range tokens {
		addTokenVector(vec, token)
	}
	return normalize(vec), nil
}

// EmbedBatch embeds texts in order. Implements embedding.BatchEmbedder.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// tokenize lowercases and splits on non-letter/digit runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// addTokenVector accumulates the token's pseudo-random component vector.
// The token hash seeds an LCG so every component is reproducible.
func addTokenVector(vec []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] += float32(int64(seed)) / float32(math.MaxInt64)
	}
}

// normalize converts vec to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
