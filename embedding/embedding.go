package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Provider is the text-to-vector capability.
// Implementations: provider/fake (offline, deterministic), provider/openai
// (network), provider/onnx (local model, build tag "onnx").
//
// A provider's dimension is fixed and known statically. Embed must return a
// vector of exactly Dimensions() components or an error wrapping one of the
// sentinel errors below.
type Provider interface {
	// Name identifies the provider (e.g. "openai", "fake").
	Name() string

	// Model identifies the model served by this provider.
	Model() string

	// Dimensions returns the fixed embedding vector size.
	Dimensions() int

	// EstimateCost returns the estimated cost in USD of embedding text.
	// Offline providers return 0.
	EstimateCost(text string) float64

	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is an optional interface for providers that support
// embedding several texts in one call. The Service batches cache misses
// through it when available.
type BatchEmbedder interface {
	// EmbedBatch embeds texts in order, one vector per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Pinger is an optional interface for providers that can cheaply check
// their own availability. Service.SetProvider pings before switching.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sentinel errors. Provider implementations wrap these so the Service can
// distinguish failure modes; both kinds trigger fallback.
var (
	// ErrProviderUnavailable indicates a transient failure: network,
	// auth, quota, or timeout. Triggers fallback.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrProviderError indicates a malformed or unexpected provider
	// response. Triggers fallback.
	ErrProviderError = errors.New("embedding provider error")

	// ErrAllProvidersExhausted is returned when every provider in the
	// fallback chain failed for a call. Engine state is not affected.
	ErrAllProvidersExhausted = errors.New("all embedding providers exhausted")

	// ErrDimensionMismatch is returned by CosineSimilarity when the two
	// vectors have different lengths. Always a usage error, never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||).
// Result is in [-1, 1]. Vectors of different lengths are a usage error;
// zero-length or zero-magnitude vectors yield 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
