// Package embedding provides text embedding generation with provider
// fallback, caching, and cost accounting.
//
// Architecture:
//   - Provider: text-to-vector capability (network-backed or offline)
//   - Cache: bounded vector cache keyed by (provider, model, text)
//   - Service: orchestrates provider selection, ordered fallback, batching,
//     and cumulative statistics
//
// Providers form an ordered fallback chain. When the current provider fails,
// the Service walks the chain until one succeeds and keeps using it for
// subsequent calls. Chains should terminate with the offline provider
// (provider/fake), which never fails, so generation is guaranteed to succeed
// in production use.
//
// Implementations:
//   - provider/fake: deterministic offline embeddings (tests, last-resort fallback)
//   - provider/openai: OpenAI-compatible embedding APIs
//   - provider/onnx: local ONNX model inference (build tag "onnx")
package embedding
