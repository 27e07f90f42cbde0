// Package chromem provides a retrieval.VectorIndex backed by chromem-go,
// a pure-Go embedded vector database with cosine similarity search.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/agentvale/recall-go-sdk/retrieval"
)

// Index holds memory vectors in a single in-memory chromem collection.
type Index struct {
	mu         sync.Mutex
	collection *chromemgo.Collection
}

// New creates an empty index.
func New() (*Index, error) {
	db := chromemgo.NewDB()
	// Embeddings are provided by the caller, so no embedding func and the
	// default cosine distance.
	col, err := db.CreateCollection("memories", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{collection: col}, nil
}

// Add registers a memory's vector under its ID.
func (x *Index) Add(ctx context.Context, id string, vec []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	err := x.collection.AddDocument(ctx, chromemgo.Document{
		ID:        id,
		Content:   id, // chromem requires content; the stream owns the text
		Embedding: vec,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to k nearest memory IDs, most similar first.
func (x *Index) Query(ctx context.Context, vec []float32, k int) ([]retrieval.Match, error) {
	x.mu.Lock()
	count := x.collection.Count()
	x.mu.Unlock()
	if count == 0 {
		return nil, nil
	}
	// chromem caps nResults at the collection size.
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}
	results, err := x.collection.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	matches := make([]retrieval.Match, len(results))
	for i, res := range results {
		matches[i] = retrieval.Match{ID: res.ID, Similarity: float64(res.Similarity)}
	}
	return matches, nil
}
