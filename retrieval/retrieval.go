// Package retrieval ranks agent memories by a weighted blend of recency,
// importance, and semantic relevance to a query.
//
// A Retriever combines one Stream with one embedding service. Scoring is a
// pure computation over a snapshot of the stream; the only blocking work in
// a retrieval call is filling in the query embedding.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/agentvale/recall-go-sdk/embedding"
	"github.com/agentvale/recall-go-sdk/stream"
)

// Embedder is the embedding-capable collaborator the retriever needs.
// *embedding.Service satisfies it.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is an optional nearest-neighbor index accelerating
// relevance-only queries. Implementations: index/chromem.
type VectorIndex interface {
	// Add registers a memory's vector under its ID.
	Add(ctx context.Context, id string, vec []float32) error

	// Query returns up to k nearest IDs with their cosine similarity,
	// most similar first.
	Query(ctx context.Context, vec []float32, k int) ([]Match, error)
}

// Match is one vector index hit.
type Match struct {
	ID         string
	Similarity float64
}

// Weights blends the three component scores. Each component is normalized
// to [0,1] before weighting, so weights need not sum to 1.
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

// DefaultWeights weighs all three signals equally.
var DefaultWeights = Weights{Recency: 1, Importance: 1, Relevance: 1}

// ScoredMemory is a retrieval result: the memory plus its query-scoped
// annotations. Similarity is the raw cosine similarity to the query;
// Score is the weighted combination used for ranking.
type ScoredMemory struct {
	Memory     *stream.Memory
	Similarity float64
	Score      float64
}

// Retriever answers recent, important, relevant, and weighted queries over
// one memory stream. It is stateless beyond its collaborators; every call
// scores against the stream contents at call time.
type Retriever struct {
	stream   *stream.Stream
	embedder Embedder
	index    VectorIndex
	indexed  map[string]bool
}

// Option configures the retriever.
type Option func(*Retriever)

// WithIndex attaches a vector index that BackfillEmbeddings feeds and
// Relevant queries through.
func WithIndex(index VectorIndex) Option {
	return func(r *Retriever) {
		r.index = index
	}
}

// NewRetriever creates a retriever over the given stream and embedder.
func NewRetriever(s *stream.Stream, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		stream:   s,
		embedder: embedder,
		indexed:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BackfillEmbeddings generates embeddings for every memory lacking one and
// returns how many were filled. Re-running skips memories that already
// have a vector. When an index is attached, embedded memories are fed to
// it exactly once.
func (r *Retriever) BackfillEmbeddings(ctx context.Context) (int, error) {
	memories := r.stream.All()
	var missing []*stream.Memory
	for _, m := range memories {
		if !m.HasEmbedding() {
			missing = append(missing, m)
		}
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, m := range missing {
			texts[i] = m.Content
		}
		vecs, err := r.embedder.GenerateBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("backfill embeddings: %w", err)
		}
		for i, m := range missing {
			m.SetEmbedding(vecs[i])
		}
		log.Printf("[RECALL] backfilled %d embeddings", len(missing))
	}

	if r.index != nil {
		for _, m := range memories {
			if r.indexed[m.ID] || !m.HasEmbedding() {
				continue
			}
			if err := r.index.Add(ctx, m.ID, m.Embedding()); err != nil {
				return len(missing), fmt.Errorf("index memory %s: %w", m.ID, err)
			}
			r.indexed[m.ID] = true
		}
	}
	return len(missing), nil
}

// Recent returns the k most-recently-appended memories, most-recent-first.
func (r *Retriever) Recent(k int) []*stream.Memory {
	return r.stream.Recent(k)
}

// Important returns the k memories with highest importance in descending
// order. Ties go to the more recent memory.
func (r *Retriever) Important(k int) []*stream.Memory {
	memories := r.stream.All()
	order := make([]int, len(memories))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ma, mb := memories[order[a]], memories[order[b]]
		if ma.Importance != mb.Importance {
			return ma.Importance > mb.Importance
		}
		if !ma.CreatedAt.Equal(mb.CreatedAt) {
			return ma.CreatedAt.After(mb.CreatedAt)
		}
		return order[a] > order[b]
	})
	if k > len(order) {
		k = len(order)
	}
	out := make([]*stream.Memory, 0, k)
	for _, i := range order[:k] {
		out = append(out, memories[i])
	}
	return out
}

// Relevant returns the k memories most semantically similar to query,
// ranked purely by cosine similarity. Served from the vector index when
// one is attached, otherwise by scanning embedded memories.
func (r *Retriever) Relevant(ctx context.Context, query string, k int) ([]*ScoredMemory, error) {
	queryVec, err := r.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if r.index != nil {
		matches, err := r.index.Query(ctx, queryVec, k)
		if err != nil {
			return nil, fmt.Errorf("index query: %w", err)
		}
		out := make([]*ScoredMemory, 0, len(matches))
		for _, match := range matches {
			m := r.stream.Get(match.ID)
			if m == nil {
				continue
			}
			out = append(out, &ScoredMemory{Memory: m, Similarity: match.Similarity, Score: match.Similarity})
		}
		return out, nil
	}

	return r.Retrieve(ctx, query, k, Weights{Relevance: 1})
}

// Retrieve scores every memory against the query and returns the top k by
// weighted combination of recency, importance, and relevance.
//
// Component scores, each in [0,1]:
//   - recency: linear over the stream's observed time span; the newest
//     memory scores 1 and the oldest 0 (a degenerate span scores 1)
//   - importance: linear min/max normalization over the stream
//   - relevance: cosine similarity rescaled via (sim+1)/2; memories
//     without an embedding (or with a mismatched dimension) score 0
//     instead of failing the call
//
// Ordering is a deterministic total order: score descending, then later
// CreatedAt, then later insertion position.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, w Weights) ([]*ScoredMemory, error) {
	memories := r.stream.All()
	if len(memories) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	oldest, newest := memories[0].CreatedAt, memories[0].CreatedAt
	minImp, maxImp := memories[0].Importance, memories[0].Importance
	for _, m := range memories[1:] {
		if m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
		if m.Importance < minImp {
			minImp = m.Importance
		}
		if m.Importance > maxImp {
			maxImp = m.Importance
		}
	}
	span := newest.Sub(oldest)
	impSpan := maxImp - minImp

	scored := make([]*ScoredMemory, len(memories))
	position := make(map[*ScoredMemory]int, len(memories))
	for i, m := range memories {
		recency := 1.0
		if span > 0 {
			recency = float64(m.CreatedAt.Sub(oldest)) / float64(span)
		}
		importance := 1.0
		if impSpan > 0 {
			importance = (m.Importance - minImp) / impSpan
		}

		var similarity, relevance float64
		if vec := m.Embedding(); vec != nil {
			sim, err := embedding.CosineSimilarity(queryVec, vec)
			if err == nil {
				similarity = sim
				relevance = (sim + 1) / 2
			}
			// A dimension mismatch degrades to relevance 0, the same
			// as a missing embedding.
		}

		sm := &ScoredMemory{
			Memory:     m,
			Similarity: similarity,
			Score:      recency*w.Recency + importance*w.Importance + relevance*w.Relevance,
		}
		scored[i] = sm
		position[sm] = i
	}

	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		ta, tb := scored[a].Memory.CreatedAt, scored[b].Memory.CreatedAt
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return position[scored[a]] > position[scored[b]]
	})

	if k > len(scored) {
		k = len(scored)
	}
	if k < 0 {
		k = 0
	}
	return scored[:k], nil
}
