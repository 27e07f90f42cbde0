// Package stream provides the append-only observation log backing agent
// memory. A Stream holds Memory records in insertion order; "recent" always
// means latest appended. The stream knows nothing about embeddings beyond
// carrying a set-once vector on each record.
package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is one timestamped, importance-scored observation.
// Content, CreatedAt, and Importance are immutable after creation. The
// embedding is absent until backfilled and set exactly once; query-scoped
// annotations (similarity, retrieval score) live on retrieval results,
// never on the record.
type Memory struct {
	ID         string
	Content    string
	CreatedAt  time.Time
	Importance float64

	mu        sync.RWMutex
	embedding []float32
}

// Embedding returns the memory's vector, or nil if not yet generated.
func (m *Memory) Embedding() []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embedding
}

// HasEmbedding reports whether the vector has been generated.
func (m *Memory) HasEmbedding() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embedding != nil
}

// SetEmbedding attaches the vector. The first non-nil value wins;
// subsequent calls are no-ops, keeping the backfill idempotent.
func (m *Memory) SetEmbedding(vec []float32) {
	if vec == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedding == nil {
		m.embedding = vec
	}
}

// Stream is an ordered, append-only collection of memories.
// Insertion order is authoritative and always matches non-decreasing
// CreatedAt: observation timestamps arriving out of order are clamped
// forward to the latest seen, so history is never reordered.
type Stream struct {
	mu       sync.RWMutex
	memories []*Memory
	byID     map[string]*Memory
}

// New creates an empty stream.
func New() *Stream {
	return &Stream{byID: make(map[string]*Memory)}
}

// AddObservation appends an observation and returns the created record.
func (s *Stream) AddObservation(content string, at time.Time, importance float64) *Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.memories); n > 0 && at.Before(s.memories[n-1].CreatedAt) {
		at = s.memories[n-1].CreatedAt
	}
	m := &Memory{
		ID:         uuid.New().String(),
		Content:    content,
		CreatedAt:  at,
		Importance: importance,
	}
	s.memories = append(s.memories, m)
	s.byID[m.ID] = m
	return m
}

// Len returns the number of memories.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories)
}

// Get returns the memory with the given ID, or nil.
func (s *Stream) Get(id string) *Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Recent returns the last n memories, most-recent-first.
// n larger than the stream returns everything.
func (s *Stream) Recent(n int) []*Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	if n > len(s.memories) {
		n = len(s.memories)
	}
	out := make([]*Memory, n)
	for i := 0; i < n; i++ {
		out[i] = s.memories[len(s.memories)-1-i]
	}
	return out
}

// All returns a snapshot of the stream in insertion order.
func (s *Stream) All() []*Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Memory, len(s.memories))
	copy(out, s.memories)
	return out
}
