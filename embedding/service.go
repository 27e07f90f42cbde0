package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds Service configuration.
type Config struct {
	// CacheSize caps the number of cached vectors.
	// Default: DefaultCacheSize.
	CacheSize int64

	// CallTimeout bounds each provider attempt so one unreachable
	// provider cannot stall the fallback chain. A timeout counts as
	// ErrProviderUnavailable. Default: 30s.
	CallTimeout time.Duration

	// BatchConcurrency bounds fan-out when a provider has no native
	// batch support. Default: 3.
	BatchConcurrency int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CacheSize:        DefaultCacheSize,
		CallTimeout:      30 * time.Second,
		BatchConcurrency: 3,
	}
}

// Stats is a snapshot of cumulative Service counters.
type Stats struct {
	Provider       string
	Model          string
	TotalGenerated int64
	CacheHits      int64
	CacheMisses    int64
	TotalCost      float64
	AvgLatency     time.Duration
}

// Service orchestrates embedding generation: cache lookup, provider
// selection, ordered fallback, batching, and cost/latency accounting.
//
// Providers are tried in chain order starting from the current one. When a
// fallback succeeds, it becomes the current provider for subsequent calls
// (session-wide adaptive behavior). The chain is immutable after
// construction; the current provider is an atomically-updated index into
// it, so concurrent callers never observe a torn provider/model pair.
type Service struct {
	chain   []Provider
	current atomic.Int32
	cache   *Cache
	config  *Config

	mu             sync.Mutex
	totalGenerated int64
	totalCost      float64
	totalLatency   time.Duration
	latencySamples int64
}

// NewService creates a Service with the given fallback chain.
// The first provider is the primary. Chains should end with the offline
// provider (provider/fake) so generation cannot fail in production use.
func NewService(chain []Provider, config *Config) (*Service, error) {
	if len(chain) == 0 {
		return nil, errors.New("embedding: provider chain is empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 3
	}
	cache, err := NewCache(config.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		chain:  chain,
		cache:  cache,
		config: config,
	}, nil
}

// Generate returns the embedding for text, consulting the cache first.
// On a miss it attempts the current provider, then walks the fallback
// chain in order until one succeeds. The provider that produced the
// vector becomes the current provider.
func (s *Service) Generate(ctx context.Context, text string) ([]float32, error) {
	cur := s.chain[s.current.Load()]
	if vec, ok := s.cache.Get(CacheKey(cur.Name(), cur.Model(), text)); ok {
		return vec, nil
	}
	return s.generate(ctx, text)
}

// generate walks the fallback chain for a single cache miss.
func (s *Service) generate(ctx context.Context, text string) ([]float32, error) {
	var attemptErrs []error
	for _, i := range s.fallbackOrder() {
		if ctx.Err() != nil {
			attemptErrs = append(attemptErrs, ctx.Err())
			break
		}
		p := s.chain[i]
		vec, latency, err := s.attempt(ctx, p, text)
		if err != nil {
			log.Printf("[EMBED] provider %s failed: %v", p.Name(), err)
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		s.current.Store(int32(i))
		s.cache.Put(CacheKey(p.Name(), p.Model(), text), vec)
		s.record(1, p.EstimateCost(text), latency)
		return vec, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrAllProvidersExhausted, errors.Join(attemptErrs...))
}

// GenerateBatch embeds texts in order, one vector per input. Cached texts
// are resolved without touching any provider. Misses go through the
// provider's native batch call when it supports one, otherwise through
// Generate with bounded concurrency. Either every entry is filled or an
// error is returned; elements are never silently dropped.
func (s *Service) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	cur := s.chain[s.current.Load()]
	var misses []int
	for i, text := range texts {
		if vec, ok := s.cache.Get(CacheKey(cur.Name(), cur.Model(), text)); ok {
			results[i] = vec
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return results, nil
	}

	if batcher, ok := cur.(BatchEmbedder); ok {
		missing := make([]string, len(misses))
		for j, i := range misses {
			missing[j] = texts[i]
		}
		vecs, latency, err := s.attemptBatch(ctx, cur, batcher, missing)
		if err == nil {
			var cost float64
			for j, i := range misses {
				vec := vecs[j]
				s.cache.Put(CacheKey(cur.Name(), cur.Model(), texts[i]), vec)
				cost += cur.EstimateCost(texts[i])
				results[i] = vec
			}
			s.record(int64(len(misses)), cost, latency)
			return results, nil
		}
		log.Printf("[EMBED] batch call to %s failed, falling back per text: %v", cur.Name(), err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.BatchConcurrency)
	for _, i := range misses {
		i := i
		g.Go(func() error {
			vec, err := s.Generate(gctx, texts[i])
			if err != nil {
				return err
			}
			results[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SetProvider attempts to make the named provider current and reports
// whether it is now active. Providers implementing Pinger are checked
// before switching; no full embedding round-trip is performed.
func (s *Service) SetProvider(ctx context.Context, name string) bool {
	for i, p := range s.chain {
		if p.Name() != name {
			continue
		}
		if pinger, ok := p.(Pinger); ok {
			pctx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
			err := pinger.Ping(pctx)
			cancel()
			if err != nil {
				log.Printf("[EMBED] refusing to switch to %s: %v", name, err)
				return false
			}
		}
		s.current.Store(int32(i))
		return true
	}
	return false
}

// CurrentProvider returns the name of the active provider.
func (s *Service) CurrentProvider() string {
	return s.chain[s.current.Load()].Name()
}

// CurrentModel returns the model of the active provider.
func (s *Service) CurrentModel() string {
	return s.chain[s.current.Load()].Model()
}

// Statistics returns a snapshot of cumulative counters. Counters keep
// accumulating across partial failures and reflect completed attempts.
func (s *Service) Statistics() Stats {
	cur := s.chain[s.current.Load()]
	s.mu.Lock()
	defer s.mu.Unlock()
	var avg time.Duration
	if s.latencySamples > 0 {
		avg = s.totalLatency / time.Duration(s.latencySamples)
	}
	return Stats{
		Provider:       cur.Name(),
		Model:          cur.Model(),
		TotalGenerated: s.totalGenerated,
		CacheHits:      s.cache.Hits(),
		CacheMisses:    s.cache.Misses(),
		TotalCost:      s.totalCost,
		AvgLatency:     avg,
	}
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}

// fallbackOrder returns chain indices starting at the current provider,
// followed by the rest of the chain in order, without repeats.
func (s *Service) fallbackOrder() []int {
	start := int(s.current.Load())
	order := make([]int, 0, len(s.chain))
	order = append(order, start)
	for i := range s.chain {
		if i != start {
			order = append(order, i)
		}
	}
	return order
}

// attempt runs one time-bounded provider call and validates the result.
func (s *Service) attempt(ctx context.Context, p Provider, text string) ([]float32, time.Duration, error) {
	cctx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	start := time.Now()
	vec, err := p.Embed(cctx, text)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, classify(err)
	}
	if len(vec) != p.Dimensions() {
		return nil, latency, fmt.Errorf("%w: got %d components, want %d",
			ErrProviderError, len(vec), p.Dimensions())
	}
	return vec, latency, nil
}

// attemptBatch runs one time-bounded batch call and validates the result.
func (s *Service) attemptBatch(ctx context.Context, p Provider, batcher BatchEmbedder, texts []string) ([][]float32, time.Duration, error) {
	cctx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()

	start := time.Now()
	vecs, err := batcher.EmbedBatch(cctx, texts)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, classify(err)
	}
	if len(vecs) != len(texts) {
		return nil, latency, fmt.Errorf("%w: got %d vectors for %d texts",
			ErrProviderError, len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if len(vec) != p.Dimensions() {
			return nil, latency, fmt.Errorf("%w: vector %d has %d components, want %d",
				ErrProviderError, i, len(vec), p.Dimensions())
		}
	}
	return vecs, latency, nil
}

// record accumulates generation statistics.
func (s *Service) record(generated int64, cost float64, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalGenerated += generated
	s.totalCost += cost
	s.totalLatency += latency
	s.latencySamples++
}

// classify maps raw provider errors onto the sentinel taxonomy.
// Timeouts and cancellations count as unavailability for fallback purposes.
func classify(err error) error {
	if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderError) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderError, err)
}
