package embedding_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/agentvale/recall-go-sdk/embedding"
	"github.com/agentvale/recall-go-sdk/embedding/provider/fake"
)

// stubProvider is a controllable in-test provider.
type stubProvider struct {
	name    string
	dims    int
	cost    float64
	fail    bool
	pingErr error

	mu    sync.Mutex
	calls int
}

func (p *stubProvider) Name() string  { return p.name }
func (p *stubProvider) Model() string { return p.name + "-model" }

func (p *stubProvider) Dimensions() int { return p.dims }

func (p *stubProvider) EstimateCost(text string) float64 { return p.cost }

func (p *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fail {
		return nil, fmt.Errorf("%w: stub is down", embedding.ErrProviderUnavailable)
	}
	vec := make([]float32, p.dims)
	for i := range vec {
		vec[i] = float32(len(text) + i + 1)
	}
	return vec, nil
}

func (p *stubProvider) Ping(ctx context.Context) error { return p.pingErr }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestGenerateCacheHit(t *testing.T) {
	ctx := context.Background()
	stub := &stubProvider{name: "stub", dims: 8}
	svc, err := embedding.NewService([]embedding.Provider{stub}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	first, err := svc.Generate(ctx, "the well has run dry")
	if err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	second, err := svc.Generate(ctx, "the well has run dry")
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	if stub.callCount() != 1 {
		t.Errorf("provider invoked %d times, want 1 (second call must be a cache hit)", stub.callCount())
	}
	sim, err := embedding.CosineSimilarity(first, second)
	if err != nil {
		t.Fatalf("CosineSimilarity: %v", err)
	}
	if sim < 0.9999 {
		t.Errorf("cached vector differs: similarity %f", sim)
	}

	stats := svc.Statistics()
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
	if stats.TotalGenerated != 1 {
		t.Errorf("TotalGenerated = %d, want 1", stats.TotalGenerated)
	}
}

func TestGenerateFallbackSwitchesProvider(t *testing.T) {
	ctx := context.Background()
	broken := &stubProvider{name: "broken", dims: 8, fail: true}
	offline := fake.NewWithDimensions(8)
	svc, err := embedding.NewService([]embedding.Provider{broken, offline}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	if got := svc.CurrentProvider(); got != "broken" {
		t.Fatalf("CurrentProvider = %q before any call, want %q", got, "broken")
	}

	if _, err := svc.Generate(ctx, "smoke on the horizon"); err != nil {
		t.Fatalf("Generate with offline fallback must succeed: %v", err)
	}
	if got := svc.CurrentProvider(); got != "fake" {
		t.Errorf("CurrentProvider = %q, want %q after fallback", got, "fake")
	}

	// The switch is persistent: the next miss goes straight to the
	// fallback without re-trying the broken primary.
	before := broken.callCount()
	if _, err := svc.Generate(ctx, "a different observation"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if broken.callCount() != before {
		t.Errorf("broken provider re-tried after persistent switch")
	}
}

func TestGenerateAllProvidersExhausted(t *testing.T) {
	ctx := context.Background()
	a := &stubProvider{name: "a", dims: 8, fail: true}
	b := &stubProvider{name: "b", dims: 8, fail: true}
	svc, err := embedding.NewService([]embedding.Provider{a, b}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	_, err = svc.Generate(ctx, "nobody is home")
	if !errors.Is(err, embedding.ErrAllProvidersExhausted) {
		t.Fatalf("err = %v, want ErrAllProvidersExhausted", err)
	}

	// A failed call must not corrupt engine state.
	stats := svc.Statistics()
	if stats.TotalGenerated != 0 {
		t.Errorf("TotalGenerated = %d after total failure, want 0", stats.TotalGenerated)
	}
	if _, err := svc.Generate(ctx, "nobody is home"); !errors.Is(err, embedding.ErrAllProvidersExhausted) {
		t.Errorf("second call: err = %v, want ErrAllProvidersExhausted", err)
	}
}

func TestGenerateBatchOrderAndShape(t *testing.T) {
	ctx := context.Background()
	offline := fake.NewWithDimensions(16)
	svc, err := embedding.NewService([]embedding.Provider{offline}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	texts := []string{
		"found berries near the river",
		"the bridge is out",
		"met a trader at the crossroads",
		"",
		"found berries near the river", // duplicate input
	}
	vecs, err := svc.GenerateBatch(ctx, texts)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, vec := range vecs {
		if len(vec) != 16 {
			t.Errorf("vector %d has %d components, want 16", i, len(vec))
		}
	}

	// Order preserved: each batch entry matches the single-call vector.
	for i, text := range texts {
		single, err := svc.Generate(ctx, text)
		if err != nil {
			t.Fatalf("Generate(%q): %v", text, err)
		}
		sim, err := embedding.CosineSimilarity(vecs[i], single)
		if err != nil {
			t.Fatalf("CosineSimilarity: %v", err)
		}
		if sim < 0.9999 {
			t.Errorf("batch vector %d does not match single-call vector (sim %f)", i, sim)
		}
	}
}

func TestGenerateBatchWithPartialCache(t *testing.T) {
	ctx := context.Background()
	stub := &stubProvider{name: "stub", dims: 8}
	svc, err := embedding.NewService([]embedding.Provider{stub}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	if _, err := svc.Generate(ctx, "already cached"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	calls := stub.callCount()

	vecs, err := svc.GenerateBatch(ctx, []string{"already cached", "fresh one"})
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if got := stub.callCount() - calls; got != 1 {
		t.Errorf("provider invoked %d times for the batch, want 1 (one cached)", got)
	}
}

func TestSetProvider(t *testing.T) {
	ctx := context.Background()
	healthy := &stubProvider{name: "healthy", dims: 8}
	unreachable := &stubProvider{
		name:    "unreachable",
		dims:    8,
		pingErr: fmt.Errorf("%w: no route", embedding.ErrProviderUnavailable),
	}
	offline := fake.NewWithDimensions(8)
	svc, err := embedding.NewService([]embedding.Provider{offline, healthy, unreachable}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	if svc.SetProvider(ctx, "unknown") {
		t.Error("SetProvider accepted an unregistered name")
	}
	if !svc.SetProvider(ctx, "healthy") {
		t.Error("SetProvider rejected a healthy provider")
	}
	if got := svc.CurrentProvider(); got != "healthy" {
		t.Errorf("CurrentProvider = %q, want %q", got, "healthy")
	}
	if svc.SetProvider(ctx, "unreachable") {
		t.Error("SetProvider accepted a provider whose ping fails")
	}
	if got := svc.CurrentProvider(); got != "healthy" {
		t.Errorf("CurrentProvider = %q after rejected switch, want %q", got, "healthy")
	}
}

func TestStatisticsAccumulateCost(t *testing.T) {
	ctx := context.Background()
	stub := &stubProvider{name: "stub", dims: 8, cost: 0.001}
	svc, err := embedding.NewService([]embedding.Provider{stub}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	for _, text := range []string{"one", "two", "three"} {
		if _, err := svc.Generate(ctx, text); err != nil {
			t.Fatalf("Generate(%q): %v", text, err)
		}
	}

	stats := svc.Statistics()
	if stats.TotalGenerated != 3 {
		t.Errorf("TotalGenerated = %d, want 3", stats.TotalGenerated)
	}
	want := 0.003
	if diff := stats.TotalCost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCost = %f, want %f", stats.TotalCost, want)
	}
	if stats.Provider != "stub" || stats.Model != "stub-model" {
		t.Errorf("stats identity = %s/%s, want stub/stub-model", stats.Provider, stats.Model)
	}
}

func TestConcurrentGenerate(t *testing.T) {
	ctx := context.Background()
	offline := fake.NewWithDimensions(8)
	svc, err := embedding.NewService([]embedding.Provider{offline}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Generate(ctx, fmt.Sprintf("observation %d", n%5))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Generate: %v", err)
		}
	}

	stats := svc.Statistics()
	if got := stats.CacheHits + stats.CacheMisses; got != 20 {
		t.Errorf("hits+misses = %d, want 20", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	v := []float32{0.5, -0.25, 1.5}
	w := []float32{1, 0, 0}

	self, err := embedding.CosineSimilarity(v, v)
	if err != nil {
		t.Fatalf("CosineSimilarity(v, v): %v", err)
	}
	if self < 0.9999 || self > 1.0001 {
		t.Errorf("CosineSimilarity(v, v) = %f, want 1", self)
	}

	ab, err := embedding.CosineSimilarity(v, w)
	if err != nil {
		t.Fatalf("CosineSimilarity(v, w): %v", err)
	}
	ba, err := embedding.CosineSimilarity(w, v)
	if err != nil {
		t.Fatalf("CosineSimilarity(w, v): %v", err)
	}
	if ab != ba {
		t.Errorf("not symmetric: %f vs %f", ab, ba)
	}

	if _, err := embedding.CosineSimilarity(v, []float32{1, 2}); !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("dimension mismatch: err = %v, want ErrDimensionMismatch", err)
	}

	zero, err := embedding.CosineSimilarity([]float32{0, 0, 0}, v)
	if err != nil {
		t.Fatalf("zero vector: %v", err)
	}
	if zero != 0 {
		t.Errorf("zero-magnitude similarity = %f, want 0", zero)
	}
}
