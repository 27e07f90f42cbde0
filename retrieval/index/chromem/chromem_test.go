package chromem

import (
	"context"
	"testing"
)

func TestQueryNearestFirst(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := map[string][]float32{
		"east":      {1, 0, 0},
		"north":     {0, 1, 0},
		"northeast": {0.8, 0.6, 0},
	}
	for id, vec := range vectors {
		if err := idx.Add(ctx, id, vec); err != nil {
			t.Fatalf("Add(%q): %v", id, err)
		}
	}

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	wantOrder := []string{"east", "northeast", "north"}
	for i, want := range wantOrder {
		if matches[i].ID != want {
			t.Errorf("match %d = %q, want %q", i, matches[i].ID, want)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("similarity increased at position %d", i)
		}
	}
	if matches[0].Similarity < 0.999 {
		t.Errorf("exact match similarity = %f, want ~1", matches[0].Similarity)
	}
}

func TestQueryClampsK(t *testing.T) {
	ctx := context.Background()
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Empty index answers without erroring.
	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Query on empty index: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches from empty index", len(matches))
	}

	if err := idx.Add(ctx, "only", []float32{0, 1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	matches, err = idx.Query(ctx, []float32{0, 1, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "only" {
		t.Errorf("matches = %v, want the single stored vector", matches)
	}
}
