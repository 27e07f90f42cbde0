package importance

import (
	"context"
	"testing"
)

func TestHeuristicScoreBounds(t *testing.T) {
	ctx := context.Background()
	s := NewHeuristicScorer()

	observations := []string{
		"",
		"walked along the path",
		"found food",
		"danger: trapped and injured, the whole camp is lost and we are starving",
	}
	for _, obs := range observations {
		score, err := s.Score(ctx, obs)
		if err != nil {
			t.Fatalf("Score(%q): %v", obs, err)
		}
		if score < 0 || score > 1 {
			t.Errorf("Score(%q) = %f, out of [0,1]", obs, score)
		}
	}
}

func TestHeuristicScoreOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewHeuristicScorer()

	routine, _ := s.Score(ctx, "walked along the path")
	salient, _ := s.Score(ctx, "found a freshwater spring")
	threat, _ := s.Score(ctx, "a predator attack left me injured")

	if salient <= routine {
		t.Errorf("salient %f <= routine %f", salient, routine)
	}
	if threat <= salient {
		t.Errorf("threat %f <= salient %f", threat, salient)
	}
}

func TestHeuristicScoreDeterministic(t *testing.T) {
	ctx := context.Background()
	s := NewHeuristicScorer()

	a, _ := s.Score(ctx, "discovered a cave behind the waterfall")
	b, _ := s.Score(ctx, "discovered a cave behind the waterfall")
	if a != b {
		t.Errorf("same observation scored %f then %f", a, b)
	}
}

func TestParseRating(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"7", 7, false},
		{" 10 ", 10, false},
		{"Rating: 3.", 3, false},
		{"1", 1, false},
		{"0", 0, true},
		{"11", 0, true},
		{"no number here", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseRating(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseRating(%q) = %d, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRating(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseRating(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
