// Package importance scores how salient an observation is before it enters
// the memory stream. Scoring happens upstream of retrieval: callers score
// an observation, then append it with stream.AddObservation.
//
// Implementations:
//   - HeuristicScorer: keyword and shape heuristics, no dependencies
//   - LLMScorer: asks a language model to rate salience, with heuristic
//     fallback on API failure
package importance

import (
	"context"
	"strings"
)

// Scorer rates an observation's salience in [0, 1].
type Scorer interface {
	Score(ctx context.Context, observation string) (float64, error)
}

// HeuristicScorer rates observations from surface features. More important
// observations are prioritized for retrieval.
type HeuristicScorer struct{}

// NewHeuristicScorer creates a heuristic scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// dangerWords mark observations worth remembering for survival.
var dangerWords = []string{
	"danger", "threat", "attack", "injured", "hurt", "trapped", "failed",
	"lost", "dying", "starving", "poison",
}

// salientWords mark notable but non-threatening events.
var salientWords = []string{
	"found", "discovered", "learned", "decided", "met", "built", "reached",
}

// Score rates observation in [0, 1]. Never fails.
func (s *HeuristicScorer) Score(ctx context.Context, observation string) (float64, error) {
	score := 0.3 // Base for routine observations
	lower := strings.ToLower(observation)

	for _, word := range dangerWords {
		if strings.Contains(lower, word) {
			score += 0.4
			break
		}
	}
	for _, word := range salientWords {
		if strings.Contains(lower, word) {
			score += 0.2
			break
		}
	}

	// Longer observations tend to carry reasoning worth keeping.
	if len(observation) > 50 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, nil
}
