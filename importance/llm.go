package importance

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// LLMScorer rates observations by asking a language model for a 1-10
// salience rating, scaled to [0, 1]. API failures degrade to the
// heuristic score instead of surfacing, so callers can always append.
type LLMScorer struct {
	client   *anthropic.Client
	model    string
	fallback *HeuristicScorer
}

const scorerSystemPrompt = `You rate how important an observation is to an autonomous agent's memory.
Reply with a single integer from 1 to 10.
1 means mundane (routine movement, idle noise).
10 means critical (immediate danger, major discovery, a decision that changes plans).
Reply with the number only.`

// NewLLMScorer creates an LLM-backed scorer.
// model defaults to claude-3-5-haiku-latest when empty.
func NewLLMScorer(client *anthropic.Client, model string) *LLMScorer {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &LLMScorer{
		client:   client,
		model:    model,
		fallback: NewHeuristicScorer(),
	}
}

// Score rates observation in [0, 1].
func (s *LLMScorer) Score(ctx context.Context, observation string) (float64, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 8,
		System: []anthropic.TextBlockParam{
			{Text: scorerSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(observation)),
		},
	})
	if err != nil {
		log.Printf("[IMPORTANCE] LLM scoring failed, using heuristic: %v", err)
		return s.fallback.Score(ctx, observation)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	rating, err := parseRating(text)
	if err != nil {
		log.Printf("[IMPORTANCE] unparseable rating %q, using heuristic", text)
		return s.fallback.Score(ctx, observation)
	}
	return float64(rating) / 10.0, nil
}

// parseRating extracts the first integer in [1, 10] from the response.
func parseRating(text string) (int, error) {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		n, err := strconv.Atoi(field)
		if err == nil && n >= 1 && n <= 10 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no rating in %q", text)
}
