// Package scoring adapts the external sentiment model that produces red flag scores.
package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrDisabled is returned when no scorer backend is configured.
var ErrDisabled = errors.New("red flag scorer disabled")

// Result is a scored requester comment.
type Result struct {
	Score     int
	Sentiment domain.Sentiment
}

// Scorer rates how urgent or upset a requester comment reads, 0..100.
type Scorer interface {
	Score(ctx context.Context, ticket *domain.Ticket, comment *domain.Comment) (Result, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, ticket *domain.Ticket, comment *domain.Comment) (Result, error)

func (f ScorerFunc) Score(ctx context.Context, ticket *domain.Ticket, comment *domain.Comment) (Result, error) {
	return f(ctx, ticket, comment)
}

type disabledScorer struct{}

// NewDisabledScorer returns a scorer that always fails with ErrDisabled.
func NewDisabledScorer() Scorer {
	return disabledScorer{}
}

func (disabledScorer) Score(context.Context, *domain.Ticket, *domain.Comment) (Result, error) {
	return Result{}, ErrDisabled
}

type modelReply struct {
	Score     json.Number `json:"score"`
	Sentiment string      `json:"sentiment"`
}

// ParseReply decodes the model's JSON answer, tolerating code fences, and clamps the score.
func ParseReply(text string) (Result, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var reply modelReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return Result{}, fmt.Errorf("decode scorer reply: %w", err)
	}
	raw, err := reply.Score.Float64()
	if err != nil {
		return Result{}, fmt.Errorf("scorer reply score: %w", err)
	}
	score := int(raw + 0.5)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	sentiment := domain.Sentiment(strings.ToLower(strings.TrimSpace(reply.Sentiment)))
	if !sentiment.Valid() {
		sentiment = domain.SentimentNeutral
	}
	return Result{Score: score, Sentiment: sentiment}, nil
}
