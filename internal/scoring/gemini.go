package scoring

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const promptTemplate = `You rate employee helpdesk messages for escalation risk.

TICKET TITLE: %s
CATEGORY: %s
PRIORITY: %s

LATEST MESSAGE FROM THE EMPLOYEE:
%s

Reply with JSON only: {"score": <integer 0-100, higher means angrier or more urgent>, "sentiment": "positive" | "neutral" | "negative" | "angry"}`

// GeminiScorer calls a Gemini model to score comments.
type GeminiScorer struct {
	client *genai.Client
	model  string
}

// NewGeminiScorer creates the client. Call Close on shutdown.
func NewGeminiScorer(ctx context.Context, apiKey, model string) (*GeminiScorer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiScorer{client: client, model: model}, nil
}

func (s *GeminiScorer) Score(ctx context.Context, ticket *domain.Ticket, comment *domain.Comment) (Result, error) {
	model := s.client.GenerativeModel(s.model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	prompt := fmt.Sprintf(promptTemplate, ticket.Title, ticket.Category, ticket.Priority, comment.Body)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("no response generated")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return ParseReply(text.String())
}

// Close releases the client.
func (s *GeminiScorer) Close() error {
	return s.client.Close()
}
