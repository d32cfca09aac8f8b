// Package actions turns AI-suggested wellness actions into reviewable
// proposals and executes their accept/reject lifecycle.
package actions

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"go.uber.org/zap"
)

// Candidate is one action suggested by the extraction collaborator. It
// carries no persistence side effects; the Workflow owns persistence.
type Candidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Extractor proposes zero or more candidate actions from a piece of text.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]Candidate, error)
}

// GenerativeExtractor implements Extractor with a generation call that
// returns structured JSON.
type GenerativeExtractor struct {
	generator genai.Generator
	logger    *zap.Logger
}

func NewGenerativeExtractor(generator genai.Generator, logger *zap.Logger) *GenerativeExtractor {
	return &GenerativeExtractor{generator: generator, logger: logger}
}

func (e *GenerativeExtractor) Extract(ctx context.Context, text string) ([]Candidate, error) {
	result, err := e.generator.Generate(ctx, extractionPrompt, []models.Message{
		{Role: models.RoleUser, Content: text},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Actions []Candidate `json:"actions"`
	}
	cleaned := stripCodeFences(result.Content)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		// Malformed output is treated as "nothing to extract", not a failure.
		e.logger.Warn("Failed to parse extraction response",
			zap.Error(err),
			zap.String("response", cleaned))
		return nil, nil
	}

	candidates := parsed.Actions[:0]
	for _, c := range parsed.Actions {
		if strings.TrimSpace(c.Title) != "" {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// stripCodeFences removes markdown code fences the model sometimes wraps
// its JSON in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
