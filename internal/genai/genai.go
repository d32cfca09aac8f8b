// Package genai wraps the text-generation collaborator behind a small
// interface so the conversation and insight pipelines can be tested with a
// fake generator.
package genai

import (
	"context"

	"github.com/solenne-labs/serene-bot/internal/models"
)

// Result is the outcome of one completed generation call.
type Result struct {
	Content string
	Usage   models.Usage
}

// Generator produces text from a system prompt and an ordered message list.
// Implementations return *models.TransientGenerationError when the call
// fails, times out, or is cancelled; callers must persist nothing in that
// case.
type Generator interface {
	// Generate performs a batch call and returns the full response.
	Generate(ctx context.Context, systemPrompt string, messages []models.Message) (*Result, error)

	// Stream performs a streaming call, invoking onChunk for each text
	// fragment as it arrives, and returns the buffered response with its
	// usage once the stream completes. An interrupted stream yields an
	// error and no Result.
	Stream(ctx context.Context, systemPrompt string, messages []models.Message, onChunk func(chunk string) error) (*Result, error)
}
