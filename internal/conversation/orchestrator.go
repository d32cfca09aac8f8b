package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"go.uber.org/zap"
)

// Orchestrator produces one conversation turn: it assembles the context
// window, runs the streamed generation call, and persists the turn only
// after the stream has completed. An interrupted stream persists nothing.
type Orchestrator struct {
	store          storage.ConversationStore
	generator      genai.Generator
	window         *WindowBuilder
	retrievalLimit int
	logger         *zap.Logger
}

func NewOrchestrator(store storage.ConversationStore, generator genai.Generator, window *WindowBuilder, retrievalLimit int, logger *zap.Logger) *Orchestrator {
	if retrievalLimit <= 0 {
		retrievalLimit = DefaultRetrievalLimit
	}
	return &Orchestrator{
		store:          store,
		generator:      generator,
		window:         window,
		retrievalLimit: retrievalLimit,
		logger:         logger,
	}
}

// SendMessage runs one full turn for the user. Chunks of the reply are
// forwarded to onChunk (which may be nil) as they arrive; the complete turn
// is persisted and returned once the stream finishes with its usage summary.
func (o *Orchestrator) SendMessage(ctx context.Context, userID int64, userMessage string, onChunk func(chunk string) error) (*models.Turn, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, &models.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	history, err := o.store.RecentTurns(ctx, userID, o.retrievalLimit)
	if err != nil {
		return nil, err
	}

	win := o.window.Build(SystemPrompt, history, userMessage)
	o.logger.Debug("Built context window",
		zap.Int64("user_id", userID),
		zap.Int("included_turns", win.IncludedTurns),
		zap.Int("estimated_tokens", win.EstimatedTokens))

	result, err := o.generator.Stream(ctx, SystemPrompt, win.Messages, onChunk)
	if err != nil {
		// No partial turn is ever written.
		return nil, err
	}

	turn := &models.Turn{
		ID:         uuid.New().String(),
		UserID:     userID,
		UserMsg:    userMessage,
		AIResponse: result.Content,
		TokensUsed: result.Usage.Total(),
		CreatedAt:  time.Now(),
	}
	if err := o.store.AppendTurn(ctx, turn); err != nil {
		o.logger.Error("Failed to persist turn",
			zap.Error(err),
			zap.Int64("user_id", userID))
		return nil, err
	}
	return turn, nil
}

// DetectCrisis reports whether the message contains a crisis keyword.
func DetectCrisis(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range crisisKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
