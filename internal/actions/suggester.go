package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"go.uber.org/zap"
)

// SuggesterStore is the slice of storage the suggester reads to build the
// user context.
type SuggesterStore interface {
	storage.ConversationStore
	storage.MoodStore
	storage.ActionItemStore
}

// SuggestionResult holds the generated intro message and the proposals
// persisted from one suggestion run.
type SuggestionResult struct {
	Message   string
	Proposals []models.Proposal
}

// Suggester asks the generator for new personalized actions based on the
// user's recent check-ins, conversations, and action items, and persists
// them as pending proposals through the workflow.
type Suggester struct {
	store     SuggesterStore
	generator genai.Generator
	workflow  *Workflow
	logger    *zap.Logger
}

func NewSuggester(store SuggesterStore, generator genai.Generator, workflow *Workflow, logger *zap.Logger) *Suggester {
	return &Suggester{store: store, generator: generator, workflow: workflow, logger: logger}
}

// Suggest runs one suggestion round for the user. Generation failures are
// surfaced to the caller; nothing is persisted on that path.
func (s *Suggester) Suggest(ctx context.Context, userID int64, conversationID string) (*SuggestionResult, error) {
	userContext, err := s.buildContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.generator.Generate(ctx, suggestionPrompt, []models.Message{
		{Role: models.RoleUser, Content: userContext},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Message string      `json:"message"`
		Actions []Candidate `json:"actions"`
	}
	cleaned := stripCodeFences(result.Content)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		s.logger.Warn("Failed to parse suggestion response",
			zap.Error(err),
			zap.String("response", cleaned))
		return &SuggestionResult{}, nil
	}

	proposals, err := s.workflow.ProposeExtracted(ctx, userID, conversationID, parsed.Actions)
	if err != nil {
		return nil, err
	}
	return &SuggestionResult{Message: parsed.Message, Proposals: proposals}, nil
}

func (s *Suggester) buildContext(ctx context.Context, userID int64) (string, error) {
	now := time.Now()

	checkins, err := s.store.MoodHistory(ctx, userID, now.AddDate(0, 0, -7))
	if err != nil {
		return "", err
	}
	recent, err := s.store.RecentTurns(ctx, userID, 5)
	if err != nil {
		return "", err
	}
	active, err := s.store.ActionItems(ctx, userID, models.ActionInProgress, 10)
	if err != nil {
		return "", err
	}
	completed, err := s.store.ActionItems(ctx, userID, models.ActionCompleted, 5)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("USER CONTEXT:\n\n")

	if len(checkins) > 0 {
		b.WriteString("Recent check-ins:\n")
		for _, c := range checkins {
			fmt.Fprintf(&b, "- Mood: %d/10", c.Score)
			if c.Notes != "" {
				notes := c.Notes
				if len(notes) > 100 {
					notes = notes[:100]
				}
				fmt.Fprintf(&b, " | Notes: %s", notes)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(recent) > 0 {
		b.WriteString("Recent conversation excerpts:\n")
		// Turns are oldest-first; take up to the three most recent.
		start := len(recent) - 3
		if start < 0 {
			start = 0
		}
		for _, t := range recent[start:] {
			msg := t.UserMsg
			if len(msg) > 200 {
				msg = msg[:200]
			}
			fmt.Fprintf(&b, "- %s\n", msg)
		}
		b.WriteString("\n")
	}

	if len(active) > 0 {
		b.WriteString("Actions in progress:\n")
		for _, a := range active {
			fmt.Fprintf(&b, "- %s\n", a.Title)
		}
		b.WriteString("\n")
	}

	if len(completed) > 0 {
		b.WriteString("Recently completed actions:\n")
		for _, a := range completed {
			fmt.Fprintf(&b, "- %s\n", a.Title)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}
