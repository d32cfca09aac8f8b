package conversation

import (
	"github.com/solenne-labs/serene-bot/internal/models"
)

// TokenEstimator approximates the token cost of a piece of text. It sits
// behind an interface so the characters/4 heuristic can be swapped for a
// real tokenizer without touching the window-building control flow.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// CharCountEstimator estimates one token per four characters.
type CharCountEstimator struct{}

func (CharCountEstimator) EstimateTokens(text string) int {
	return len(text) / 4
}

const (
	DefaultTokenBudget    = 180000
	DefaultMinRecentTurns = 10
	DefaultRetrievalLimit = 50
)

// Window is the bounded, ordered message list for one generation call.
type Window struct {
	// Messages are oldest-first, alternating user/assistant pairs, with the
	// new user message last.
	Messages []models.Message
	// IncludedTurns is how many history pairs made it into the window.
	IncludedTurns int
	// EstimatedTokens is the estimated cost of the system prompt, every
	// included pair, and the new user message.
	EstimatedTokens int
}

// WindowBuilder assembles generation windows under a soft token budget with
// a guaranteed floor of recent turns. It is a pure computation: it performs
// no I/O, holds no mutable state, and never fails on degenerate input.
type WindowBuilder struct {
	estimator TokenEstimator
	budget    int
	floor     int
}

func NewWindowBuilder(estimator TokenEstimator, budget, floor int) *WindowBuilder {
	if estimator == nil {
		estimator = CharCountEstimator{}
	}
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if floor <= 0 {
		floor = DefaultMinRecentTurns
	}
	return &WindowBuilder{estimator: estimator, budget: budget, floor: floor}
}

// Build selects which history turns accompany the new user message.
//
// History must be chronological, oldest first. Selection walks backward from
// the newest turn: a pair is always included while fewer than floor pairs
// are selected, then only while the running cost (seeded with the system
// prompt) stays within budget. The first budget skip past the floor ends the
// walk, so the dropped turns are always the oldest and the surviving order
// is untouched. The new user message is appended last, unconditionally, and
// counted in the reported estimate.
func (b *WindowBuilder) Build(systemPrompt string, history []models.Turn, newMessage string) Window {
	running := b.estimator.EstimateTokens(systemPrompt)

	included := 0
	for i := len(history) - 1; i >= 0; i-- {
		pairCost := b.estimator.EstimateTokens(history[i].UserMsg) +
			b.estimator.EstimateTokens(history[i].AIResponse)
		if included >= b.floor && running+pairCost > b.budget {
			break
		}
		running += pairCost
		included++
	}

	messages := make([]models.Message, 0, included*2+1)
	for _, turn := range history[len(history)-included:] {
		messages = append(messages,
			models.Message{Role: models.RoleUser, Content: turn.UserMsg},
			models.Message{Role: models.RoleAssistant, Content: turn.AIResponse},
		)
	}
	messages = append(messages, models.Message{Role: models.RoleUser, Content: newMessage})

	return Window{
		Messages:        messages,
		IncludedTurns:   included,
		EstimatedTokens: running + b.estimator.EstimateTokens(newMessage),
	}
}
