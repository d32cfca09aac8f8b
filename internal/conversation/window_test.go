package conversation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeHistory builds n turns, oldest first, each message padded to exactly
// 40 characters so every pair costs 20 estimated tokens.
func makeHistory(n int) []models.Turn {
	turns := make([]models.Turn, n)
	for i := 0; i < n; i++ {
		turns[i] = models.Turn{
			ID:         fmt.Sprintf("turn-%d", i),
			UserMsg:    pad(fmt.Sprintf("user message %d", i), 40),
			AIResponse: pad(fmt.Sprintf("ai response %d", i), 40),
		}
	}
	return turns
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(".", n-len(s))
}

func TestCharCountEstimator(t *testing.T) {
	est := CharCountEstimator{}
	assert.Equal(t, 0, est.EstimateTokens(""))
	assert.Equal(t, 0, est.EstimateTokens("abc"))
	assert.Equal(t, 1, est.EstimateTokens("abcd"))
	assert.Equal(t, 10, est.EstimateTokens(strings.Repeat("x", 40)))
}

func TestBuildEmptyHistory(t *testing.T) {
	b := NewWindowBuilder(CharCountEstimator{}, 180000, 10)

	win := b.Build("system", nil, "Hi")

	require.Len(t, win.Messages, 1)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "Hi"}, win.Messages[0])
	assert.Equal(t, 0, win.IncludedTurns)
}

func TestBuildNewMessageAlwaysLast(t *testing.T) {
	b := NewWindowBuilder(CharCountEstimator{}, 180000, 10)

	win := b.Build("system", makeHistory(5), "How are you?")

	last := win.Messages[len(win.Messages)-1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Equal(t, "How are you?", last.Content)
}

func TestBuildHistoryShorterThanFloor(t *testing.T) {
	// A tiny budget cannot evict turns below the floor.
	b := NewWindowBuilder(CharCountEstimator{}, 1, 10)

	history := makeHistory(4)
	win := b.Build("system", history, "Hi")

	assert.Equal(t, 4, win.IncludedTurns)
	require.Len(t, win.Messages, 9)
	assert.Equal(t, history[0].UserMsg, win.Messages[0].Content)
}

func TestBuildBudgetTruncationKeepsFloor(t *testing.T) {
	// 60 turns at 20 tokens a pair; a budget of 1 forces truncation down to
	// exactly the floor of the 10 most recent turns.
	b := NewWindowBuilder(CharCountEstimator{}, 1, 10)

	history := makeHistory(60)
	win := b.Build("system", history, "Hi")

	assert.Equal(t, 10, win.IncludedTurns)
	require.Len(t, win.Messages, 21)

	// The oldest turns were dropped; the survivors keep chronological order.
	assert.Equal(t, history[50].UserMsg, win.Messages[0].Content)
	assert.Equal(t, history[50].AIResponse, win.Messages[1].Content)
	assert.Equal(t, history[59].AIResponse, win.Messages[19].Content)
	assert.Equal(t, "Hi", win.Messages[20].Content)
}

func TestBuildBudgetAllowsMoreThanFloor(t *testing.T) {
	// System prompt costs 10 tokens, each pair 20. A budget of 330 fits the
	// floor plus six more pairs before the first skip stops the walk.
	b := NewWindowBuilder(CharCountEstimator{}, 330, 10)

	history := makeHistory(60)
	win := b.Build(pad("system", 40), history, "Hi")

	assert.Equal(t, 16, win.IncludedTurns)
	assert.Equal(t, history[44].UserMsg, win.Messages[0].Content)
}

func TestBuildLargeBudgetIncludesAll(t *testing.T) {
	b := NewWindowBuilder(CharCountEstimator{}, 180000, 10)

	history := makeHistory(50)
	win := b.Build("system", history, "Hi")

	assert.Equal(t, 50, win.IncludedTurns)
	require.Len(t, win.Messages, 101)

	// Alternating user/assistant pairs in chronological order.
	for i := 0; i < 100; i += 2 {
		assert.Equal(t, models.RoleUser, win.Messages[i].Role)
		assert.Equal(t, models.RoleAssistant, win.Messages[i+1].Role)
	}
}

func TestBuildReportedCostCountsNewMessage(t *testing.T) {
	b := NewWindowBuilder(CharCountEstimator{}, 180000, 10)

	win := b.Build(pad("system", 40), makeHistory(2), pad("hello", 40))

	// 10 (system) + 2*20 (pairs) + 10 (new message)
	assert.Equal(t, 60, win.EstimatedTokens)
}
