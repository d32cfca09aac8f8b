package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	content string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (*genai.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &genai.Result{Content: f.content, Usage: models.Usage{InputTokens: 50, OutputTokens: 30}}, nil
}

func (f *fakeGenerator) Stream(ctx context.Context, systemPrompt string, messages []models.Message, onChunk func(string) error) (*genai.Result, error) {
	return f.Generate(ctx, systemPrompt, messages)
}

func TestExtractParsesActions(t *testing.T) {
	gen := &fakeGenerator{content: `{"actions": [
		{"title": "Start journaling", "description": "Write a few lines each evening"},
		{"title": "", "description": "dropped"},
		{"title": "Walk 20 minutes"}
	]}`}
	e := NewGenerativeExtractor(gen, zap.NewNop())

	got, err := e.Extract(context.Background(), "I keep meaning to journal and walk more")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Start journaling", got[0].Title)
	assert.Equal(t, "Walk 20 minutes", got[1].Title)
}

func TestExtractStripsMarkdownFences(t *testing.T) {
	gen := &fakeGenerator{content: "```json\n{\"actions\": [{\"title\": \"Sleep earlier\"}]}\n```"}
	e := NewGenerativeExtractor(gen, zap.NewNop())

	got, err := e.Extract(context.Background(), "anything")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Sleep earlier", got[0].Title)
}

func TestExtractMalformedResponseYieldsNothing(t *testing.T) {
	gen := &fakeGenerator{content: "I think you should sleep more!"}
	e := NewGenerativeExtractor(gen, zap.NewNop())

	got, err := e.Extract(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractPropagatesGenerationError(t *testing.T) {
	gen := &fakeGenerator{err: &models.TransientGenerationError{Op: "generate", Err: errors.New("timeout")}}
	e := NewGenerativeExtractor(gen, zap.NewNop())

	_, err := e.Extract(context.Background(), "anything")

	var terr *models.TransientGenerationError
	require.ErrorAs(t, err, &terr)
}

func TestSuggestPersistsProposals(t *testing.T) {
	gen := &fakeGenerator{content: `{"message": "Here are some ideas for you",
		"actions": [{"title": "Morning sunlight", "description": "Ten minutes outside after waking"}]}`}
	store := storage.NewMemoryStorage()
	workflow := NewWorkflow(store, zap.NewNop())
	s := NewSuggester(store, gen, workflow, zap.NewNop())

	result, err := s.Suggest(context.Background(), 1, "")
	require.NoError(t, err)

	assert.Equal(t, "Here are some ideas for you", result.Message)
	require.Len(t, result.Proposals, 1)
	assert.Equal(t, models.ProposalPending, result.Proposals[0].Status)

	pending, err := workflow.Pending(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSuggestGenerationFailurePersistsNothing(t *testing.T) {
	gen := &fakeGenerator{err: &models.TransientGenerationError{Op: "generate", Err: errors.New("cancelled")}}
	store := storage.NewMemoryStorage()
	workflow := NewWorkflow(store, zap.NewNop())
	s := NewSuggester(store, gen, workflow, zap.NewNop())

	_, err := s.Suggest(context.Background(), 1, "")

	var terr *models.TransientGenerationError
	require.ErrorAs(t, err, &terr)

	pending, err := workflow.Pending(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
