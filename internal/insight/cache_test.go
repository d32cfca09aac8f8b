package insight

import (
	"context"
	"errors"
	"testing"
	"time"

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
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (*genai.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &genai.Result{Content: f.content, Usage: models.Usage{InputTokens: 100, OutputTokens: 50}}, nil
}

func (f *fakeGenerator) Stream(ctx context.Context, systemPrompt string, messages []models.Message, onChunk func(string) error) (*genai.Result, error) {
	return f.Generate(ctx, systemPrompt, messages)
}

// recordingStore counts insight writes so tests can assert on exactly how
// many rows a Get call produced.
type recordingStore struct {
	*storage.MemoryStorage
	saved []*models.Insight
}

func (r *recordingStore) SaveInsight(ctx context.Context, insight *models.Insight) error {
	r.saved = append(r.saved, insight)
	return r.MemoryStorage.SaveInsight(ctx, insight)
}

func newTestCache(gen genai.Generator) (*Cache, *recordingStore) {
	store := &recordingStore{MemoryStorage: storage.NewMemoryStorage()}
	cache := NewCache(store, gen, DefaultConfig(), zap.NewNop())
	return cache, store
}

func TestGetGeneratesAndPersistsFirstInsight(t *testing.T) {
	gen := &fakeGenerator{content: "your first insight"}
	cache, store := newTestCache(gen)

	content, err := cache.Get(context.Background(), 1, TypeWeekly)
	require.NoError(t, err)

	assert.Equal(t, "your first insight", content)
	assert.Equal(t, 1, gen.calls)
	require.Len(t, store.saved, 1)
	assert.Equal(t, TypeWeekly, store.saved[0].Type)
	assert.Equal(t, 150, store.saved[0].TokensUsed)
	assert.Equal(t, models.MaturityEarly, store.saved[0].Basis.Maturity)
	assert.Equal(t, 0, store.saved[0].Basis.DaysCount)
}

func TestGetServesCachedWithinRefreshWindow(t *testing.T) {
	gen := &fakeGenerator{content: "cached insight"}
	cache, store := newTestCache(gen)
	ctx := context.Background()

	first, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	second, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls, "second call must not regenerate")
	assert.Len(t, store.saved, 1, "second call must not write")
}

func TestGetRegeneratesAfterRefreshWindow(t *testing.T) {
	gen := &fakeGenerator{content: "insight"}
	cache, store := newTestCache(gen)
	ctx := context.Background()

	_, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)

	// Jump past the refresh window.
	cache.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	gen.content = "newer insight"
	content, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)

	assert.Equal(t, "newer insight", content)
	assert.Equal(t, 2, gen.calls)
	require.Len(t, store.saved, 2, "prior record must be retained, not replaced")

	latest, err := store.LatestInsight(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.Equal(t, "newer insight", latest.Content)
}

func TestGetFailureReturnsFallbackAndPersistsNothing(t *testing.T) {
	gen := &fakeGenerator{err: &models.TransientGenerationError{Op: "generate", Err: errors.New("timeout")}}
	cache, store := newTestCache(gen)
	ctx := context.Background()

	content, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.Equal(t, fallbackMessage, content)
	assert.Empty(t, store.saved)

	// The next call retries generation instead of serving the apology.
	gen.err = nil
	gen.content = "recovered insight"
	content, err = cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.Equal(t, "recovered insight", content)
	assert.Equal(t, 2, gen.calls)
	assert.Len(t, store.saved, 1)
}

func TestIsStale(t *testing.T) {
	gen := &fakeGenerator{content: "insight"}
	cache, _ := newTestCache(gen)
	ctx := context.Background()

	stale, err := cache.IsStale(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.True(t, stale, "no insight yet")

	_, err = cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)

	stale, err = cache.IsStale(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.False(t, stale)

	cache.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	stale, err = cache.IsStale(ctx, 1, TypeWeekly)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestDaysWithData(t *testing.T) {
	cache, _ := newTestCache(&fakeGenerator{})
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	entryAt := func(t time.Time) models.MoodEntry {
		return models.MoodEntry{Score: 5, CreatedAt: t}
	}

	assert.Equal(t, 0, cache.daysWithData(nil, now))

	// A single entry made today is one day of data, even with many records.
	today := []models.MoodEntry{entryAt(now.Add(-2 * time.Hour))}
	assert.Equal(t, 1, cache.daysWithData(today, now))

	burst := []models.MoodEntry{
		entryAt(now.Add(-1 * time.Hour)),
		entryAt(now.Add(-2 * time.Hour)),
		entryAt(now.Add(-3 * time.Hour)),
	}
	assert.Equal(t, 1, cache.daysWithData(burst, now))

	// Newest-first history spanning three calendar days.
	span := []models.MoodEntry{
		entryAt(now),
		entryAt(now.AddDate(0, 0, -1)),
		entryAt(now.AddDate(0, 0, -2)),
	}
	assert.Equal(t, 3, cache.daysWithData(span, now))
}

func TestMaturityBoundaries(t *testing.T) {
	cases := []struct {
		days int
		want models.Maturity
	}{
		{0, models.MaturityEarly},
		{1, models.MaturityEarly},
		{2, models.MaturityEarly},
		{3, models.MaturityDeveloping},
		{6, models.MaturityDeveloping},
		{7, models.MaturityMature},
		{30, models.MaturityMature},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.MaturityForDays(tc.days), "days=%d", tc.days)
	}
}

func TestDataContextIncludesMoodStatsAndExcerpts(t *testing.T) {
	gen := &fakeGenerator{content: "insight"}
	cache, store := newTestCache(gen)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.AddMoodEntry(ctx, &models.MoodEntry{
		ID: "m1", UserID: 1, Score: 4, Notes: "slept badly", CreatedAt: now.Add(-26 * time.Hour),
	}))
	require.NoError(t, store.AddMoodEntry(ctx, &models.MoodEntry{
		ID: "m2", UserID: 1, Score: 8, CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, store.AppendTurn(ctx, &models.Turn{
		ID: "t1", UserID: 1, UserMsg: "I want to start running again", AIResponse: "ok", CreatedAt: now,
	}))

	_, err := cache.Get(ctx, 1, TypeWeekly)
	require.NoError(t, err)

	require.Len(t, store.saved, 1)
	basis := store.saved[0].Basis
	assert.Equal(t, 2, basis.DaysCount)
	assert.Equal(t, models.MaturityEarly, basis.Maturity)
	assert.Equal(t, 1, basis.ConvCount)
	assert.InDelta(t, 6.0, basis.AvgMood, 0.001)
}

func TestExcerptTruncation(t *testing.T) {
	cache, _ := newTestCache(&fakeGenerator{})

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	history := []models.Turn{{UserMsg: string(long)}}
	got := cache.buildDataContext(nil, history, models.InsightBasis{})

	assert.Contains(t, got, "...")
	assert.NotContains(t, got, string(long))
}
