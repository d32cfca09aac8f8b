// Package insight maintains at most one authoritative cached insight per
// (user, insight type) and regenerates it when it goes stale.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/genai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"go.uber.org/zap"
)

// TypeWeekly is the insight type served on the dashboard.
const TypeWeekly = "weekly"

// Config holds the tunable knobs of the regeneration pipeline.
type Config struct {
	// RefreshAfter is how old a cached insight may get before a request
	// regenerates it.
	RefreshAfter time.Duration
	// MoodWindowDays bounds the mood history fed into generation.
	MoodWindowDays int
	// ConvWindowDays bounds the conversation count window.
	ConvWindowDays int
	// HistoryLimit is how many recent turns are scanned for excerpts.
	HistoryLimit int
	// MaxExcerpts caps how many user-message excerpts enter the context.
	MaxExcerpts int
	// ExcerptMaxChars truncates each excerpt to bound context size.
	ExcerptMaxChars int
	// MaxNotes caps how many recent check-in notes enter the context.
	MaxNotes int
}

func DefaultConfig() Config {
	return Config{
		RefreshAfter:    24 * time.Hour,
		MoodWindowDays:  30,
		ConvWindowDays:  30,
		HistoryLimit:    10,
		MaxExcerpts:     5,
		ExcerptMaxChars: 200,
		MaxNotes:        3,
	}
}

// Store is the slice of storage the cache needs.
type Store interface {
	storage.ConversationStore
	storage.MoodStore
	storage.InsightStore
}

// Cache decides between serving the latest persisted insight and running
// the regeneration pipeline. Regeneration for one (user, type) key is
// serialized with an in-process keyed mutex; a cross-process duplicate
// write is accepted as a rare, harmless race (the newest row wins).
type Cache struct {
	store     Store
	generator genai.Generator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewCache(store Store, generator genai.Generator, cfg Config, logger *zap.Logger) *Cache {
	if cfg.RefreshAfter <= 0 {
		cfg = DefaultConfig()
	}
	return &Cache{
		store:     store,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		keys:      make(map[string]*sync.Mutex),
	}
}

func (c *Cache) keyLock(userID int64, insightType string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%d/%s", userID, insightType)
	if _, ok := c.keys[key]; !ok {
		c.keys[key] = &sync.Mutex{}
	}
	return c.keys[key]
}

// Get returns the current insight content for the user. A fresh cached
// insight is served with zero writes. A stale or missing one triggers the
// regeneration pipeline, which persists exactly one new row on success.
// When generation fails, a static fallback is returned and nothing is
// persisted, so the next call retries.
func (c *Cache) Get(ctx context.Context, userID int64, insightType string) (string, error) {
	lock := c.keyLock(userID, insightType)
	lock.Lock()
	defer lock.Unlock()

	latest, err := c.store.LatestInsight(ctx, userID, insightType)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	if latest != nil && c.now().Sub(latest.CreatedAt) <= c.cfg.RefreshAfter {
		return latest.Content, nil
	}

	return c.regenerate(ctx, userID, insightType)
}

// IsStale reports whether the next Get for the key would regenerate.
func (c *Cache) IsStale(ctx context.Context, userID int64, insightType string) (bool, error) {
	latest, err := c.store.LatestInsight(ctx, userID, insightType)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return c.now().Sub(latest.CreatedAt) > c.cfg.RefreshAfter, nil
}

func (c *Cache) regenerate(ctx context.Context, userID int64, insightType string) (string, error) {
	now := c.now()

	moods, err := c.store.MoodHistory(ctx, userID, now.AddDate(0, 0, -c.cfg.MoodWindowDays))
	if err != nil {
		return "", err
	}
	convCount, err := c.store.CountTurnsSince(ctx, userID, now.AddDate(0, 0, -c.cfg.ConvWindowDays))
	if err != nil {
		return "", err
	}
	history, err := c.store.RecentTurns(ctx, userID, c.cfg.HistoryLimit)
	if err != nil {
		return "", err
	}

	basis := models.InsightBasis{
		DaysCount: c.daysWithData(moods, now),
		ConvCount: convCount,
		AvgMood:   averageMood(moods),
	}
	basis.Maturity = models.MaturityForDays(basis.DaysCount)

	systemPrompt := promptForMaturity(string(basis.Maturity), basis.DaysCount)
	dataContext := c.buildDataContext(moods, history, basis)

	result, err := c.generator.Generate(ctx, systemPrompt, []models.Message{
		{Role: models.RoleUser, Content: dataContext},
	})
	if err != nil {
		// Serve the apology without caching it so the next call retries.
		c.logger.Error("Insight generation failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("type", insightType))
		return fallbackMessage, nil
	}

	record := &models.Insight{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       insightType,
		Content:    result.Content,
		Basis:      basis,
		TokensUsed: result.Usage.Total(),
		CreatedAt:  now,
	}
	if err := c.store.SaveInsight(ctx, record); err != nil {
		return "", fmt.Errorf("error persisting insight: %w", err)
	}
	return record.Content, nil
}

// daysWithData counts whole calendar days between now and the earliest
// check-in, plus one so a single entry made today counts as one day. It is
// a measure of elapsed span, not record count.
func (c *Cache) daysWithData(moods []models.MoodEntry, now time.Time) int {
	if len(moods) == 0 {
		return 0
	}
	// History is newest-first; the earliest entry is last.
	earliest := moods[len(moods)-1].CreatedAt
	return int(now.Sub(earliest).Hours()/24) + 1
}

func averageMood(moods []models.MoodEntry) float64 {
	if len(moods) == 0 {
		return 0
	}
	sum := 0
	for _, m := range moods {
		sum += m.Score
	}
	return float64(sum) / float64(len(moods))
}

// buildDataContext renders the aggregate stats and truncated excerpts that
// make up the generation request body.
func (c *Cache) buildDataContext(moods []models.MoodEntry, history []models.Turn, basis models.InsightBasis) string {
	parts := []string{
		fmt.Sprintf("Days of tracked data: %d", basis.DaysCount),
		fmt.Sprintf("Conversations: %d", basis.ConvCount),
	}

	if len(moods) > 0 {
		parts = append(parts, fmt.Sprintf("Average mood score: %.1f/10", basis.AvgMood))

		var notes []string
		for _, m := range moods {
			if len(notes) >= c.cfg.MaxNotes {
				break
			}
			if strings.TrimSpace(m.Notes) != "" {
				notes = append(notes, "- "+m.Notes)
			}
		}
		if len(notes) > 0 {
			parts = append(parts, "Recent check-in notes:\n"+strings.Join(notes, "\n"))
		}
	}

	if len(history) > 0 {
		var excerpts []string
		// History is oldest-first; walk backward for the most recent messages.
		for i := len(history) - 1; i >= 0 && len(excerpts) < c.cfg.MaxExcerpts; i-- {
			msg := history[i].UserMsg
			if msg == "" {
				continue
			}
			if len(msg) > c.cfg.ExcerptMaxChars {
				msg = msg[:c.cfg.ExcerptMaxChars] + "..."
			}
			excerpts = append(excerpts, "- "+msg)
		}
		if len(excerpts) > 0 {
			parts = append(parts, "Recent conversation excerpts:\n"+strings.Join(excerpts, "\n"))
		}
	}

	return strings.Join(parts, "\n\n")
}
