package storage_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends lists every Storage implementation the suite runs against.
func backends(t *testing.T) map[string]storage.Storage {
	t.Helper()

	sqliteStore, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "serene-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]storage.Storage{
		"memory": storage.NewMemoryStorage(),
		"sqlite": sqliteStore,
	}
}

func newTurn(userID int64, msg string, at time.Time) *models.Turn {
	return &models.Turn{
		ID:         uuid.New().String(),
		UserID:     userID,
		UserMsg:    msg,
		AIResponse: "reply to " + msg,
		TokensUsed: 42,
		CreatedAt:  at,
	}
}

func TestRecentTurnsChronologicalOrder(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour)

			for i := 0; i < 5; i++ {
				require.NoError(t, store.AppendTurn(ctx, newTurn(1, fmt.Sprintf("msg %d", i), base.Add(time.Duration(i)*time.Minute))))
			}

			turns, err := store.RecentTurns(ctx, 1, 3)
			require.NoError(t, err)

			// The three newest turns, oldest first.
			require.Len(t, turns, 3)
			assert.Equal(t, "msg 2", turns[0].UserMsg)
			assert.Equal(t, "msg 3", turns[1].UserMsg)
			assert.Equal(t, "msg 4", turns[2].UserMsg)
		})
	}
}

func TestCountTurnsSince(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, store.AppendTurn(ctx, newTurn(1, "old", now.AddDate(0, 0, -40))))
			require.NoError(t, store.AppendTurn(ctx, newTurn(1, "recent", now.Add(-time.Hour))))
			require.NoError(t, store.AppendTurn(ctx, newTurn(2, "other user", now)))

			count, err := store.CountTurnsSince(ctx, 1, now.AddDate(0, 0, -30))
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestMoodHistoryNewestFirst(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			for i, score := range []int{3, 7, 5} {
				require.NoError(t, store.AddMoodEntry(ctx, &models.MoodEntry{
					ID:        uuid.New().String(),
					UserID:    1,
					Score:     score,
					Notes:     fmt.Sprintf("note %d", i),
					CreatedAt: now.Add(time.Duration(i-3) * time.Hour),
				}))
			}

			history, err := store.MoodHistory(ctx, 1, now.AddDate(0, 0, -30))
			require.NoError(t, err)

			require.Len(t, history, 3)
			assert.Equal(t, 5, history[0].Score)
			assert.Equal(t, 7, history[1].Score)
			assert.Equal(t, 3, history[2].Score)
		})
	}
}

func TestLatestInsight(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.LatestInsight(ctx, 1, "weekly")
			assert.ErrorIs(t, err, storage.ErrNotFound)

			now := time.Now()
			older := &models.Insight{
				ID: uuid.New().String(), UserID: 1, Type: "weekly", Content: "older",
				Basis:     models.InsightBasis{Maturity: models.MaturityEarly, DaysCount: 1},
				CreatedAt: now.Add(-48 * time.Hour),
			}
			newer := &models.Insight{
				ID: uuid.New().String(), UserID: 1, Type: "weekly", Content: "newer",
				Basis:     models.InsightBasis{Maturity: models.MaturityDeveloping, DaysCount: 3, ConvCount: 4, AvgMood: 6.5},
				CreatedAt: now,
			}
			require.NoError(t, store.SaveInsight(ctx, older))
			require.NoError(t, store.SaveInsight(ctx, newer))

			got, err := store.LatestInsight(ctx, 1, "weekly")
			require.NoError(t, err)
			assert.Equal(t, "newer", got.Content)
			assert.Equal(t, models.MaturityDeveloping, got.Basis.Maturity)
			assert.InDelta(t, 6.5, got.Basis.AvgMood, 0.001)
		})
	}
}

func savePending(t *testing.T, store storage.Storage, userID int64, title string) *models.Proposal {
	t.Helper()
	p := &models.Proposal{
		ID:         uuid.New().String(),
		UserID:     userID,
		Title:      title,
		Status:     models.ProposalPending,
		ProposedAt: time.Now(),
	}
	require.NoError(t, store.SaveProposal(context.Background(), p))
	return p
}

func TestAcceptProposalTransition(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := savePending(t, store, 1, "Meditate daily")

			item, err := store.AcceptProposal(ctx, p.ID, nil, time.Now())
			require.NoError(t, err)
			assert.Equal(t, models.SourceAIExtracted, item.Source)
			assert.Equal(t, models.ActionPending, item.Status)
			assert.Equal(t, "Meditate daily", item.Title)

			resolved, err := store.Proposal(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ProposalAccepted, resolved.Status)
			require.NotNil(t, resolved.ReviewedAt)

			// The transition is write-once.
			_, err = store.AcceptProposal(ctx, p.ID, nil, time.Now())
			var stale *models.StaleStateError
			require.ErrorAs(t, err, &stale)
			assert.Equal(t, models.ProposalAccepted, stale.Status)

			err = store.RejectProposal(ctx, p.ID, time.Now())
			require.ErrorAs(t, err, &stale)

			items, err := store.ActionItems(ctx, 1, "", 0)
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}
}

func TestRejectProposalTransition(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := savePending(t, store, 1, "Evening yoga")

			require.NoError(t, store.RejectProposal(ctx, p.ID, time.Now()))

			resolved, err := store.Proposal(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, models.ProposalRejected, resolved.Status)

			items, err := store.ActionItems(ctx, 1, "", 0)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestProposalTransitionOnMissingID(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.AcceptProposal(ctx, "no-such-id", nil, time.Now())
			assert.ErrorIs(t, err, storage.ErrNotFound)

			err = store.RejectProposal(ctx, "no-such-id", time.Now())
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestConcurrentAcceptOnSameProposal(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := savePending(t, store, 1, "Drink more water")

			const attempts = 8
			var wg sync.WaitGroup
			errs := make([]error, attempts)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = store.AcceptProposal(ctx, p.ID, nil, time.Now())
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
				}
			}
			assert.Equal(t, 1, succeeded)

			items, err := store.ActionItems(ctx, 1, "", 0)
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}
}

func TestDeleteProposalIgnoresState(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := savePending(t, store, 1, "To be deleted")
			_, err := store.AcceptProposal(ctx, p.ID, nil, time.Now())
			require.NoError(t, err)

			require.NoError(t, store.DeleteProposal(ctx, p.ID))
			_, err = store.Proposal(ctx, p.ID)
			assert.ErrorIs(t, err, storage.ErrNotFound)

			// The materialized action item survives the delete.
			items, err := store.ActionItems(ctx, 1, "", 0)
			require.NoError(t, err)
			assert.Len(t, items, 1)
		})
	}
}

func TestActionItemLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			item := &models.ActionItem{
				ID:        uuid.New().String(),
				UserID:    1,
				Title:     "Plan the week",
				Status:    models.ActionPending,
				Source:    models.SourceManual,
				CreatedAt: time.Now(),
			}
			require.NoError(t, store.AddActionItem(ctx, item))

			require.NoError(t, store.UpdateActionStatus(ctx, item.ID, models.ActionInProgress, time.Now()))
			inProgress, err := store.ActionItems(ctx, 1, models.ActionInProgress, 0)
			require.NoError(t, err)
			require.Len(t, inProgress, 1)
			assert.Nil(t, inProgress[0].CompletedAt)

			require.NoError(t, store.UpdateActionStatus(ctx, item.ID, models.ActionCompleted, time.Now()))
			completed, err := store.ActionItems(ctx, 1, models.ActionCompleted, 0)
			require.NoError(t, err)
			require.Len(t, completed, 1)
			assert.NotNil(t, completed[0].CompletedAt)

			err = store.UpdateActionStatus(ctx, "no-such-id", models.ActionCompleted, time.Now())
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}
