package storage

import (
	"context"
	"errors"
	"time"

	"github.com/solenne-labs/serene-bot/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// ConversationStore persists chat turns. Turns are append-only.
type ConversationStore interface {
	// AppendTurn persists one completed turn.
	AppendTurn(ctx context.Context, turn *models.Turn) error
	// RecentTurns returns up to limit of the user's most recent turns in
	// chronological order, oldest first.
	RecentTurns(ctx context.Context, userID int64, limit int) ([]models.Turn, error)
	// CountTurnsSince returns the number of turns recorded at or after since.
	CountTurnsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// MoodStore persists mood check-ins. Entries are append-only.
type MoodStore interface {
	AddMoodEntry(ctx context.Context, entry *models.MoodEntry) error
	// MoodHistory returns entries recorded at or after since, newest first.
	MoodHistory(ctx context.Context, userID int64, since time.Time) ([]models.MoodEntry, error)
}

// InsightStore persists generated insights. Rows are never updated or
// deleted; only the newest row per (user, type) is authoritative.
type InsightStore interface {
	SaveInsight(ctx context.Context, insight *models.Insight) error
	// LatestInsight returns the most recent insight of the given type, or
	// ErrNotFound when none exists.
	LatestInsight(ctx context.Context, userID int64, insightType string) (*models.Insight, error)
}

// ProposalStore persists AI-suggested actions and executes their review
// transitions. Accept and reject are conditional writes scoped by the
// pending status so that duplicate requests resolve deterministically.
type ProposalStore interface {
	SaveProposal(ctx context.Context, p *models.Proposal) error
	Proposal(ctx context.Context, id string) (*models.Proposal, error)
	ProposalsByStatus(ctx context.Context, userID int64, status models.ProposalStatus) ([]models.Proposal, error)
	// AcceptProposal atomically marks a pending proposal accepted and
	// materializes its action item. Returns *models.StaleStateError when the
	// proposal is no longer pending; in that case nothing is written.
	AcceptProposal(ctx context.Context, id string, deadline *time.Time, now time.Time) (*models.ActionItem, error)
	// RejectProposal marks a pending proposal rejected. Returns
	// *models.StaleStateError when the proposal is no longer pending.
	RejectProposal(ctx context.Context, id string, now time.Time) error
	// DeleteProposal removes a proposal in any state. It is not a state
	// transition and never touches action items.
	DeleteProposal(ctx context.Context, id string) error
}

// ActionItemStore persists tracked wellness actions.
type ActionItemStore interface {
	AddActionItem(ctx context.Context, item *models.ActionItem) error
	// ActionItems returns the user's items, newest first. An empty status
	// matches all statuses; limit <= 0 means no limit.
	ActionItems(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]models.ActionItem, error)
	// UpdateActionStatus moves an item to a new lifecycle state, stamping
	// completed_at when the state is completed.
	UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus, now time.Time) error
}

// Storage aggregates every store the application needs.
type Storage interface {
	ConversationStore
	MoodStore
	InsightStore
	ProposalStore
	ActionItemStore
	Close() error
}
