package actions

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/models"
	"github.com/solenne-labs/serene-bot/internal/storage"
	"go.uber.org/zap"
)

// Workflow owns the proposal state machine: pending is the only creatable
// state, and a proposal transitions exactly once to accepted or rejected.
// The conditional writes live in the store so duplicate requests racing on
// one proposal resolve deterministically.
type Workflow struct {
	proposals storage.ProposalStore
	logger    *zap.Logger
	now       func() time.Time
}

func NewWorkflow(proposals storage.ProposalStore, logger *zap.Logger) *Workflow {
	return &Workflow{proposals: proposals, logger: logger, now: time.Now}
}

// Propose persists a new pending proposal. An empty title is a
// ValidationError; nothing is written in that case.
func (w *Workflow) Propose(ctx context.Context, userID int64, title, description, conversationID string) (*models.Proposal, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &models.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	p := &models.Proposal{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          title,
		Description:    description,
		Status:         models.ProposalPending,
		ConversationID: conversationID,
		ProposedAt:     w.now(),
	}
	if err := w.proposals.SaveProposal(ctx, p); err != nil {
		return nil, err
	}
	w.logger.Debug("Saved proposal",
		zap.String("proposal_id", p.ID),
		zap.Int64("user_id", userID))
	return p, nil
}

// ProposeExtracted persists every extracted candidate with a non-empty
// title as a pending proposal and returns the created records.
func (w *Workflow) ProposeExtracted(ctx context.Context, userID int64, conversationID string, candidates []Candidate) ([]models.Proposal, error) {
	var out []models.Proposal
	for _, c := range candidates {
		if strings.TrimSpace(c.Title) == "" {
			continue
		}
		p, err := w.Propose(ctx, userID, c.Title, c.Description, conversationID)
		if err != nil {
			return out, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Accept resolves a pending proposal, atomically marking it accepted and
// materializing its action item. Both writes commit together or not at
// all. A proposal that is no longer pending yields *models.StaleStateError
// and no write.
func (w *Workflow) Accept(ctx context.Context, proposalID string, deadline *time.Time) (*models.ActionItem, error) {
	item, err := w.proposals.AcceptProposal(ctx, proposalID, deadline, w.now())
	if err != nil {
		return nil, err
	}
	w.logger.Info("Proposal accepted",
		zap.String("proposal_id", proposalID),
		zap.String("action_item_id", item.ID))
	return item, nil
}

// Reject resolves a pending proposal without creating an action item. A
// proposal that is no longer pending yields *models.StaleStateError.
func (w *Workflow) Reject(ctx context.Context, proposalID string) error {
	if err := w.proposals.RejectProposal(ctx, proposalID, w.now()); err != nil {
		return err
	}
	w.logger.Info("Proposal rejected", zap.String("proposal_id", proposalID))
	return nil
}

// Delete hard-deletes a proposal in any state. It is independent of the
// state machine and never touches action items.
func (w *Workflow) Delete(ctx context.Context, proposalID string) error {
	return w.proposals.DeleteProposal(ctx, proposalID)
}

// Pending lists the user's proposals awaiting review, newest first.
func (w *Workflow) Pending(ctx context.Context, userID int64) ([]models.Proposal, error) {
	return w.proposals.ProposalsByStatus(ctx, userID, models.ProposalPending)
}
