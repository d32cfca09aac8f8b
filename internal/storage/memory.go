package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/models"
)

// MemoryStorage is an in-memory Storage implementation used for tests and
// for running the bot without a database.
type MemoryStorage struct {
	mu        sync.RWMutex
	turns     map[int64][]models.Turn
	moods     map[int64][]models.MoodEntry
	insights  map[int64][]models.Insight
	proposals map[string]*models.Proposal
	actions   map[string]*models.ActionItem
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		turns:     make(map[int64][]models.Turn),
		moods:     make(map[int64][]models.MoodEntry),
		insights:  make(map[int64][]models.Insight),
		proposals: make(map[string]*models.Proposal),
		actions:   make(map[string]*models.ActionItem),
	}
}

func (s *MemoryStorage) AppendTurn(ctx context.Context, turn *models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[turn.UserID] = append(s.turns[turn.UserID], *turn)
	return nil
}

func (s *MemoryStorage) RecentTurns(ctx context.Context, userID int64, limit int) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.Turn, len(all))
	copy(out, all)
	return out, nil
}

func (s *MemoryStorage) CountTurnsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, t := range s.turns[userID] {
		if !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStorage) AddMoodEntry(ctx context.Context, entry *models.MoodEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.moods[entry.UserID] = append(s.moods[entry.UserID], *entry)
	return nil
}

func (s *MemoryStorage) MoodHistory(ctx context.Context, userID int64, since time.Time) ([]models.MoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MoodEntry
	for _, e := range s.moods[userID] {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStorage) SaveInsight(ctx context.Context, insight *models.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insights[insight.UserID] = append(s.insights[insight.UserID], *insight)
	return nil
}

func (s *MemoryStorage) LatestInsight(ctx context.Context, userID int64, insightType string) (*models.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Insight
	for i := range s.insights[userID] {
		in := s.insights[userID][i]
		if in.Type != insightType {
			continue
		}
		if latest == nil || in.CreatedAt.After(latest.CreatedAt) {
			cp := in
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStorage) SaveProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.proposals[p.ID] = &cp
	return nil
}

func (s *MemoryStorage) Proposal(ctx context.Context, id string) (*models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStorage) ProposalsByStatus(ctx context.Context, userID int64, status models.ProposalStatus) ([]models.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Proposal
	for _, p := range s.proposals {
		if p.UserID == userID && p.Status == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.After(out[j].ProposedAt) })
	return out, nil
}

// AcceptProposal performs the compare-and-set transition under the write
// lock, so racing accept/reject calls see either pending or terminal state,
// never an intermediate one.
func (s *MemoryStorage) AcceptProposal(ctx context.Context, id string, deadline *time.Time, now time.Time) (*models.ActionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != models.ProposalPending {
		return nil, &models.StaleStateError{ProposalID: id, Status: p.Status}
	}

	item := &models.ActionItem{
		ID:          uuid.New().String(),
		UserID:      p.UserID,
		Title:       p.Title,
		Description: p.Description,
		Status:      models.ActionPending,
		Source:      models.SourceAIExtracted,
		Deadline:    deadline,
		CreatedAt:   now,
	}
	s.actions[item.ID] = item

	reviewed := now
	p.Status = models.ProposalAccepted
	p.ReviewedAt = &reviewed

	cp := *item
	return &cp, nil
}

func (s *MemoryStorage) RejectProposal(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != models.ProposalPending {
		return &models.StaleStateError{ProposalID: id, Status: p.Status}
	}

	reviewed := now
	p.Status = models.ProposalRejected
	p.ReviewedAt = &reviewed
	return nil
}

func (s *MemoryStorage) DeleteProposal(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.proposals, id)
	return nil
}

func (s *MemoryStorage) AddActionItem(ctx context.Context, item *models.ActionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	s.actions[item.ID] = &cp
	return nil
}

func (s *MemoryStorage) ActionItems(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]models.ActionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ActionItem
	for _, a := range s.actions {
		if a.UserID != userID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	if status == models.ActionCompleted {
		completed := now
		a.CompletedAt = &completed
	}
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
