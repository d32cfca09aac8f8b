package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solenne-labs/serene-bot/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations embed.FS

// SQLiteStorage is a file-backed Storage implementation. Timestamps are
// stored as RFC 3339 text in UTC.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY on concurrent transitions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return storage, nil
}

func (s *SQLiteStorage) initializeSchema() error {
	migrationSQL, err := sqliteMigrations.ReadFile("migrations_sqlite.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// sqliteTimeLayout is fixed-width so string comparison in SQL matches
// chronological order. RFC3339Nano trims trailing fractional zeros and
// breaks that property.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string { return t.UTC().Format(sqliteTimeLayout) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := decodeTime(ns.String)
	return &t
}

func (s *SQLiteStorage) AppendTurn(ctx context.Context, turn *models.Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, user_message, ai_response, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.UserID, turn.UserMsg, turn.AIResponse, turn.TokensUsed, encodeTime(turn.CreatedAt))
	if err != nil {
		return fmt.Errorf("error appending turn: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecentTurns(ctx context.Context, userID int64, limit int) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_message, ai_response, tokens_used, created_at
		FROM turns
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var created string
		if err := rows.Scan(&t.ID, &t.UserID, &t.UserMsg, &t.AIResponse, &t.TokensUsed, &created); err != nil {
			return nil, fmt.Errorf("error scanning turn: %w", err)
		}
		t.CreatedAt = decodeTime(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	// Query order is newest-first for the LIMIT; callers get oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStorage) CountTurnsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM turns WHERE user_id = ? AND created_at >= ?`,
		userID, encodeTime(since)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting turns: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) AddMoodEntry(ctx context.Context, entry *models.MoodEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_entries (id, user_id, score, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Score, entry.Notes, encodeTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("error adding mood entry: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) MoodHistory(ctx context.Context, userID int64, since time.Time) ([]models.MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, score, notes, created_at
		FROM mood_entries
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC`, userID, encodeTime(since))
	if err != nil {
		return nil, fmt.Errorf("error querying mood history: %w", err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		var created string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Score, &e.Notes, &created); err != nil {
			return nil, fmt.Errorf("error scanning mood entry: %w", err)
		}
		e.CreatedAt = decodeTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) SaveInsight(ctx context.Context, insight *models.Insight) error {
	basis, err := json.Marshal(insight.Basis)
	if err != nil {
		return fmt.Errorf("error encoding insight basis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights (id, user_id, insight_type, content, based_on_data, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		insight.ID, insight.UserID, insight.Type, insight.Content, string(basis),
		insight.TokensUsed, encodeTime(insight.CreatedAt))
	if err != nil {
		return fmt.Errorf("error saving insight: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) LatestInsight(ctx context.Context, userID int64, insightType string) (*models.Insight, error) {
	var in models.Insight
	var basis, created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, insight_type, content, based_on_data, tokens_used, created_at
		FROM insights
		WHERE user_id = ? AND insight_type = ?
		ORDER BY created_at DESC
		LIMIT 1`, userID, insightType).
		Scan(&in.ID, &in.UserID, &in.Type, &in.Content, &basis, &in.TokensUsed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest insight: %w", err)
	}
	if err := json.Unmarshal([]byte(basis), &in.Basis); err != nil {
		return nil, fmt.Errorf("error decoding insight basis: %w", err)
	}
	in.CreatedAt = decodeTime(created)
	return &in, nil
}

func (s *SQLiteStorage) SaveProposal(ctx context.Context, p *models.Proposal) error {
	var convID sql.NullString
	if p.ConversationID != "" {
		convID = sql.NullString{String: p.ConversationID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, user_id, title, description, status, conversation_id, proposed_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, string(p.Status), convID,
		encodeTime(p.ProposedAt), encodeNullTime(p.ReviewedAt))
	if err != nil {
		return fmt.Errorf("error saving proposal: %w", err)
	}
	return nil
}

func scanProposal(row interface{ Scan(...any) error }) (*models.Proposal, error) {
	var p models.Proposal
	var status, proposed string
	var convID, reviewed sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &status, &convID, &proposed, &reviewed)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatus(status)
	p.ConversationID = convID.String
	p.ProposedAt = decodeTime(proposed)
	p.ReviewedAt = decodeNullTime(reviewed)
	return &p, nil
}

const proposalColumns = `id, user_id, title, description, status, conversation_id, proposed_at, reviewed_at`

func (s *SQLiteStorage) Proposal(ctx context.Context, id string) (*models.Proposal, error) {
	p, err := scanProposal(s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying proposal: %w", err)
	}
	return p, nil
}

func (s *SQLiteStorage) ProposalsByStatus(ctx context.Context, userID int64, status models.ProposalStatus) ([]models.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+proposalColumns+`
		FROM proposals
		WHERE user_id = ? AND status = ?
		ORDER BY proposed_at DESC`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("error querying proposals: %w", err)
	}
	defer rows.Close()

	var out []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AcceptProposal runs the transition and the action item insert in one
// transaction. The UPDATE is scoped by the pending status, so a proposal
// resolved by a concurrent request affects zero rows and nothing commits.
func (s *SQLiteStorage) AcceptProposal(ctx context.Context, id string, deadline *time.Time, now time.Time) (*models.ActionItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE proposals SET status = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.ProposalAccepted), encodeTime(now), id, string(models.ProposalPending))
	if err != nil {
		return nil, fmt.Errorf("error updating proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		// Read through the transaction: the pool has a single connection.
		return nil, staleOrMissing(ctx, tx, id)
	}

	var userID int64
	var title, description string
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, title, description FROM proposals WHERE id = ?`, id).
		Scan(&userID, &title, &description)
	if err != nil {
		return nil, fmt.Errorf("error reading accepted proposal: %w", err)
	}

	item := &models.ActionItem{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      models.ActionPending,
		Source:      models.SourceAIExtracted,
		Deadline:    deadline,
		CreatedAt:   now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO action_items (id, user_id, title, description, status, source, deadline, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		item.ID, item.UserID, item.Title, item.Description, string(item.Status),
		string(item.Source), encodeNullTime(item.Deadline), encodeTime(item.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("error creating action item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing accept: %w", err)
	}
	return item, nil
}

func (s *SQLiteStorage) RejectProposal(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE proposals SET status = ?, reviewed_at = ?
		WHERE id = ? AND status = ?`,
		string(models.ProposalRejected), encodeTime(now), id, string(models.ProposalPending))
	if err != nil {
		return fmt.Errorf("error updating proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return staleOrMissing(ctx, s.db, id)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// staleOrMissing distinguishes a resolved proposal from an absent one after
// a conditional update matched zero rows.
func staleOrMissing(ctx context.Context, q rowQuerier, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM proposals WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading proposal status: %w", err)
	}
	return &models.StaleStateError{ProposalID: id, Status: models.ProposalStatus(status)}
}

func (s *SQLiteStorage) DeleteProposal(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("error deleting proposal: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AddActionItem(ctx context.Context, item *models.ActionItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_items (id, user_id, title, description, status, source, deadline, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.Title, item.Description, string(item.Status),
		string(item.Source), encodeNullTime(item.Deadline), encodeTime(item.CreatedAt),
		encodeNullTime(item.CompletedAt))
	if err != nil {
		return fmt.Errorf("error adding action item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ActionItems(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]models.ActionItem, error) {
	query := `
		SELECT id, user_id, title, description, status, source, deadline, created_at, completed_at
		FROM action_items
		WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying action items: %w", err)
	}
	defer rows.Close()

	var out []models.ActionItem
	for rows.Next() {
		var a models.ActionItem
		var st, src, created string
		var deadline, completed sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Description, &st, &src, &deadline, &created, &completed); err != nil {
			return nil, fmt.Errorf("error scanning action item: %w", err)
		}
		a.Status = models.ActionStatus(st)
		a.Source = models.ActionSource(src)
		a.Deadline = decodeNullTime(deadline)
		a.CreatedAt = decodeTime(created)
		a.CompletedAt = decodeNullTime(completed)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus, now time.Time) error {
	var completed sql.NullString
	if status == models.ActionCompleted {
		completed = sql.NullString{String: encodeTime(now), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_items SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), completed, id)
	if err != nil {
		return fmt.Errorf("error updating action item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
