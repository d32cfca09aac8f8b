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
	_ "github.com/lib/pq"
	"github.com/solenne-labs/serene-bot/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresStorage is the production Storage implementation.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}
	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := postgresMigrations.ReadFile("migrations_postgres.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}
	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AppendTurn(ctx context.Context, turn *models.Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, user_message, ai_response, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, turn.UserID, turn.UserMsg, turn.AIResponse, turn.TokensUsed, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending turn: %w", err)
	}
	return nil
}

func (s *PostgresStorage) RecentTurns(ctx context.Context, userID int64, limit int) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_message, ai_response, tokens_used, created_at
		FROM turns
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.UserMsg, &t.AIResponse, &t.TokensUsed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStorage) CountTurnsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM turns WHERE user_id = $1 AND created_at >= $2`,
		userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting turns: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) AddMoodEntry(ctx context.Context, entry *models.MoodEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_entries (id, user_id, score, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.Score, entry.Notes, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("error adding mood entry: %w", err)
	}
	return nil
}

func (s *PostgresStorage) MoodHistory(ctx context.Context, userID int64, since time.Time) ([]models.MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, score, notes, created_at
		FROM mood_entries
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("error querying mood history: %w", err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Score, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning mood entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStorage) SaveInsight(ctx context.Context, insight *models.Insight) error {
	basis, err := json.Marshal(insight.Basis)
	if err != nil {
		return fmt.Errorf("error encoding insight basis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights (id, user_id, insight_type, content, based_on_data, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		insight.ID, insight.UserID, insight.Type, insight.Content, basis,
		insight.TokensUsed, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("error saving insight: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LatestInsight(ctx context.Context, userID int64, insightType string) (*models.Insight, error) {
	var in models.Insight
	var basis []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, insight_type, content, based_on_data, tokens_used, created_at
		FROM insights
		WHERE user_id = $1 AND insight_type = $2
		ORDER BY created_at DESC
		LIMIT 1`, userID, insightType).
		Scan(&in.ID, &in.UserID, &in.Type, &in.Content, &basis, &in.TokensUsed, &in.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying latest insight: %w", err)
	}
	if err := json.Unmarshal(basis, &in.Basis); err != nil {
		return nil, fmt.Errorf("error decoding insight basis: %w", err)
	}
	return &in, nil
}

func (s *PostgresStorage) SaveProposal(ctx context.Context, p *models.Proposal) error {
	var convID sql.NullString
	if p.ConversationID != "" {
		convID = sql.NullString{String: p.ConversationID, Valid: true}
	}
	var reviewed sql.NullTime
	if p.ReviewedAt != nil {
		reviewed = sql.NullTime{Time: *p.ReviewedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, user_id, title, description, status, conversation_id, proposed_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.Title, p.Description, string(p.Status), convID, p.ProposedAt, reviewed)
	if err != nil {
		return fmt.Errorf("error saving proposal: %w", err)
	}
	return nil
}

func (s *PostgresStorage) scanProposalRow(row interface{ Scan(...any) error }) (*models.Proposal, error) {
	var p models.Proposal
	var status string
	var convID sql.NullString
	var reviewed sql.NullTime
	err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &status, &convID, &p.ProposedAt, &reviewed)
	if err != nil {
		return nil, err
	}
	p.Status = models.ProposalStatus(status)
	p.ConversationID = convID.String
	if reviewed.Valid {
		t := reviewed.Time
		p.ReviewedAt = &t
	}
	return &p, nil
}

func (s *PostgresStorage) Proposal(ctx context.Context, id string) (*models.Proposal, error) {
	p, err := s.scanProposalRow(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, status, conversation_id, proposed_at, reviewed_at
		FROM proposals WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying proposal: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) ProposalsByStatus(ctx context.Context, userID int64, status models.ProposalStatus) ([]models.Proposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, status, conversation_id, proposed_at, reviewed_at
		FROM proposals
		WHERE user_id = $1 AND status = $2
		ORDER BY proposed_at DESC`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("error querying proposals: %w", err)
	}
	defer rows.Close()

	var out []models.Proposal
	for rows.Next() {
		p, err := s.scanProposalRow(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning proposal: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AcceptProposal guards the transition with a conditional UPDATE inside a
// transaction; a concurrent duplicate matches zero rows and commits nothing.
func (s *PostgresStorage) AcceptProposal(ctx context.Context, id string, deadline *time.Time, now time.Time) (*models.ActionItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	var title, description string
	err = tx.QueryRowContext(ctx, `
		UPDATE proposals SET status = $1, reviewed_at = $2
		WHERE id = $3 AND status = $4
		RETURNING user_id, title, description`,
		string(models.ProposalAccepted), now, id, string(models.ProposalPending)).
		Scan(&userID, &title, &description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.staleOrMissing(ctx, tx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error updating proposal: %w", err)
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
	var dl sql.NullTime
	if deadline != nil {
		dl = sql.NullTime{Time: *deadline, Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO action_items (id, user_id, title, description, status, source, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.UserID, item.Title, item.Description, string(item.Status),
		string(item.Source), dl, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error creating action item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing accept: %w", err)
	}
	return item, nil
}

func (s *PostgresStorage) RejectProposal(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE proposals SET status = $1, reviewed_at = $2
		WHERE id = $3 AND status = $4`,
		string(models.ProposalRejected), now, id, string(models.ProposalPending))
	if err != nil {
		return fmt.Errorf("error updating proposal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return s.staleOrMissing(ctx, s.db, id)
	}
	return nil
}

func (s *PostgresStorage) staleOrMissing(ctx context.Context, q rowQuerier, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM proposals WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error reading proposal status: %w", err)
	}
	return &models.StaleStateError{ProposalID: id, Status: models.ProposalStatus(status)}
}

func (s *PostgresStorage) DeleteProposal(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting proposal: %w", err)
	}
	return nil
}

func (s *PostgresStorage) AddActionItem(ctx context.Context, item *models.ActionItem) error {
	var dl, completed sql.NullTime
	if item.Deadline != nil {
		dl = sql.NullTime{Time: *item.Deadline, Valid: true}
	}
	if item.CompletedAt != nil {
		completed = sql.NullTime{Time: *item.CompletedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO action_items (id, user_id, title, description, status, source, deadline, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.UserID, item.Title, item.Description, string(item.Status),
		string(item.Source), dl, item.CreatedAt, completed)
	if err != nil {
		return fmt.Errorf("error adding action item: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ActionItems(ctx context.Context, userID int64, status models.ActionStatus, limit int) ([]models.ActionItem, error) {
	query := `
		SELECT id, user_id, title, description, status, source, deadline, created_at, completed_at
		FROM action_items
		WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying action items: %w", err)
	}
	defer rows.Close()

	var out []models.ActionItem
	for rows.Next() {
		var a models.ActionItem
		var st, src string
		var dl, completed sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Description, &st, &src, &dl, &a.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("error scanning action item: %w", err)
		}
		a.Status = models.ActionStatus(st)
		a.Source = models.ActionSource(src)
		if dl.Valid {
			t := dl.Time
			a.Deadline = &t
		}
		if completed.Valid {
			t := completed.Time
			a.CompletedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateActionStatus(ctx context.Context, id string, status models.ActionStatus, now time.Time) error {
	var completed sql.NullTime
	if status == models.ActionCompleted {
		completed = sql.NullTime{Time: now, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE action_items SET status = $1, completed_at = $2 WHERE id = $3`,
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

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
