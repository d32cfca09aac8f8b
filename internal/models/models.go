package models

import "time"

// Turn represents one persisted user-message/AI-response pair.
// A turn is immutable once written; it is only created after a
// generation call has run to completion.
type Turn struct {
	ID         string    `json:"id"`
	UserID     int64     `json:"user_id"`
	UserMsg    string    `json:"user_message"`
	AIResponse string    `json:"ai_response"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// MoodEntry represents a single mood check-in. Immutable once created.
type MoodEntry struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Score     int       `json:"score"` // 0-10
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Maturity classifies how many calendar days of tracked data a user has.
type Maturity string

const (
	MaturityEarly      Maturity = "early"      // < 3 days
	MaturityDeveloping Maturity = "developing" // 3-6 days
	MaturityMature     Maturity = "mature"     // >= 7 days
)

// MaturityForDays maps a whole-day span to its maturity level.
func MaturityForDays(days int) Maturity {
	switch {
	case days < 3:
		return MaturityEarly
	case days < 7:
		return MaturityDeveloping
	default:
		return MaturityMature
	}
}

// InsightBasis describes the data a generated insight was based on.
type InsightBasis struct {
	Maturity  Maturity `json:"maturity_level"`
	DaysCount int      `json:"days_count"`
	ConvCount int      `json:"conv_count"`
	AvgMood   float64  `json:"avg_mood"`
}

// Insight is one generated, persisted insight. Multiple rows may exist
// per (user, type); only the most recent is authoritative.
type Insight struct {
	ID         string       `json:"id"`
	UserID     int64        `json:"user_id"`
	Type       string       `json:"type"`
	Content    string       `json:"content"`
	Basis      InsightBasis `json:"based_on_data"`
	TokensUsed int          `json:"tokens_used"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ProposalStatus is the review state of an AI-suggested action.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a candidate action awaiting human review. It is created
// pending and transitions exactly once to accepted or rejected.
type Proposal struct {
	ID             string         `json:"id"`
	UserID         int64          `json:"user_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         ProposalStatus `json:"status"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ProposedAt     time.Time      `json:"proposed_at"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
}

// ActionStatus is the lifecycle state of an action item.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionAbandoned  ActionStatus = "abandoned"
)

// ActionSource records where an action item came from.
type ActionSource string

const (
	SourceManual      ActionSource = "manual"
	SourceAIExtracted ActionSource = "ai_extracted"
)

// ActionItem is a tracked wellness action. An ai_extracted item is created
// exactly once, as the side effect of accepting a Proposal.
type ActionItem struct {
	ID          string       `json:"id"`
	UserID      int64        `json:"user_id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      ActionStatus `json:"status"`
	Source      ActionSource `json:"source"`
	Deadline    *time.Time   `json:"deadline,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Message is one role-tagged entry in a generation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage holds the token counters reported by the generation service.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count of a generation call.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }
