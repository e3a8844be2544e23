package stores

import (
	"context"
	"time"
)

// SessionStatus represents the status of an execution session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)

// Session represents one engine execution session.
type Session struct {
	ID          string        `json:"id"`
	Workspace   string        `json:"workspace"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ActionRecord is the persisted form of an action's tracked state.
type ActionRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	Executed   bool       `json:"executed"`
	Error      *string    `json:"error,omitempty"`
	Payload    string     `json:"payload"` // JSON blob
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AlertRecord is the persisted form of an emitted alert.
type AlertRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	ActionID    string    `json:"action_id"`
	Severity    string    `json:"severity"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     *string   `json:"content,omitempty"`
	Solution    *string   `json:"solution,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store defines the persistence operations for action history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
	HealthCheck(ctx context.Context) error

	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	CompleteSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)

	// Action operations
	UpsertAction(ctx context.Context, record *ActionRecord) error
	GetAction(ctx context.Context, sessionID, id string) (*ActionRecord, error)
	ListActionsBySession(ctx context.Context, sessionID string) ([]*ActionRecord, error)

	// Alert operations
	AppendAlert(ctx context.Context, record *AlertRecord) error
	ListAlertsBySession(ctx context.Context, sessionID string) ([]*AlertRecord, error)
}
