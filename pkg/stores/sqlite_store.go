package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateSession creates a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (id, workspace, status, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	if session.Status == "" {
		session.Status = SessionStatusActive
	}

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.Workspace,
		session.Status,
		session.StartedAt,
		session.CompletedAt,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// CompleteSession marks a session as completed.
func (s *SQLiteStore) CompleteSession(ctx context.Context, id string) error {
	query := `
		UPDATE sessions
		SET status = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, SessionStatusCompleted, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, workspace, status, started_at, completed_at, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	session := &Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.Workspace,
		&session.Status,
		&session.StartedAt,
		&session.CompletedAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// ListSessions lists sessions with pagination, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `
		SELECT id, workspace, status, started_at, completed_at, created_at, updated_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		err := rows.Scan(
			&session.ID,
			&session.Workspace,
			&session.Status,
			&session.StartedAt,
			&session.CompletedAt,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// UpsertAction inserts or updates an action record.
func (s *SQLiteStore) UpsertAction(ctx context.Context, record *ActionRecord) error {
	query := `
		INSERT INTO actions (
			id, session_id, kind, status, executed, error, payload,
			enqueued_at, started_at, settled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			status = excluded.status,
			executed = excluded.executed,
			error = excluded.error,
			payload = excluded.payload,
			started_at = excluded.started_at,
			settled_at = excluded.settled_at,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.Kind,
		record.Status,
		record.Executed,
		record.Error,
		record.Payload,
		record.EnqueuedAt,
		record.StartedAt,
		record.SettledAt,
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert action: %w", err)
	}

	return nil
}

// GetAction retrieves an action record by session and ID.
func (s *SQLiteStore) GetAction(ctx context.Context, sessionID, id string) (*ActionRecord, error) {
	query := `
		SELECT id, session_id, kind, status, executed, error, payload,
		       enqueued_at, started_at, settled_at, created_at, updated_at
		FROM actions
		WHERE session_id = ? AND id = ?
	`

	record := &ActionRecord{}
	err := s.db.QueryRowContext(ctx, query, sessionID, id).Scan(
		&record.ID,
		&record.SessionID,
		&record.Kind,
		&record.Status,
		&record.Executed,
		&record.Error,
		&record.Payload,
		&record.EnqueuedAt,
		&record.StartedAt,
		&record.SettledAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("action not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action: %w", err)
	}

	return record, nil
}

// ListActionsBySession lists all action records for a session in arrival
// order.
func (s *SQLiteStore) ListActionsBySession(ctx context.Context, sessionID string) ([]*ActionRecord, error) {
	query := `
		SELECT id, session_id, kind, status, executed, error, payload,
		       enqueued_at, started_at, settled_at, created_at, updated_at
		FROM actions
		WHERE session_id = ?
		ORDER BY enqueued_at ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	records := []*ActionRecord{}
	for rows.Next() {
		record := &ActionRecord{}
		err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.Kind,
			&record.Status,
			&record.Executed,
			&record.Error,
			&record.Payload,
			&record.EnqueuedAt,
			&record.StartedAt,
			&record.SettledAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return records, nil
}

// AppendAlert appends a new alert to the journal.
func (s *SQLiteStore) AppendAlert(ctx context.Context, record *AlertRecord) error {
	query := `
		INSERT INTO alerts (session_id, action_id, severity, kind, title, description, content, solution, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		record.SessionID,
		record.ActionID,
		record.Severity,
		record.Kind,
		record.Title,
		record.Description,
		record.Content,
		record.Solution,
		record.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get alert ID: %w", err)
	}

	record.ID = id
	return nil
}

// ListAlertsBySession lists all alerts for a session in emission order.
func (s *SQLiteStore) ListAlertsBySession(ctx context.Context, sessionID string) ([]*AlertRecord, error) {
	query := `
		SELECT id, session_id, action_id, severity, kind, title, description, content, solution, timestamp
		FROM alerts
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	records := []*AlertRecord{}
	for rows.Next() {
		record := &AlertRecord{}
		err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.ActionID,
			&record.Severity,
			&record.Kind,
			&record.Title,
			&record.Description,
			&record.Content,
			&record.Solution,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}

	return records, nil
}
