package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestSession(t *testing.T, store *SQLiteStore, id string) *Session {
	t.Helper()

	session := &Session{
		ID:        id,
		Workspace: "/workspace",
		StartedAt: time.Now(),
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	return session
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestNewSQLiteStore_ConnectionDefaults(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}

	if store.cfg.MaxOpenConns != 25 {
		t.Errorf("Expected default MaxOpenConns 25, got %d", store.cfg.MaxOpenConns)
	}
	if store.cfg.MaxIdleConns != 5 {
		t.Errorf("Expected default MaxIdleConns 5, got %d", store.cfg.MaxIdleConns)
	}
	if store.cfg.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("Expected default ConnMaxLifetime 5m, got %s", store.cfg.ConnMaxLifetime)
	}
}

func TestSQLiteStore_InitHonorsConnectionLimits(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 3,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}

	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if got := store.db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("Expected pool limit 3, got %d", got)
	}
}

func TestSQLiteStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck returned error: %v", err)
	}
}

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createTestSession(t, store, "s1")

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if got.Status != SessionStatusActive {
		t.Errorf("Expected active status, got %s", got.Status)
	}
	if got.Workspace != "/workspace" {
		t.Errorf("Expected workspace /workspace, got %s", got.Workspace)
	}

	if err := store.CompleteSession(ctx, "s1"); err != nil {
		t.Fatalf("CompleteSession returned error: %v", err)
	}

	got, err = store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if got.Status != SessionStatusCompleted {
		t.Errorf("Expected completed status, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestSQLiteStore_CompleteUnknownSession(t *testing.T) {
	store := newTestStore(t)

	if err := store.CompleteSession(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown session")
	}
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		session := &Session{
			ID:        id,
			Workspace: "/workspace",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession returned error: %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListSessions returned error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" {
		t.Errorf("Expected most recent first, got %s", sessions[0].ID)
	}
}

func TestSQLiteStore_UpsertAction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, store, "s1")

	record := &ActionRecord{
		ID:         "a1",
		SessionID:  "s1",
		Kind:       "shell",
		Status:     "pending",
		Payload:    `{"content":"npm install"}`,
		EnqueuedAt: time.Now(),
	}
	if err := store.UpsertAction(ctx, record); err != nil {
		t.Fatalf("UpsertAction returned error: %v", err)
	}

	// Same key again with a new status updates in place.
	started := time.Now()
	record.Status = "running"
	record.Executed = true
	record.StartedAt = &started
	if err := store.UpsertAction(ctx, record); err != nil {
		t.Fatalf("Second UpsertAction returned error: %v", err)
	}

	got, err := store.GetAction(ctx, "s1", "a1")
	if err != nil {
		t.Fatalf("GetAction returned error: %v", err)
	}
	if got.Status != "running" {
		t.Errorf("Expected running, got %s", got.Status)
	}
	if !got.Executed {
		t.Error("Expected executed to be true")
	}
	if got.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}

	records, err := store.ListActionsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListActionsBySession returned error: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record after upsert, got %d", len(records))
	}
}

func TestSQLiteStore_GetUnknownAction(t *testing.T) {
	store := newTestStore(t)
	createTestSession(t, store, "s1")

	if _, err := store.GetAction(context.Background(), "s1", "missing"); err == nil {
		t.Error("Expected error for unknown action")
	}
}

func TestSQLiteStore_Alerts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	createTestSession(t, store, "s1")

	content := "Error: Cannot find module 'express'"
	solution := "npm install express"
	record := &AlertRecord{
		SessionID:   "s1",
		ActionID:    "a1",
		Severity:    "error",
		Kind:        "MissingDependency",
		Title:       "Shell Error: MissingDependency",
		Description: "The module \"express\" could not be found.",
		Content:     &content,
		Solution:    &solution,
		Timestamp:   time.Now(),
	}

	if err := store.AppendAlert(ctx, record); err != nil {
		t.Fatalf("AppendAlert returned error: %v", err)
	}
	if record.ID == 0 {
		t.Error("Expected alert ID to be assigned")
	}

	alerts, err := store.ListAlertsBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("ListAlertsBySession returned error: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Kind != "MissingDependency" {
		t.Errorf("Expected MissingDependency, got %s", alerts[0].Kind)
	}
	if alerts[0].Solution == nil || *alerts[0].Solution != solution {
		t.Error("Expected solution to round-trip")
	}
}
