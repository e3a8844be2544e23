package engine

import (
	"context"
	"testing"
	"time"
)

func TestRunFile_SkipsLockedPath(t *testing.T) {
	env := newTestEnv(t, Config{})

	env.guard.locked["package.json"] = true

	ctx := context.Background()
	env.engine.Enqueue("a", FileAction{FilePath: "package.json", Content: "{}", Source: SourceUser}, false)
	if err := env.engine.Run(ctx, "a"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	env.engine.Close()

	if env.sandbox.writeCount() != 0 {
		t.Error("Locked path must not be written")
	}

	state, _ := env.engine.GetActionState("a")
	if state.Status != StatusComplete {
		t.Errorf("Expected complete, got %s", state.Status)
	}

	alerts := env.alerts.collected()
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 notice, got %d alerts", len(alerts))
	}
	if alerts[0].Severity != SeverityInfo {
		t.Errorf("Expected info severity, got %s", alerts[0].Severity)
	}
}

func TestRunFile_SkipsUnchangedContent(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.engine.Close()

	env.guard.existing["src/app.js"] = "same content"

	ctx := context.Background()
	env.engine.Enqueue("a", FileAction{FilePath: "src/app.js", Content: "same content", Source: SourceAutoSave}, false)
	if err := env.engine.Run(ctx, "a"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if env.sandbox.writeCount() != 0 {
		t.Error("Unchanged content must not be rewritten")
	}

	state, _ := env.engine.GetActionState("a")
	if state.Status != StatusComplete {
		t.Errorf("Expected complete, got %s", state.Status)
	}
}

func TestRunFile_CreatesParentDirectories(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.engine.Close()

	ctx := context.Background()
	env.engine.Enqueue("a", FileAction{FilePath: "deep/nested/file.txt", Content: "x", Source: SourceUser}, false)
	if err := env.engine.Run(ctx, "a"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(env.sandbox.mkdirs) != 1 || env.sandbox.mkdirs[0] != "deep/nested" {
		t.Errorf("Expected mkdir of deep/nested, got %v", env.sandbox.mkdirs)
	}
}

func TestRunFile_NormalizesPath(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.engine.Close()

	ctx := context.Background()
	env.engine.Enqueue("a", FileAction{FilePath: "/src/../app.js", Content: "x", Source: SourceUser}, false)
	if err := env.engine.Run(ctx, "a"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, ok := env.sandbox.files["app.js"]; !ok {
		t.Errorf("Expected write to normalized path, files: %v", env.sandbox.files)
	}
}

func TestRunData_MigrationWritesFileAndNotifies(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx := context.Background()
	env.engine.Enqueue("m", DataAction{
		Operation: OpMigration,
		FilePath:  "migrations/001_users.sql",
		Content:   "CREATE TABLE users (id INTEGER PRIMARY KEY);",
	}, false)
	if err := env.engine.Run(ctx, "m"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	env.engine.Close()

	if got := env.sandbox.files["migrations/001_users.sql"]; got == "" {
		t.Error("Expected migration file to be written")
	}

	alerts := env.alerts.collected()
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 notice, got %d", len(alerts))
	}
	if alerts[0].Kind != NoticeKind {
		t.Errorf("Expected notice, got %s", alerts[0].Kind)
	}
}

func TestRunData_MigrationRequiresPath(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.engine.Close()

	ctx := context.Background()
	env.engine.Enqueue("m", DataAction{Operation: OpMigration, Content: "SELECT 1"}, false)
	if err := env.engine.Run(ctx, "m"); err == nil {
		t.Fatal("Expected error for migration without path")
	}
}

func TestRunData_QueryIsNeverExecuted(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx := context.Background()
	env.engine.Enqueue("q", DataAction{Operation: OpQuery, Content: "DELETE FROM users"}, false)
	if err := env.engine.Run(ctx, "q"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if env.sandbox.writeCount() != 0 {
		t.Error("Query must not touch the sandbox")
	}
	if got := len(env.shell.executedCommands()); got != 0 {
		t.Error("Query must not reach the shell")
	}

	state, _ := env.engine.GetActionState("q")
	if state.Status != StatusComplete {
		t.Errorf("Expected complete, got %s", state.Status)
	}

	ticket, ok := env.engine.QueryTicket("q")
	if !ok {
		t.Fatal("Expected a pending query ticket")
	}
	if ticket.Query != "DELETE FROM users" {
		t.Errorf("Unexpected ticket query: %q", ticket.Query)
	}

	env.engine.Close()

	alerts := env.alerts.collected()
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 notice, got %d", len(alerts))
	}
	if alerts[0].Description != "Query pending confirmation" {
		t.Errorf("Unexpected notice: %q", alerts[0].Description)
	}
}

func TestResolveQuery(t *testing.T) {
	env := newTestEnv(t, Config{})

	ctx := context.Background()
	env.engine.Enqueue("q", DataAction{Operation: OpQuery, Content: "SELECT * FROM users"}, false)
	if err := env.engine.Run(ctx, "q"); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	ticket, _ := env.engine.QueryTicket("q")
	if err := env.engine.ResolveQuery("q", QueryConfirmed); err != nil {
		t.Fatalf("ResolveQuery returned error: %v", err)
	}

	select {
	case outcome := <-ticket.Done():
		if outcome != QueryConfirmed {
			t.Errorf("Expected confirmed, got %s", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("Ticket was not resolved")
	}

	// A resolved ticket is gone.
	if err := env.engine.ResolveQuery("q", QueryRejected); err == nil {
		t.Error("Expected error resolving an already-resolved query")
	}

	env.engine.Close()
}

func TestRunData_UnknownOperation(t *testing.T) {
	env := newTestEnv(t, Config{})
	defer env.engine.Close()

	ctx := context.Background()
	env.engine.Enqueue("d", DataAction{Operation: "truncate"}, false)
	if err := env.engine.Run(ctx, "d"); err == nil {
		t.Fatal("Expected error for unknown data operation")
	}
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"src/app.js", "src/app.js"},
		{"/src/app.js", "src/app.js"},
		{"./src/app.js", "src/app.js"},
		{"src/../app.js", "app.js"},
		{"..\\..\\etc\\passwd", "etc/passwd"},
	}

	for _, tt := range tests {
		if got := relPath(tt.in); got != tt.want {
			t.Errorf("relPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
