package engine

import (
	"time"
)

// ActionKind identifies an action variant.
type ActionKind string

const (
	// KindShell executes command text in the shared shell session.
	KindShell ActionKind = "shell"

	// KindFile writes content to a sandbox-relative path.
	KindFile ActionKind = "file"

	// KindBuild runs the sandbox build command and retains its artifact.
	KindBuild ActionKind = "build"

	// KindStart launches a long-running process, detached.
	KindStart ActionKind = "start"

	// KindData performs a data operation (migration or query).
	KindData ActionKind = "data"
)

// Action is one declared unit of work submitted by the producer. The payload
// is immutable once created; streaming file actions may replace their
// payload wholesale until execution begins.
type Action interface {
	Kind() ActionKind
}

// ChangeSource records what triggered a file write.
type ChangeSource string

const (
	SourceUser     ChangeSource = "user"
	SourceAutoSave ChangeSource = "auto-save"
	SourceExternal ChangeSource = "external"
)

// ShellAction executes command text in the shared interactive shell.
type ShellAction struct {
	Content string `json:"content"`
}

// Kind implements Action.
func (ShellAction) Kind() ActionKind { return KindShell }

// FileAction writes content to a path relative to the sandbox root.
type FileAction struct {
	FilePath string       `json:"file_path"`
	Content  string       `json:"content"`
	Source   ChangeSource `json:"change_source"`
}

// Kind implements Action.
func (FileAction) Kind() ActionKind { return KindFile }

// BuildAction runs the configured build command.
type BuildAction struct{}

// Kind implements Action.
func (BuildAction) Kind() ActionKind { return KindBuild }

// StartAction launches a long-running process such as a dev server. The
// executor dispatches it detached.
type StartAction struct {
	Content string `json:"content"`
}

// Kind implements Action.
func (StartAction) Kind() ActionKind { return KindStart }

// DataOp identifies a data operation variant.
type DataOp string

const (
	// OpMigration persists migration text to a file and announces it.
	OpMigration DataOp = "migration"

	// OpQuery announces query text for external confirmation; the engine
	// never executes it.
	OpQuery DataOp = "query"
)

// DataAction performs a data operation.
type DataAction struct {
	Operation DataOp `json:"operation"`
	FilePath  string `json:"file_path,omitempty"`
	Content   string `json:"content"`
}

// Kind implements Action.
func (DataAction) Kind() ActionKind { return KindData }

// ActionStatus is the lifecycle state of an action record.
type ActionStatus string

const (
	// StatusPending is the initial state of every enqueued action.
	StatusPending ActionStatus = "pending"

	// StatusRunning means the action's handler is executing. It is
	// re-entered without re-execution while a file action is still
	// streaming content.
	StatusRunning ActionStatus = "running"

	// StatusComplete is terminal: the handler finished without error.
	StatusComplete ActionStatus = "complete"

	// StatusAborted is terminal: cancellation was requested before or
	// during execution.
	StatusAborted ActionStatus = "aborted"

	// StatusFailed is terminal: the handler returned an error.
	StatusFailed ActionStatus = "failed"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s ActionStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusAborted || s == StatusFailed
}

// ActionState is the mutable record tracked per action identifier. Records
// persist for the life of the engine instance; observers receive snapshot
// copies.
type ActionState struct {
	// ID is the producer-assigned action identifier.
	ID string `json:"id"`

	// Action is the declared payload, read-only to observers.
	Action Action `json:"action"`

	// Status is the current lifecycle state.
	Status ActionStatus `json:"status"`

	// Executed is true once the action has been dispatched for execution.
	// Streaming payload updates are accepted only while it is false.
	Executed bool `json:"executed"`

	// Streaming is true while the producer is still delivering content.
	Streaming bool `json:"streaming"`

	// Error is the failure message, set only when Status is failed.
	Error string `json:"error,omitempty"`

	// EnqueuedAt is when the record was first created.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// StartedAt is when the handler was dispatched, if it was.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// SettledAt is when the record reached a terminal status.
	SettledAt *time.Time `json:"settled_at,omitempty"`

	// abort cancels the action's execution context and drives the record
	// to aborted. Held internally; invoke through Engine.Abort.
	abort func()
}

// BuildArtifact is the product of a completed build action, retained for the
// life of the session for a deployment collaborator to consume.
type BuildArtifact struct {
	// OutputPath is the conventional build output directory.
	OutputPath string `json:"output_path"`

	// ExitCode is the build process exit code.
	ExitCode int `json:"exit_code"`

	// CapturedOutput is the full buffered build output.
	CapturedOutput string `json:"captured_output"`
}

// QueryOutcome is the externally reported resolution of a pending query.
type QueryOutcome string

const (
	QueryConfirmed QueryOutcome = "confirmed"
	QueryRejected  QueryOutcome = "rejected"
)

// QueryTicket is the pending marker returned for query data operations.
// Query execution requires external confirmation; the collaborator resolves
// the ticket through Engine.ResolveQuery and consumers may wait on Done.
type QueryTicket struct {
	// ActionID identifies the originating action.
	ActionID string `json:"action_id"`

	// Query is the announced query text.
	Query string `json:"query"`

	done chan QueryOutcome
}

// Done returns a channel receiving the outcome exactly once when the query
// is resolved.
func (t *QueryTicket) Done() <-chan QueryOutcome {
	return t.done
}
