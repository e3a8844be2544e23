// Package sandbox defines the interfaces to the isolated execution
// environment the engine runs actions against, plus local implementations
// backed by the host filesystem and os/exec.
//
// The engine never assumes exclusive ownership of these resources; it only
// guarantees that a single action touches them at a time.
package sandbox

import (
	"context"
	"io"
)

// CommandResult is the outcome of a command executed through a Shell.
type CommandResult struct {
	// ExitCode is the process exit code. Zero means success.
	ExitCode int `json:"exit_code"`

	// Output is the combined captured stdout/stderr text.
	Output string `json:"output"`
}

// Shell is an interactive shell session shared across actions.
//
// Implementations must be safe for use from a single goroutine at a time;
// the engine serializes all access.
type Shell interface {
	// Ready blocks until the shell session is able to accept commands.
	Ready(ctx context.Context) error

	// Execute submits command text to the session and waits for it to exit.
	// requestAbort is invoked by the session if it wants the owning action
	// cancelled (for example, an interactive interrupt); it may be nil.
	Execute(ctx context.Context, sessionID, command string, requestAbort func()) (CommandResult, error)
}

// Process is a spawned sandbox process whose output is streamed.
type Process interface {
	// Output returns the stream of combined stdout/stderr.
	Output() io.Reader

	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)
}

// Sandbox is the virtual file system and process-spawning surface of the
// execution environment. All paths are relative to the sandbox root.
type Sandbox interface {
	// Root returns the absolute path of the sandbox root directory.
	Root() string

	// WriteFile writes content verbatim to path, replacing any existing file.
	WriteFile(ctx context.Context, path, content string) error

	// ReadFile returns the current content of path.
	ReadFile(ctx context.Context, path string) (string, error)

	// MkdirAll creates path and any missing parents. Creating the root is a
	// no-op.
	MkdirAll(ctx context.Context, path string) error

	// Spawn starts a process inside the sandbox.
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
}
