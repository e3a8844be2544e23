package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine surface.
var (
	// ErrUnknownAction is returned when no record exists for an identifier.
	ErrUnknownAction = errors.New("unknown action")

	// ErrAborted is returned from Run when the action was cancelled before
	// or during execution. Aborted actions are never classified or alerted
	// as failures.
	ErrAborted = errors.New("action aborted")

	// ErrEngineClosed is returned once the engine has been shut down.
	ErrEngineClosed = errors.New("engine closed")
)

// CommandError is a structured failure from the shell, start, and build
// handlers. It carries a short header and the full captured output so the
// classifier can surface both verbatim.
type CommandError struct {
	// Summary is the short human-readable failure header.
	Summary string `json:"summary"`

	// Output is the full captured command output.
	Output string `json:"output"`

	// ExitCode is the failing process exit code.
	ExitCode int `json:"exit_code"`
}

// NewCommandError creates a structured command failure.
func NewCommandError(summary, output string, exitCode int) *CommandError {
	return &CommandError{
		Summary:  summary,
		Output:   output,
		ExitCode: exitCode,
	}
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s (exit code %d)", e.Summary, e.ExitCode)
}

// Header returns the short failure header.
func (e *CommandError) Header() string {
	return e.Summary
}

// CapturedOutput returns the full captured command output.
func (e *CommandError) CapturedOutput() string {
	return e.Output
}
