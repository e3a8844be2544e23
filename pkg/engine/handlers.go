package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// runShell executes command text in the shared interactive shell session.
// A non-zero exit code becomes a structured CommandError carrying the full
// captured output.
func (e *Engine) runShell(ctx context.Context, id string, act ShellAction) error {
	if err := e.shell.Ready(ctx); err != nil {
		return fmt.Errorf("shell session not ready: %w", err)
	}

	result, err := e.shell.Execute(ctx, e.cfg.SessionID, act.Content, func() {
		e.abortRecord(id)
	})
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return NewCommandError("failed to execute shell command", result.Output, result.ExitCode)
	}
	return nil
}

// runFile writes content to a sandbox-relative path, creating missing
// parent directories first. The write-guard is consulted before touching
// the sandbox: locked paths and byte-identical content both skip the write.
func (e *Engine) runFile(ctx context.Context, id string, act FileAction) error {
	rel := relPath(act.FilePath)
	log := e.log.WithActionID(id).WithField("path", rel)

	if e.guard.IsLocked(rel) {
		log.Info("skipping write to locked file")
		e.emitter.emitNotice(id, KindFile,
			fmt.Sprintf("Skipped write to locked file %s", rel), "")
		return nil
	}

	if existing, ok := e.guard.ReadExisting(ctx, rel); ok && existing == act.Content {
		log.Debug("content unchanged, skipping write")
		return nil
	}

	if dir := path.Dir(rel); dir != "." && dir != "/" {
		if err := e.sandbox.MkdirAll(ctx, dir); err != nil {
			return fmt.Errorf("failed to create parent directories: %w", err)
		}
	}

	if err := e.sandbox.WriteFile(ctx, rel, act.Content); err != nil {
		return err
	}

	log.WithField("change_source", string(act.Source)).Debug("file written")
	return nil
}

// runBuild spawns the configured build command, buffering its streamed
// output. On success the artifact is retained for deployment collaborators;
// a non-zero exit becomes a CommandError carrying the buffered output.
func (e *Engine) runBuild(ctx context.Context, id string) error {
	name, args := e.cfg.BuildCommand[0], e.cfg.BuildCommand[1:]

	proc, err := e.sandbox.Spawn(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("failed to start build: %w", err)
	}

	var output strings.Builder
	if _, err := io.Copy(&output, proc.Output()); err != nil && !errors.Is(err, io.EOF) {
		e.log.WithActionID(id).WithError(err).Warn("build output stream truncated")
	}

	exitCode, err := proc.Wait(ctx)
	if err != nil {
		return err
	}

	if exitCode != 0 {
		return NewCommandError("build failed", output.String(), exitCode)
	}

	artifact := &BuildArtifact{
		OutputPath:     filepath.Join(e.sandbox.Root(), e.cfg.BuildOutputDir),
		ExitCode:       exitCode,
		CapturedOutput: output.String(),
	}
	e.artifactMu.Lock()
	e.artifact = artifact
	e.artifactMu.Unlock()

	e.log.WithActionID(id).WithField("output_path", artifact.OutputPath).Info("build artifact ready")
	return nil
}

// dispatchStart launches a start action detached: the shell command keeps
// running after the queue moves on, and its record settles asynchronously
// when the process exits. Abnormal exits are classified and alerted unless
// the action was aborted.
func (e *Engine) dispatchStart(ctx context.Context, span trace.Span, id string, act StartAction, log *telemetry.Logger) {
	started := time.Now()
	e.detached.Add(1)

	go func() {
		defer e.detached.Done()
		defer span.End()
		defer func() {
			if cancel := e.takeCtx(id); cancel != nil {
				cancel()
			}
		}()

		err := func() error {
			if readyErr := e.shell.Ready(ctx); readyErr != nil {
				return fmt.Errorf("shell session not ready: %w", readyErr)
			}
			result, execErr := e.shell.Execute(ctx, e.cfg.SessionID, act.Content, func() {
				e.abortRecord(id)
			})
			if execErr != nil {
				return execErr
			}
			if result.ExitCode != 0 {
				return NewCommandError("failed to start application", result.Output, result.ExitCode)
			}
			return nil
		}()

		duration := time.Since(started)
		state, _ := e.store.Get(id)

		if state.Status == StatusAborted || ctx.Err() != nil {
			e.store.Upsert(id, func(st *ActionState) { st.Status = StatusAborted })
			e.metrics.RecordActionExecuted(string(KindStart), string(StatusAborted), duration)
			return
		}

		if err != nil {
			e.store.Upsert(id, func(st *ActionState) {
				st.Status = StatusFailed
				st.Error = err.Error()
			})
			report := e.classifier.Classify(err)
			e.metrics.RecordActionExecuted(string(KindStart), string(StatusFailed), duration)
			e.metrics.RecordError(report.Kind)
			e.metrics.RecordAlert(string(SeverityError))
			e.emitter.emitFailure(id, KindStart, report)
			log.WithError(err).Error("start action failed")
			telemetry.RecordError(span, err)
			return
		}

		e.store.Upsert(id, func(st *ActionState) { st.Status = StatusComplete })
		e.metrics.RecordActionExecuted(string(KindStart), string(StatusComplete), duration)
		log.Info("start action exited cleanly")
		telemetry.RecordSuccess(span)
	}()
}

// runData performs a migration or query data operation. Migrations are
// persisted through the file handler; queries are never executed by the
// engine and only announced for external confirmation.
func (e *Engine) runData(ctx context.Context, id string, act DataAction) error {
	switch act.Operation {
	case OpMigration:
		if act.FilePath == "" {
			return fmt.Errorf("migration operation requires a file path")
		}
		file := FileAction{
			FilePath: act.FilePath,
			Content:  act.Content,
			Source:   SourceExternal,
		}
		if err := e.runFile(ctx, id, file); err != nil {
			return err
		}
		e.metrics.RecordAlert(string(SeverityInfo))
		e.emitter.emitNotice(id, KindData,
			fmt.Sprintf("Migration file created: %s", relPath(act.FilePath)), act.Content)
		return nil

	case OpQuery:
		ticket := &QueryTicket{
			ActionID: id,
			Query:    act.Content,
			done:     make(chan QueryOutcome, 1),
		}
		e.ticketMu.Lock()
		e.tickets[id] = ticket
		e.ticketMu.Unlock()

		e.metrics.RecordAlert(string(SeverityInfo))
		e.emitter.emitNotice(id, KindData, "Query pending confirmation", act.Content)
		return nil

	default:
		return fmt.Errorf("unrecognized data operation: %q", act.Operation)
	}
}

// relPath normalizes a producer-supplied path to a clean sandbox-relative
// one.
func relPath(p string) string {
	cleaned := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(cleaned, "/")
}
