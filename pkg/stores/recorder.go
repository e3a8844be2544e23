package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opencrucible/opencrucible/pkg/engine"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// Recorder persists engine state mutations and alerts for a session. It
// subscribes to the engine's record store and wraps the alert sink; both
// paths are best-effort because history persistence must never stall
// action execution.
type Recorder struct {
	store     Store
	sessionID string
	log       *telemetry.Logger

	unsubscribe func()
}

// NewRecorder creates a recorder bound to a session. Call Attach to start
// observing an engine.
func NewRecorder(store Store, sessionID string, log *telemetry.Logger) *Recorder {
	if log == nil {
		log = telemetry.Nop()
	}
	return &Recorder{
		store:     store,
		sessionID: sessionID,
		log:       log.NewComponentLogger("recorder").WithSessionID(sessionID),
	}
}

// Attach creates the session row and subscribes to the engine's record
// store. Every observed snapshot is upserted into history.
func (r *Recorder) Attach(ctx context.Context, eng *engine.Engine, workspace string) error {
	session := &Session{
		ID:        r.sessionID,
		Workspace: workspace,
		Status:    SessionStatusActive,
		StartedAt: time.Now(),
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return err
	}

	r.unsubscribe = eng.Store().Subscribe(func(state engine.ActionState) {
		r.recordState(state)
	})
	return nil
}

// Sink returns an alert sink that persists each alert before forwarding it
// to next. Pass nil to persist without forwarding.
func (r *Recorder) Sink(next engine.Sink) engine.Sink {
	return func(alert engine.Alert) {
		r.recordAlert(alert)
		if next != nil {
			next(alert)
		}
	}
}

// Detach stops observing and marks the session completed.
func (r *Recorder) Detach(ctx context.Context) error {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	return r.store.CompleteSession(ctx, r.sessionID)
}

func (r *Recorder) recordState(state engine.ActionState) {
	record := &ActionRecord{
		ID:         state.ID,
		SessionID:  r.sessionID,
		Status:     string(state.Status),
		Executed:   state.Executed,
		EnqueuedAt: state.EnqueuedAt,
		StartedAt:  state.StartedAt,
		SettledAt:  state.SettledAt,
	}
	if state.Action != nil {
		record.Kind = string(state.Action.Kind())
		if payload, err := json.Marshal(state.Action); err == nil {
			record.Payload = string(payload)
		}
	}
	if state.Error != "" {
		msg := state.Error
		record.Error = &msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.UpsertAction(ctx, record); err != nil {
		r.log.WithActionID(state.ID).WithError(err).Warn("failed to persist action record")
	}
}

func (r *Recorder) recordAlert(alert engine.Alert) {
	record := &AlertRecord{
		SessionID:   r.sessionID,
		ActionID:    alert.ActionID,
		Severity:    string(alert.Severity),
		Kind:        alert.Kind,
		Title:       alert.Title,
		Description: alert.Description,
		Timestamp:   alert.Timestamp,
	}
	if alert.Content != "" {
		content := alert.Content
		record.Content = &content
	}
	if alert.Solution != "" {
		solution := alert.Solution
		record.Solution = &solution
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.store.AppendAlert(ctx, record); err != nil {
		r.log.WithActionID(alert.ActionID).WithError(err).Warn("failed to persist alert")
	}
}
