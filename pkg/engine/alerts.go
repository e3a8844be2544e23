package engine

import (
	"fmt"
	"time"

	"github.com/opencrucible/opencrucible/pkg/classify"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// AlertSeverity distinguishes classified failures from informational
// notices.
type AlertSeverity string

const (
	SeverityError AlertSeverity = "error"
	SeverityInfo  AlertSeverity = "info"
)

// Alert is the structured notification forwarded to the registered sink for
// both classified failures and operation-specific notices.
type Alert struct {
	// ActionID identifies the originating action.
	ActionID string `json:"action_id"`

	// ActionKind is the originating action's variant.
	ActionKind ActionKind `json:"action_kind"`

	// Severity is error for classified failures, info for notices.
	Severity AlertSeverity `json:"severity"`

	// Title is the human-readable headline.
	Title string `json:"title"`

	// Kind is the classification kind, or "Notice" for informational
	// alerts.
	Kind string `json:"kind"`

	// Description is a one-line summary.
	Description string `json:"description"`

	// Content is the full detail text.
	Content string `json:"content,omitempty"`

	// Solution is a suggested remediation, where one is known.
	Solution string `json:"solution,omitempty"`

	// Timestamp is when the alert was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// NoticeKind is the Kind value carried by informational alerts.
const NoticeKind = "Notice"

// Sink receives alerts emitted by the engine. It is invoked from the
// emitter's own goroutine and must not be assumed to run on any particular
// one.
type Sink func(alert Alert)

// alertEmitter decouples the engine from the sink: emission never blocks
// action execution. Alerts are dropped with a warning if the sink cannot
// keep up.
type alertEmitter struct {
	sink   Sink
	buffer chan Alert
	done   chan struct{}
	log    *telemetry.Logger
}

func newAlertEmitter(sink Sink, log *telemetry.Logger) *alertEmitter {
	e := &alertEmitter{
		sink:   sink,
		buffer: make(chan Alert, 64),
		done:   make(chan struct{}),
		log:    log,
	}
	go e.forward()
	return e
}

func (e *alertEmitter) forward() {
	defer close(e.done)
	for alert := range e.buffer {
		if e.sink != nil {
			e.sink(alert)
		}
	}
}

func (e *alertEmitter) emit(alert Alert) {
	alert.Timestamp = time.Now()
	select {
	case e.buffer <- alert:
	default:
		e.log.WithActionID(alert.ActionID).Warn("alert buffer full, dropping alert")
	}
}

// emitFailure converts a classification report into an error alert.
func (e *alertEmitter) emitFailure(actionID string, kind ActionKind, report classify.Report) {
	e.emit(Alert{
		ActionID:    actionID,
		ActionKind:  kind,
		Severity:    SeverityError,
		Title:       fmt.Sprintf("%s Error: %s", titleForKind(kind), report.Kind),
		Kind:        report.Kind,
		Description: report.Description,
		Content:     report.Content,
		Solution:    report.Solution,
	})
}

// emitNotice forwards an informational notice.
func (e *alertEmitter) emitNotice(actionID string, kind ActionKind, description, content string) {
	e.emit(Alert{
		ActionID:    actionID,
		ActionKind:  kind,
		Severity:    SeverityInfo,
		Title:       fmt.Sprintf("%s Notice", titleForKind(kind)),
		Kind:        NoticeKind,
		Description: description,
		Content:     content,
	})
}

// close drains queued alerts before returning.
func (e *alertEmitter) close() {
	close(e.buffer)
	<-e.done
}

func titleForKind(kind ActionKind) string {
	switch kind {
	case KindShell:
		return "Shell"
	case KindFile:
		return "File"
	case KindBuild:
		return "Build"
	case KindStart:
		return "Start"
	case KindData:
		return "Data Operation"
	default:
		return "Action"
	}
}
