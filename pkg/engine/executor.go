package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opencrucible/opencrucible/pkg/classify"
	"github.com/opencrucible/opencrucible/pkg/guard"
	"github.com/opencrucible/opencrucible/pkg/sandbox"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// Config holds the engine's tunable parameters.
type Config struct {
	// SessionID identifies the execution session, passed through to the
	// shell.
	SessionID string

	// StartGraceDelay is how long the queue waits after dispatching a
	// detached start action before the next action begins. This is a
	// documented race mitigation (letting the started server bind its
	// port), not a readiness guarantee.
	StartGraceDelay time.Duration

	// BuildCommand is the sandbox build command and its arguments.
	BuildCommand []string

	// BuildOutputDir is the conventional build output directory, relative
	// to the sandbox root.
	BuildOutputDir string

	// QueueSize bounds the number of actions waiting for execution.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.StartGraceDelay <= 0 {
		c.StartGraceDelay = 2 * time.Second
	}
	if len(c.BuildCommand) == 0 {
		c.BuildCommand = []string{"npm", "run", "build"}
	}
	if c.BuildOutputDir == "" {
		c.BuildOutputDir = "dist"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Deps are the engine's collaborators. Sandbox, Shell and Guard are
// required; the rest default to no-op implementations.
type Deps struct {
	Sandbox    sandbox.Sandbox
	Shell      sandbox.Shell
	Guard      guard.WriteGuard
	Sink       Sink
	Classifier *classify.Classifier
	Logger     *telemetry.Logger
	Metrics    *telemetry.Metrics
	Tracer     *telemetry.Tracer
}

// Engine accepts a stream of declared actions and executes them strictly in
// arrival order against the sandbox, one at a time, tracking per-action
// lifecycle state and reporting classified failures to the alert sink.
type Engine struct {
	cfg        Config
	store      *Store
	sandbox    sandbox.Sandbox
	shell      sandbox.Shell
	guard      guard.WriteGuard
	classifier *classify.Classifier
	emitter    *alertEmitter
	log        *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer

	tasks     chan task
	closed    chan struct{}
	submitMu  sync.RWMutex
	closeOnce sync.Once
	wg        sync.WaitGroup

	ctxMu sync.Mutex
	ctxs  map[string]actionCtx

	artifactMu sync.RWMutex
	artifact   *BuildArtifact

	ticketMu sync.Mutex
	tickets  map[string]*QueryTicket

	// detached tracks in-flight start actions so Close can wait for them.
	detached sync.WaitGroup
}

// task is one queued execution. The reply channel carries the handler's
// outcome back to the Run caller.
type task struct {
	id    string
	ctx   context.Context
	reply chan error
}

// New creates an engine and starts its single worker goroutine. Exactly one
// action body executes at a time.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if deps.Shell == nil {
		return nil, fmt.Errorf("shell is required")
	}
	if deps.Guard == nil {
		return nil, fmt.Errorf("write guard is required")
	}

	cfg.applyDefaults()

	if deps.Logger == nil {
		deps.Logger = telemetry.Nop()
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New()
	}
	if deps.Metrics == nil {
		deps.Metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{}, cfg.SessionID, "", "")
	}

	log := deps.Logger.NewComponentLogger("engine").WithSessionID(cfg.SessionID)

	e := &Engine{
		cfg:        cfg,
		store:      NewStore(),
		sandbox:    deps.Sandbox,
		shell:      deps.Shell,
		guard:      deps.Guard,
		classifier: deps.Classifier,
		emitter:    newAlertEmitter(deps.Sink, log),
		log:        log,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		tasks:      make(chan task, cfg.QueueSize),
		closed:     make(chan struct{}),
		ctxs:       make(map[string]actionCtx),
		tickets:    make(map[string]*QueryTicket),
	}

	e.wg.Add(1)
	go e.worker()

	return e, nil
}

// Store exposes the action record store for observers (UI projections,
// history persistence).
func (e *Engine) Store() *Store {
	return e.store
}

// GetActionState returns a snapshot of the record for id.
func (e *Engine) GetActionState(id string) (ActionState, bool) {
	return e.store.Get(id)
}

// GetBuildArtifact returns the artifact of the most recent completed build
// action, if any.
func (e *Engine) GetBuildArtifact() (BuildArtifact, bool) {
	e.artifactMu.RLock()
	defer e.artifactMu.RUnlock()
	if e.artifact == nil {
		return BuildArtifact{}, false
	}
	return *e.artifact, true
}

// Enqueue registers a new action or updates a still-pending one. A
// streaming file action may replace its content repeatedly until it is
// dispatched; updates to any other variant, or to an already-dispatched
// action, are ignored.
func (e *Engine) Enqueue(id string, action Action, streaming bool) (ActionState, error) {
	if id == "" {
		return ActionState{}, fmt.Errorf("action id is required")
	}
	if action == nil {
		return ActionState{}, fmt.Errorf("action payload is required")
	}

	var created bool
	state := e.store.Upsert(id, func(st *ActionState) {
		if st.Action == nil {
			created = true
			st.Action = action
			st.Streaming = streaming

			actx, cancel := context.WithCancel(context.Background())
			e.registerCtx(id, actx, cancel)
			st.abort = func() { e.abortRecord(id) }
			return
		}

		if st.Executed {
			return
		}
		// Only file actions accept streaming payload updates; every other
		// variant executes on first receipt.
		if st.Action.Kind() == KindFile && action.Kind() == KindFile {
			st.Action = action
			st.Streaming = streaming
		}
	})

	if created {
		e.metrics.RecordActionEnqueued(string(action.Kind()))
		e.log.WithActionID(id).WithActionKind(string(action.Kind())).Debug("action enqueued")
	}

	return state, nil
}

// Run triggers execution of an enqueued action. It is idempotent per
// identifier: once an action has been dispatched, further calls are no-ops.
// For a file action still in streaming mode, Run records the running status
// and returns without executing; the write happens on the first Run after
// streaming ends.
//
// Run blocks until the action settles (or, for detached start actions,
// until dispatch plus the grace delay) and returns the handler's error for
// the caller's own handling. The queue itself always continues with the
// next action regardless of this error.
func (e *Engine) Run(ctx context.Context, id string) error {
	var (
		skip      bool
		streaming bool
	)

	state, ok := e.store.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}

	e.store.Upsert(id, func(st *ActionState) {
		if st.Executed || st.Status.IsTerminal() {
			skip = true
			return
		}
		if st.Action.Kind() == KindFile && st.Streaming {
			// Content is still arriving; stay re-enterable in running
			// without dispatching.
			streaming = true
			st.Status = StatusRunning
			return
		}
		st.Executed = true
	})
	if skip || streaming {
		return nil
	}

	t := task{id: id, ctx: e.lookupCtx(id), reply: make(chan error, 1)}

	// Submission holds a read lock so Close can fence off the task channel
	// before closing it.
	e.submitMu.RLock()
	select {
	case <-e.closed:
		e.submitMu.RUnlock()
		e.abortRecord(id)
		return ErrEngineClosed
	default:
	}
	select {
	case e.tasks <- t:
		e.submitMu.RUnlock()
	case <-ctx.Done():
		e.submitMu.RUnlock()
		return ctx.Err()
	}

	e.log.WithActionID(id).WithActionKind(string(state.Action.Kind())).Debug("action queued for execution")

	select {
	case err := <-t.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort requests cancellation of an action. Non-terminal records are driven
// to aborted immediately; the active handler, if it is the one executing,
// observes the cancelled context and stops waiting. Aborting a settled
// action has no effect.
func (e *Engine) Abort(id string) error {
	if _, ok := e.store.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	e.abortRecord(id)
	return nil
}

func (e *Engine) abortRecord(id string) {
	if cancel := e.takeCtx(id); cancel != nil {
		cancel()
	}
	state := e.store.Upsert(id, func(st *ActionState) {
		st.Status = StatusAborted
	})
	if state.Status == StatusAborted {
		e.log.WithActionID(id).Info("action aborted")
	}
}

// QueryTicket returns the pending marker for a query data operation, if one
// was issued for id.
func (e *Engine) QueryTicket(id string) (*QueryTicket, bool) {
	e.ticketMu.Lock()
	defer e.ticketMu.Unlock()
	t, ok := e.tickets[id]
	return t, ok
}

// ResolveQuery reports the external confirmation outcome for a pending
// query. The resolution is advisory: it emits a follow-up notice and
// completes the ticket, without changing the action's settled status.
func (e *Engine) ResolveQuery(id string, outcome QueryOutcome) error {
	e.ticketMu.Lock()
	ticket, ok := e.tickets[id]
	if ok {
		delete(e.tickets, id)
	}
	e.ticketMu.Unlock()

	if !ok {
		return fmt.Errorf("no pending query for action %s", id)
	}

	ticket.done <- outcome
	close(ticket.done)

	e.emitter.emitNotice(id, KindData,
		fmt.Sprintf("Query %s", outcome), ticket.Query)
	return nil
}

// Close stops accepting work, waits for the in-flight action and any
// detached start actions to finish, and drains pending alerts. Actions
// still queued behind the in-flight one are driven to aborted.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.submitMu.Lock()
		close(e.closed)
		e.submitMu.Unlock()
		close(e.tasks)
	})
	e.wg.Wait()
	e.detached.Wait()
	e.emitter.close()
	return nil
}

// worker is the single consumer of the execution queue. Execution order
// equals arrival order; no two action bodies ever run concurrently.
func (e *Engine) worker() {
	defer e.wg.Done()
	for t := range e.tasks {
		// Tasks still queued at shutdown are aborted, not executed, so no
		// record is left non-terminal after Close.
		select {
		case <-e.closed:
			e.abortRecord(t.id)
			t.reply <- ErrEngineClosed
			continue
		default:
		}
		e.execute(t)
	}
}

// execute runs one queued action to settlement. Handler failures are
// classified and alerted here, then swallowed so the chain continues; the
// original error still travels back to the Run caller via the reply
// channel.
func (e *Engine) execute(t task) {
	state, ok := e.store.Get(t.id)
	if !ok {
		t.reply <- fmt.Errorf("%w: %s", ErrUnknownAction, t.id)
		return
	}

	// Cancellation before dispatch prevents the handler from ever being
	// invoked.
	if state.Status.IsTerminal() || (t.ctx != nil && t.ctx.Err() != nil) {
		t.reply <- ErrAborted
		return
	}

	kind := state.Action.Kind()
	log := e.log.WithActionID(t.id).WithActionKind(string(kind))

	e.store.Upsert(t.id, func(st *ActionState) {
		st.Status = StatusRunning
		now := time.Now()
		st.StartedAt = &now
	})

	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracer.StartActionSpan(ctx, t.id, string(kind))

	e.metrics.RecordActionActive(true)
	started := time.Now()

	// Detached dispatch for start actions: the handler keeps running after
	// the queue moves on, but the next action is still held back for the
	// grace delay.
	if start, isStart := state.Action.(StartAction); isStart {
		e.dispatchStart(ctx, span, t.id, start, log)
		e.metrics.RecordActionActive(false)
		select {
		case <-time.After(e.cfg.StartGraceDelay):
		case <-e.closed:
		}
		t.reply <- nil
		return
	}

	err := e.dispatch(ctx, t.id, state.Action)
	duration := time.Since(started)
	e.metrics.RecordActionActive(false)

	settled := e.settle(t.id, kind, err, duration, span, log)
	if cancel := e.takeCtx(t.id); cancel != nil {
		cancel()
	}
	t.reply <- settled
}

// dispatch routes the action to its handler. The switch is exhaustive over
// the closed set of variants.
func (e *Engine) dispatch(ctx context.Context, id string, action Action) error {
	switch act := action.(type) {
	case ShellAction:
		return e.runShell(ctx, id, act)
	case FileAction:
		return e.runFile(ctx, id, act)
	case BuildAction:
		return e.runBuild(ctx, id)
	case DataAction:
		return e.runData(ctx, id, act)
	case StartAction:
		// Handled by dispatchStart; reaching here means a wiring bug.
		return fmt.Errorf("start action %s dispatched synchronously", id)
	default:
		return fmt.Errorf("unhandled action variant %T", action)
	}
}

// settle records the terminal status for a synchronously executed action
// and, on failure, classifies and alerts. Aborted actions are exempt from
// classification and alerting: cancellation is not an error.
func (e *Engine) settle(id string, kind ActionKind, err error, duration time.Duration, span trace.Span, log *telemetry.Logger) error {
	defer span.End()

	state, _ := e.store.Get(id)

	if state.Status == StatusAborted || errors.Is(err, context.Canceled) {
		e.store.Upsert(id, func(st *ActionState) { st.Status = StatusAborted })
		e.metrics.RecordActionExecuted(string(kind), string(StatusAborted), duration)
		return ErrAborted
	}

	if err != nil {
		e.store.Upsert(id, func(st *ActionState) {
			st.Status = StatusFailed
			st.Error = err.Error()
		})
		report := e.classifier.Classify(err)
		e.metrics.RecordActionExecuted(string(kind), string(StatusFailed), duration)
		e.metrics.RecordError(report.Kind)
		e.metrics.RecordAlert(string(SeverityError))
		e.emitter.emitFailure(id, kind, report)
		log.WithError(err).WithField("error_kind", report.Kind).Error("action failed")
		telemetry.RecordError(span, err)
		return err
	}

	e.store.Upsert(id, func(st *ActionState) { st.Status = StatusComplete })
	e.metrics.RecordActionExecuted(string(kind), string(StatusComplete), duration)
	log.WithField("duration", duration.String()).Info("action complete")
	telemetry.RecordSuccess(span)
	return nil
}

// actionCtx pairs an action's cancellation context with its cancel
// function. Invoking the cancel is the abort signal observed by in-flight
// handlers.
type actionCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (e *Engine) registerCtx(id string, ctx context.Context, cancel context.CancelFunc) {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	e.ctxs[id] = actionCtx{ctx: ctx, cancel: cancel}
}

func (e *Engine) lookupCtx(id string) context.Context {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	if ac, ok := e.ctxs[id]; ok {
		return ac.ctx
	}
	return context.Background()
}

func (e *Engine) takeCtx(id string) context.CancelFunc {
	e.ctxMu.Lock()
	defer e.ctxMu.Unlock()
	if ac, ok := e.ctxs[id]; ok {
		delete(e.ctxs, id)
		return ac.cancel
	}
	return nil
}
