package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opencrucible/opencrucible/pkg/config"
	"github.com/opencrucible/opencrucible/pkg/engine"
	"github.com/opencrucible/opencrucible/pkg/guard"
	"github.com/opencrucible/opencrucible/pkg/sandbox"
	"github.com/opencrucible/opencrucible/pkg/stores"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// runtime wires the configured collaborators around one engine instance for
// the duration of a command.
type runtime struct {
	cfg      *config.Config
	log      *telemetry.Logger
	engine   *engine.Engine
	store    stores.Store
	recorder *stores.Recorder
	tracer   *telemetry.Tracer
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRuntime builds the engine and its collaborators from configuration.
// The sink receives every alert after it has been persisted.
func newRuntime(ctx context.Context, sink engine.Sink) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	log, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	metrics, err := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing,
		cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	box, err := sandbox.NewLocal(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	registry := guard.NewRegistry(box)
	for _, p := range cfg.LockedPaths {
		registry.Lock(p)
	}

	shell := sandbox.NewLocalShell(cfg.Workspace)
	if cfg.Shell.Program != "" {
		shell.Program = cfg.Shell.Program
	}
	shell.CommandTimeout = time.Duration(cfg.Shell.CommandTimeout)

	rt := &runtime{cfg: cfg, log: log, tracer: tracer}

	sessionID := uuid.New().String()

	if cfg.Store.Path != "" {
		store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return nil, err
		}
		if err := store.Init(ctx); err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		rt.store = store
		rt.recorder = stores.NewRecorder(store, sessionID, log)
		sink = rt.recorder.Sink(sink)
	}

	eng, err := engine.New(cfg.Engine.ToEngine(sessionID), engine.Deps{
		Sandbox: box,
		Shell:   shell,
		Guard:   registry,
		Sink:    sink,
		Logger:  log,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return nil, err
	}
	rt.engine = eng

	if rt.recorder != nil {
		if err := rt.recorder.Attach(ctx, eng, cfg.Workspace); err != nil {
			_ = eng.Close()
			return nil, err
		}
	}

	return rt, nil
}

// close tears down the engine and persistence in dependency order.
func (rt *runtime) close(ctx context.Context) {
	_ = rt.engine.Close()
	if rt.recorder != nil {
		if err := rt.recorder.Detach(ctx); err != nil {
			rt.log.WithError(err).Warn("failed to finalize session history")
		}
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.tracer != nil {
		_ = rt.tracer.Shutdown(ctx)
	}
}
