// Package telemetry provides observability instrumentation for the action
// engine.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), and metrics (Prometheus) into a unified system
// for monitoring action execution.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "crucible"
//
//	log, err := telemetry.NewLogger(cfg.Logging)
//	if err != nil {
//	    panic(err)
//	}
//
//	metrics, err := telemetry.NewMetrics(cfg.Metrics)
//	if err != nil {
//	    panic(err)
//	}
//
//	tracer, err := telemetry.NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
//	if err != nil {
//	    panic(err)
//	}
//	defer tracer.Shutdown(context.Background())
//
// Component loggers carry a stable component field plus per-action context:
//
//	log := logger.NewComponentLogger("engine").WithSessionID(sessionID)
//	log.WithActionID(id).WithActionKind("shell").Info("action enqueued")
package telemetry
