package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencrucible/opencrucible/cmd/crucible/commands"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	log := bootstrapLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received interrupt signal, shutting down")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		log.WithError(err).Error("command execution failed")
		os.Exit(1)
	}
}

// bootstrapLogger covers startup and shutdown messages; each command builds
// its own logger from the loaded configuration.
func bootstrapLogger() *telemetry.Logger {
	log, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: "console",
	})
	if err != nil {
		return telemetry.Nop()
	}
	return log
}
