package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opencrucible/opencrucible/pkg/engine"
	"github.com/opencrucible/opencrucible/pkg/telemetry"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level configuration for the crucible daemon and CLI.
type Config struct {
	// Workspace is the sandbox root directory all file actions resolve
	// against.
	Workspace string `yaml:"workspace" validate:"required"`

	// Shell is the interactive shell configuration.
	Shell ShellConfig `yaml:"shell"`

	// Engine holds the execution queue parameters.
	Engine EngineConfig `yaml:"engine"`

	// Store holds the history database configuration.
	Store StoreConfig `yaml:"store"`

	// LockedPaths are workspace-relative paths the write-guard refuses to
	// overwrite. A directory entry locks everything beneath it.
	LockedPaths []string `yaml:"locked_paths"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ShellConfig configures the shared interactive shell session.
type ShellConfig struct {
	// Program is the shell binary used for shell and start actions.
	Program string `yaml:"program"`

	// CommandTimeout bounds a single shell command; zero means no limit.
	CommandTimeout Duration `yaml:"command_timeout"`
}

// EngineConfig is the YAML-facing form of the execution queue parameters.
type EngineConfig struct {
	// StartGraceDelay is how long the queue waits after dispatching a
	// detached start action before the next action begins.
	StartGraceDelay Duration `yaml:"start_grace_delay"`

	// BuildCommand is the sandbox build command and its arguments.
	BuildCommand []string `yaml:"build_command"`

	// BuildOutputDir is the conventional build output directory.
	BuildOutputDir string `yaml:"build_output_dir"`

	// QueueSize bounds the number of actions waiting for execution.
	QueueSize int `yaml:"queue_size"`
}

// ToEngine converts the YAML form into the engine's own configuration.
func (c EngineConfig) ToEngine(sessionID string) engine.Config {
	return engine.Config{
		SessionID:       sessionID,
		StartGraceDelay: time.Duration(c.StartGraceDelay),
		BuildCommand:    c.BuildCommand,
		BuildOutputDir:  c.BuildOutputDir,
		QueueSize:       c.QueueSize,
	}
}

// StoreConfig configures the history database.
type StoreConfig struct {
	// Path is the SQLite database file path. Empty disables history.
	Path string `yaml:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workspace: ".",
		Shell: ShellConfig{
			Program: "/bin/sh",
		},
		Store: StoreConfig{
			Path: "crucible.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads a YAML configuration file, layering it over the defaults and
// validating the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for structural and semantic errors.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Workspace != "" {
		info, err := os.Stat(c.Workspace)
		if err != nil {
			return fmt.Errorf("workspace not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workspace is not a directory: %s", c.Workspace)
		}
	}

	return c.Telemetry.Validate()
}
