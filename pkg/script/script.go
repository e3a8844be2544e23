// Package script loads action scripts: YAML documents declaring a sequence
// of actions for the engine to execute in order.
package script

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/opencrucible/opencrucible/pkg/engine"
)

// Script is a parsed action script.
type Script struct {
	// Name is an optional label for the script.
	Name string `yaml:"name"`

	// Actions are the declared actions in execution order.
	Actions []Entry `yaml:"actions" validate:"required,min=1,dive"`
}

// Entry is one declared action, decoded from its YAML form into the
// matching engine variant.
type Entry struct {
	// ID is the action identifier. Generated when omitted.
	ID string `yaml:"id"`

	// Kind selects the action variant.
	Kind string `yaml:"kind" validate:"required,oneof=shell file build start data"`

	// Content is the command text, file content, or data payload.
	Content string `yaml:"content"`

	// Path is the workspace-relative file path, for file and migration
	// actions.
	Path string `yaml:"path"`

	// Source records what triggered a file write. Defaults to user.
	Source string `yaml:"source"`

	// Operation selects the data operation, for data actions.
	Operation string `yaml:"operation"`
}

// Load reads and parses an action script from a YAML file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// Parse parses an action script from YAML bytes, validating its structure.
// Entries may omit their identifier; call AssignIDs before feeding the
// script to the engine.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script YAML: %w", err)
	}

	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	for i := range s.Actions {
		if _, err := s.Actions[i].Action(); err != nil {
			return nil, fmt.Errorf("invalid action %d: %w", i, err)
		}
	}

	return &s, nil
}

// AssignIDs fills empty entry identifiers using gen. Declared identifiers
// are kept, so a producer re-streaming the same script keeps addressing the
// same action records.
func (s *Script) AssignIDs(gen func(index int, entry Entry) string) {
	for i := range s.Actions {
		if s.Actions[i].ID == "" {
			s.Actions[i].ID = gen(i, s.Actions[i])
		}
	}
}

// RandomID returns a fresh unique action identifier.
func RandomID() string {
	return uuid.New().String()
}

// Action converts the entry into its engine action variant.
func (e Entry) Action() (engine.Action, error) {
	switch e.Kind {
	case "shell":
		if e.Content == "" {
			return nil, fmt.Errorf("shell action requires content")
		}
		return engine.ShellAction{Content: e.Content}, nil

	case "file":
		if e.Path == "" {
			return nil, fmt.Errorf("file action requires a path")
		}
		source := engine.ChangeSource(e.Source)
		if source == "" {
			source = engine.SourceUser
		}
		return engine.FileAction{
			FilePath: e.Path,
			Content:  e.Content,
			Source:   source,
		}, nil

	case "build":
		return engine.BuildAction{}, nil

	case "start":
		if e.Content == "" {
			return nil, fmt.Errorf("start action requires content")
		}
		return engine.StartAction{Content: e.Content}, nil

	case "data":
		op := engine.DataOp(e.Operation)
		if op != engine.OpMigration && op != engine.OpQuery {
			return nil, fmt.Errorf("data action requires operation migration or query, got %q", e.Operation)
		}
		if op == engine.OpMigration && e.Path == "" {
			return nil, fmt.Errorf("migration operation requires a path")
		}
		return engine.DataAction{
			Operation: op,
			FilePath:  e.Path,
			Content:   e.Content,
		}, nil

	default:
		return nil, fmt.Errorf("unknown action kind: %q", e.Kind)
	}
}
