// Package config loads and validates the YAML configuration shared by the
// crucible daemon and CLI commands.
package config
