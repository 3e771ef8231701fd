// Package config resolves the Cline configuration directory and loads
// clinekit's own settings file from it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigDir overrides the default configuration directory.
	EnvConfigDir = "CLINE_CONFIG_DIR"

	// FileName is the settings file looked up inside the config dir.
	FileName = "clinekit.yaml"

	// DefaultLockTimeout bounds the wait for the instance lock row.
	DefaultLockTimeout = 30 * time.Second

	// DefaultPollInterval is the tick used by every polling loop.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultHistoryLimit caps how many historical messages are replayed
	// when attaching to a conversation.
	DefaultHistoryLimit = 100
)

// Duration wraps time.Duration so settings files can use values like
// "30s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ApprovalConfig selects and tunes the approval policy.
type ApprovalConfig struct {
	// Policy is "static" (fixed allow-list) or "settings" (consult the
	// instance's auto-approval settings, prompting when disabled).
	Policy string `yaml:"policy"`

	// Allow lists the action categories the static policy approves.
	Allow []string `yaml:"allow"`

	// UnknownTool is the action category assigned to tool asks whose
	// tool identifier is not recognized. Defaults to "edit_files" for
	// compatibility with existing deployments; set "read_files" for a
	// more restrictive posture.
	UnknownTool string `yaml:"unknown_tool"`

	// Persist stores interactively granted "always" approvals back into
	// the instance's auto-approval settings.
	Persist bool `yaml:"persist"`
}

// Config is the clinekit settings file.
type Config struct {
	// ClinePath points at cline-core.js, its directory, or the cline
	// executable. Empty means automatic resolution.
	ClinePath string `yaml:"cline_path"`

	LockTimeout  Duration `yaml:"lock_timeout"`
	PollInterval Duration `yaml:"poll_interval"`
	HistoryLimit int      `yaml:"history_limit"`

	Approval ApprovalConfig `yaml:"approval"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LockTimeout:  Duration(DefaultLockTimeout),
		PollInterval: Duration(DefaultPollInterval),
		HistoryLimit: DefaultHistoryLimit,
		Approval: ApprovalConfig{
			Policy:      "static",
			Allow:       []string{"read_files", "edit_files"},
			UnknownTool: "edit_files",
		},
	}
}

// Dir returns the configuration directory: $CLINE_CONFIG_DIR if set,
// otherwise ~/.cline. The directory is shared with the managed core
// process, which keeps its lock database under <dir>/data.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user home directory: %w", err)
	}
	return filepath.Join(home, ".cline"), nil
}

// Load reads <dir>/clinekit.yaml, applying defaults for anything the
// file does not set. A missing file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = Duration(DefaultLockTimeout)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Approval.Policy == "" {
		cfg.Approval.Policy = "static"
	}
	if cfg.Approval.UnknownTool == "" {
		cfg.Approval.UnknownTool = "edit_files"
	}
	return cfg, nil
}
