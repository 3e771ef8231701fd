package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDirEnvOverride(t *testing.T) {
	t.Setenv(EnvConfigDir, "/tmp/cline-test")
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if dir != "/tmp/cline-test" {
		t.Fatalf("unexpected dir: %s", dir)
	}
}

func TestDirDefaultsToHome(t *testing.T) {
	t.Setenv(EnvConfigDir, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}
	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir failed: %v", err)
	}
	if dir != filepath.Join(home, ".cline") {
		t.Fatalf("unexpected dir: %s", dir)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if time.Duration(cfg.LockTimeout) != DefaultLockTimeout {
		t.Errorf("unexpected lock timeout: %v", cfg.LockTimeout)
	}
	if time.Duration(cfg.PollInterval) != DefaultPollInterval {
		t.Errorf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.Approval.Policy != "static" {
		t.Errorf("unexpected approval policy: %s", cfg.Approval.Policy)
	}
	if cfg.Approval.UnknownTool != "edit_files" {
		t.Errorf("unexpected unknown_tool default: %s", cfg.Approval.UnknownTool)
	}
}

func TestLoadParsesSettingsFile(t *testing.T) {
	dir := t.TempDir()
	content := `cline_path: /opt/cline
lock_timeout: 10s
poll_interval: 250ms
approval:
  policy: settings
  allow: [read_files]
  unknown_tool: read_files
  persist: true
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ClinePath != "/opt/cline" {
		t.Errorf("unexpected cline_path: %s", cfg.ClinePath)
	}
	if time.Duration(cfg.LockTimeout) != 10*time.Second {
		t.Errorf("unexpected lock_timeout: %v", cfg.LockTimeout)
	}
	if time.Duration(cfg.PollInterval) != 250*time.Millisecond {
		t.Errorf("unexpected poll_interval: %v", cfg.PollInterval)
	}
	if cfg.Approval.Policy != "settings" {
		t.Errorf("unexpected policy: %s", cfg.Approval.Policy)
	}
	if !cfg.Approval.Persist {
		t.Error("persist not parsed")
	}
	if len(cfg.Approval.Allow) != 1 || cfg.Approval.Allow[0] != "read_files" {
		t.Errorf("unexpected allow list: %v", cfg.Approval.Allow)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("lock_timeout: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
