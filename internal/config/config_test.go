package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsAreComplianceSafe(t *testing.T) {
	cfg := Default()

	if cfg.Reviewer != ReviewerConsole {
		t.Errorf("expected console reviewer, got %s", cfg.Reviewer)
	}
	if cfg.AutoApprove {
		t.Error("auto-approve must default off")
	}
	if len(cfg.DestructiveVerbs) == 0 {
		t.Error("expected a non-empty destructive verb list")
	}
	if cfg.DefaultRisk != "medium" {
		t.Errorf("expected medium default risk, got %s", cfg.DefaultRisk)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info log level, got %s", cfg.LogLevel)
	}
	if cfg.LedgerPath == "" || cfg.QueueDir == "" || cfg.MirrorPath == "" {
		t.Errorf("expected derived paths, got %+v", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Reviewer != ReviewerConsole {
		t.Errorf("expected default reviewer, got %s", cfg.Reviewer)
	}
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
ledger_path: /var/lib/oversign/audit.jsonl
session_id: sess-fixed
reviewer: queue
auto_approve: true
destructive_verbs:
  - "rm "
  - "drop"
webhook_url: https://hooks.example.com/oversign
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.LedgerPath != "/var/lib/oversign/audit.jsonl" {
		t.Errorf("unexpected ledger path: %s", cfg.LedgerPath)
	}
	if cfg.SessionID != "sess-fixed" {
		t.Errorf("unexpected session id: %s", cfg.SessionID)
	}
	if cfg.Reviewer != ReviewerQueue {
		t.Errorf("expected queue reviewer, got %s", cfg.Reviewer)
	}
	if !cfg.AutoApprove {
		t.Error("expected auto-approve on")
	}
	if len(cfg.DestructiveVerbs) != 2 || cfg.DestructiveVerbs[0] != "rm " {
		t.Errorf("unexpected verbs: %v", cfg.DestructiveVerbs)
	}
	if cfg.WebhookURL != "https://hooks.example.com/oversign" {
		t.Errorf("unexpected webhook url: %s", cfg.WebhookURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("unexpected log level: %s", cfg.LogLevel)
	}
}

func TestLoadPartialYAMLKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected warn, got %s", cfg.LogLevel)
	}
	if cfg.Reviewer != ReviewerConsole {
		t.Errorf("expected default reviewer to survive, got %s", cfg.Reviewer)
	}
	if len(cfg.DestructiveVerbs) == 0 {
		t.Error("expected default verbs to survive")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvOverlayBeatsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
reviewer: console
auto_approve: false
log_level: info
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OVERSIGN_REVIEWER", "auto")
	t.Setenv("OVERSIGN_AUTO_APPROVE", "true")
	t.Setenv("OVERSIGN_DESTRUCTIVE_VERBS", "rm ,drop")
	t.Setenv("OVERSIGN_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reviewer != ReviewerAuto {
		t.Errorf("expected env to win, got %s", cfg.Reviewer)
	}
	if !cfg.AutoApprove {
		t.Error("expected env auto-approve to win")
	}
	if len(cfg.DestructiveVerbs) != 2 || cfg.DestructiveVerbs[1] != "drop" {
		t.Errorf("unexpected verbs: %v", cfg.DestructiveVerbs)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("expected error level, got %s", cfg.LogLevel)
	}
}

func TestTildeExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("ledger_path: ~/audit/oversign.jsonl\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	want := filepath.Join(home, "audit", "oversign.jsonl")
	if cfg.LedgerPath != want {
		t.Errorf("expected %s, got %s", want, cfg.LedgerPath)
	}
}

func TestWarningsFlagRiskySettings(t *testing.T) {
	cfg := Default()
	cfg.LedgerPath = "/var/lib/oversign/audit.jsonl"
	if got := cfg.Warnings(); len(got) != 0 {
		t.Fatalf("expected no warnings for safe config, got %v", got)
	}

	cfg.AutoApprove = true
	cfg.DestructiveVerbs = nil
	cfg.LedgerPath = filepath.Join(os.TempDir(), "audit.jsonl")

	warnings := cfg.Warnings()
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}
	for i, want := range []string{"auto-approve", "destructive verb", "temporary directory"} {
		if !strings.Contains(warnings[i], want) {
			t.Errorf("warning %d should mention %q: %s", i, want, warnings[i])
		}
	}
}

func TestWarningsUnknownReviewer(t *testing.T) {
	cfg := Default()
	cfg.LedgerPath = "/var/lib/oversign/audit.jsonl"
	cfg.Reviewer = "carrier-pigeon"

	warnings := cfg.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "carrier-pigeon") {
		t.Fatalf("expected unknown reviewer warning, got %v", warnings)
	}
}
