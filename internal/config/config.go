// Package config loads oversign settings in three layers: built-in
// defaults, then an optional YAML file, then OVERSIGN_* environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/oversign/oversign/internal/gate"
)

// Reviewer modes accepted by the gate wiring.
const (
	ReviewerConsole = "console"
	ReviewerQueue   = "queue"
	ReviewerAuto    = "auto"
)

// Config holds all framework-wide settings.
type Config struct {
	LedgerPath       string   `yaml:"ledger_path" env:"OVERSIGN_LEDGER"`
	SessionID        string   `yaml:"session_id" env:"OVERSIGN_SESSION"`
	QueueDir         string   `yaml:"queue_dir" env:"OVERSIGN_QUEUE_DIR"`
	ExportDir        string   `yaml:"export_dir" env:"OVERSIGN_EXPORT_DIR"`
	MirrorPath       string   `yaml:"mirror_path" env:"OVERSIGN_MIRROR"`
	Reviewer         string   `yaml:"reviewer" env:"OVERSIGN_REVIEWER"`
	AutoApprove      bool     `yaml:"auto_approve" env:"OVERSIGN_AUTO_APPROVE"`
	DefaultRisk      string   `yaml:"default_risk" env:"OVERSIGN_DEFAULT_RISK"`
	DestructiveVerbs []string `yaml:"destructive_verbs" env:"OVERSIGN_DESTRUCTIVE_VERBS" envSeparator:","`
	WebhookURL       string   `yaml:"webhook_url" env:"OVERSIGN_WEBHOOK_URL"`
	WebhookFormat    string   `yaml:"webhook_format" env:"OVERSIGN_WEBHOOK_FORMAT"`
	EventsFile       string   `yaml:"events_file" env:"OVERSIGN_EVENTS_FILE"`
	LogLevel         string   `yaml:"log_level" env:"OVERSIGN_LOG_LEVEL"`
}

// Default returns the compliance-safe configuration: console review, no
// auto-approve, the standard destructive verb list.
func Default() *Config {
	return &Config{
		LedgerPath:       filepath.Join(dataDir(), "audit.jsonl"),
		QueueDir:         filepath.Join(dataDir(), "queue"),
		MirrorPath:       filepath.Join(dataDir(), "audit.db"),
		Reviewer:         ReviewerConsole,
		DefaultRisk:      string(gate.RiskMedium),
		DestructiveVerbs: append([]string(nil), gate.DefaultDestructiveVerbs...),
		WebhookFormat:    "generic",
		LogLevel:         "info",
	}
}

// Load reads configuration from a YAML file and applies the environment
// overlay. Empty path falls back to ~/.oversign/config.yaml; a missing
// file returns defaults, invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(dataDir(), "config.yaml")
	}
	data, err := os.ReadFile(expandHome(path))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		// Defaults stay in place for fields the file omits.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.LedgerPath = expandHome(cfg.LedgerPath)
	cfg.QueueDir = expandHome(cfg.QueueDir)
	cfg.ExportDir = expandHome(cfg.ExportDir)
	cfg.MirrorPath = expandHome(cfg.MirrorPath)
	cfg.EventsFile = expandHome(cfg.EventsFile)
	return cfg, nil
}

// Warnings returns compliance concerns with the current settings. They
// are meant to be printed, never to abort startup.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.AutoApprove || c.Reviewer == ReviewerAuto {
		warnings = append(warnings,
			"auto-approve is enabled: agent actions will execute without human review")
	}
	if len(c.DestructiveVerbs) == 0 {
		warnings = append(warnings,
			"destructive verb list is empty: no command will be classified irreversible")
	}
	switch c.Reviewer {
	case ReviewerConsole, ReviewerQueue, ReviewerAuto:
	default:
		warnings = append(warnings,
			fmt.Sprintf("unknown reviewer mode %q: falling back to console", c.Reviewer))
	}
	if inTempDir(c.LedgerPath) {
		warnings = append(warnings,
			fmt.Sprintf("ledger path %s sits in a temporary directory: the audit trail may not survive reboots", c.LedgerPath))
	}
	return warnings
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "oversign")
	}
	return filepath.Join(home, ".oversign")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func inTempDir(path string) bool {
	if path == "" {
		return false
	}
	return strings.HasPrefix(path, os.TempDir()) || strings.HasPrefix(path, "/tmp/")
}
