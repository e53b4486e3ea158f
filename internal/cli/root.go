// Package cli implements the oversign command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/oversign/oversign/internal/config"
	"github.com/oversign/oversign/internal/notify"
)

var (
	cfgPath        string
	ledgerOverride string
)

var rootCmd = &cobra.Command{
	Use:   "oversign",
	Short: "Tamper-evident audit trail and approval gate for autonomous agents",
	Long: "Records every agent action in a hash-chained ledger and routes side-effecting\n" +
		"proposals through human review. The ledger proves what happened; the gate\n" +
		"decides what is allowed to happen.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config YAML (default ~/.oversign/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&ledgerOverride, "ledger", "", "Ledger file path (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadSettings resolves the effective configuration for one invocation:
// defaults, then config file, then environment, then the --ledger flag.
func loadSettings() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if ledgerOverride != "" {
		cfg.LedgerPath = ledgerOverride
	}
	return cfg, nil
}

// printWarnings surfaces compliance-relevant config findings on stderr so
// they never mix with machine-readable stdout.
func printWarnings(cfg *config.Config) {
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

// buildNotifier assembles the decision-event dispatcher from config. Nil
// when no webhook or events file is configured.
func buildNotifier(cfg *config.Config, log *zap.Logger) *notify.Dispatcher {
	var hooks []notify.WebhookConfig
	if cfg.WebhookURL != "" {
		hooks = append(hooks, notify.WebhookConfig{
			URL:    cfg.WebhookURL,
			Format: cfg.WebhookFormat,
		})
	}
	var opts []notify.Option
	if cfg.EventsFile != "" {
		opts = append(opts, notify.WithEventsFile(cfg.EventsFile))
	}
	opts = append(opts, notify.WithLogger(log))
	return notify.NewDispatcher(hooks, opts...)
}

// buildLogger builds a JSON zap logger on stderr. Stdout stays free for
// command output and, under the mcp command, the protocol stream.
func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
