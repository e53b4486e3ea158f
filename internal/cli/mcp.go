package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	oversignmcp "github.com/oversign/oversign/internal/mcp"
)

var (
	mcpSession     string
	mcpReviewer    string
	mcpAutoApprove bool
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpSession, "session", "", "Session identifier (overrides config)")
	mcpCmd.Flags().StringVar(&mcpReviewer, "reviewer", "", "Reviewer mode: queue or auto (overrides config)")
	mcpCmd.Flags().BoolVar(&mcpAutoApprove, "auto-approve", false, "Approve every proposal without review")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server for agent integration",
	Long: "Runs oversign as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes audited tools: propose, record, pending, verify, summary.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	printWarnings(cfg)

	log := buildLogger(cfg.LogLevel)
	defer log.Sync()

	session := mcpSession
	if session == "" {
		session = cfg.SessionID
	}
	reviewer := cfg.Reviewer
	if mcpReviewer != "" {
		reviewer = mcpReviewer
	}

	srv, err := oversignmcp.New(oversignmcp.Config{
		LedgerPath:       cfg.LedgerPath,
		SessionID:        session,
		QueueDir:         cfg.QueueDir,
		Reviewer:         reviewer,
		AutoApprove:      mcpAutoApprove || cfg.AutoApprove,
		DefaultRisk:      cfg.DefaultRisk,
		DestructiveVerbs: cfg.DestructiveVerbs,
		Notifier:         buildNotifier(cfg, log),
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "oversign MCP server running on stdio (session %s)\n", srv.SessionID())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
