// Package mcp exposes the audit ledger and approval gate to agent
// harnesses over the Model Context Protocol. Every tool call lands in the
// hash chain, so an agent wired through this server cannot act without
// leaving a record.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/oversign/oversign/internal/config"
	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
	"github.com/oversign/oversign/internal/notify"
)

// Config holds MCP server configuration.
type Config struct {
	LedgerPath       string
	SessionID        string
	QueueDir         string
	Reviewer         string
	AutoApprove      bool
	DefaultRisk      string
	DestructiveVerbs []string
	Notifier         notify.Notifier
	Logger           *zap.Logger
}

// Server wraps the MCP SDK server with ledger recording and gated
// approvals.
type Server struct {
	mcpServer   *mcpsdk.Server
	ledger      *ledger.Ledger
	gate        *gate.Gate
	log         *zap.Logger
	reviewer    string
	defaultRisk string
}

// New opens the ledger, wires the configured decider into a gate, and
// registers the oversign tools.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var lopts []ledger.Option
	if cfg.SessionID != "" {
		lopts = append(lopts, ledger.WithSessionID(cfg.SessionID))
	}
	l, err := ledger.Open(cfg.LedgerPath, lopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	decider, reviewer, err := buildDecider(cfg, log)
	if err != nil {
		l.Close()
		return nil, err
	}

	gopts := []gate.Option{gate.WithDecider(decider)}
	if cfg.AutoApprove {
		gopts = append(gopts, gate.WithAutoApprove())
	}
	if len(cfg.DestructiveVerbs) > 0 {
		gopts = append(gopts, gate.WithDestructiveVerbs(cfg.DestructiveVerbs))
	}
	if cfg.Notifier != nil {
		gopts = append(gopts, gate.WithNotifier(cfg.Notifier))
	}

	s := &Server{
		ledger:      l,
		gate:        gate.New(l, gopts...),
		log:         log,
		reviewer:    reviewer,
		defaultRisk: cfg.DefaultRisk,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "oversign",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	log.Info("mcp server ready",
		zap.String("ledger", l.Path()),
		zap.String("session_id", l.SessionID()),
		zap.String("reviewer", reviewer))
	return s, nil
}

// buildDecider maps the reviewer mode to a decider. Stdio carries the MCP
// protocol here, so interactive console review would corrupt the stream;
// console mode falls back to the filesystem queue, where a human resolves
// requests with "oversign review" or "oversign approve" in another
// terminal.
func buildDecider(cfg Config, log *zap.Logger) (gate.Decider, string, error) {
	if cfg.AutoApprove || cfg.Reviewer == config.ReviewerAuto {
		return gate.AutoApprover{}, config.ReviewerAuto, nil
	}
	if cfg.Reviewer == config.ReviewerConsole {
		log.Warn("console review is unavailable over stdio transport, using the queue instead")
	}
	dir := cfg.QueueDir
	if dir == "" {
		dir = gate.DefaultDir()
	}
	store, err := gate.NewStore(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create queue store: %w", err)
	}
	return gate.NewQueueDecider(store, gate.WithQueueLogger(log)), config.ReviewerQueue, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close closes the underlying ledger.
func (s *Server) Close() error {
	return s.ledger.Close()
}

// SessionID returns the ledger session this server records under.
func (s *Server) SessionID() string {
	return s.ledger.SessionID()
}

// registerTools adds all oversign tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "oversign_propose",
		Description: "Propose a side-effecting action for review. Blocks until the configured reviewer decides; rejected proposals return an error with the reviewer's notes.",
	}, s.handlePropose)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "oversign_record",
		Description: "Append a non-approval entry to the tamper-evident audit ledger (tool calls, LLM exchanges, agent lifecycle events).",
	}, s.handleRecord)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "oversign_pending",
		Description: "List approval requests that are still awaiting a decision.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "oversign_verify",
		Description: "Verify the full hash chain of the audit ledger and report every integrity violation found.",
	}, s.handleVerify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "oversign_summary",
		Description: "Summarize a recorded session: entry counts per action and agent, duration, and success rate.",
	}, s.handleSummary)
}
