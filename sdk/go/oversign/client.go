package oversign

import (
	"context"
	"fmt"
	"time"

	"github.com/oversign/oversign/internal/agent"
	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
	"github.com/oversign/oversign/internal/notify"
)

// Client binds a hash-chained ledger, an approval gate, and an
// agent-scoped recorder. Safe for concurrent use.
type Client struct {
	ledger *ledger.Ledger
	gate   *gate.Gate
	runner *agent.Runner
}

// New opens (or creates) the ledger at ledgerPath and wires the approval
// pipeline around it. Opening verifies any existing chain and refuses a
// file whose history no longer verifies. Without a reviewer option the
// client prompts interactively on the terminal.
func New(ledgerPath string, opts ...Option) (*Client, error) {
	cfg := clientConfig{agentID: "go-sdk"}
	for _, o := range opts {
		o(&cfg)
	}

	var lopts []ledger.Option
	if cfg.sessionID != "" {
		lopts = append(lopts, ledger.WithSessionID(cfg.sessionID))
	}
	l, err := ledger.Open(ledgerPath, lopts...)
	if err != nil {
		return nil, fmt.Errorf("oversign: failed to open ledger: %w", err)
	}

	decider, err := buildDecider(cfg)
	if err != nil {
		l.Close()
		return nil, err
	}

	gopts := []gate.Option{gate.WithDecider(decider)}
	if cfg.autoApprove {
		gopts = append(gopts, gate.WithAutoApprove())
	}
	if len(cfg.destructiveVerbs) > 0 {
		gopts = append(gopts, gate.WithDestructiveVerbs(cfg.destructiveVerbs))
	}
	if n := buildNotifier(cfg); n != nil {
		gopts = append(gopts, gate.WithNotifier(n))
	}
	g := gate.New(l, gopts...)

	ropts := []agent.RunnerOption{agent.WithGate(g)}
	if cfg.logger != nil {
		ropts = append(ropts, agent.WithLogger(cfg.logger))
	}

	return &Client{
		ledger: l,
		gate:   g,
		runner: agent.NewRunner(l, cfg.agentID, ropts...),
	}, nil
}

// buildDecider picks the reviewer implementation from the client options.
func buildDecider(cfg clientConfig) (gate.Decider, error) {
	switch {
	case cfg.autoApprove:
		return gate.AutoApprover{}, nil
	case cfg.deciderFn != nil:
		fn := cfg.deciderFn
		return gate.DeciderFunc(func(ctx context.Context, req *gate.Request) (gate.Decision, error) {
			v, err := fn(ctx, toProposal(req))
			if err != nil {
				return gate.Decision{}, err
			}
			return gate.Decision{
				Status:   gate.Status(v.Status),
				Notes:    v.Notes,
				Modified: v.Modified,
			}, nil
		}), nil
	case cfg.queueDir != "":
		store, err := gate.NewStore(cfg.queueDir)
		if err != nil {
			return nil, fmt.Errorf("oversign: failed to open queue store: %w", err)
		}
		var qopts []gate.QueueOption
		if cfg.logger != nil {
			qopts = append(qopts, gate.WithQueueLogger(cfg.logger))
		}
		return gate.NewQueueDecider(store, qopts...), nil
	default:
		// Explicit WithConsoleReviewer lands here too: selecting it
		// clears any previously chosen reviewer, leaving the default.
		return gate.NewConsoleDecider(nil, nil), nil
	}
}

// buildNotifier assembles the decision event sinks, or nil when none are
// configured.
func buildNotifier(cfg clientConfig) *notify.Dispatcher {
	var hooks []notify.WebhookConfig
	if cfg.webhookURL != "" {
		hooks = append(hooks, notify.WebhookConfig{URL: cfg.webhookURL})
	}
	var nopts []notify.Option
	if cfg.eventsFile != "" {
		nopts = append(nopts, notify.WithEventsFile(cfg.eventsFile))
	}
	if cfg.logger != nil {
		nopts = append(nopts, notify.WithLogger(cfg.logger))
	}
	if len(hooks) == 0 && cfg.eventsFile == "" {
		return nil
	}
	return notify.NewDispatcher(hooks, nopts...)
}

// SessionID returns the session grouping this client's entries.
func (c *Client) SessionID() string { return c.ledger.SessionID() }

// AgentID returns the identity recorded on this client's entries.
func (c *Client) AgentID() string { return c.runner.AgentID() }

// Propose submits an arbitrary proposal and blocks until the reviewer
// decides. A rejection is a normal Outcome, not an error; errors mean
// the pipeline itself failed.
func (c *Client) Propose(ctx context.Context, actionType string, payload any, description string, opts ...RequestOption) (Outcome, error) {
	resp, err := c.runner.RequestApproval(ctx, actionType, payload, description, gateOptions(opts)...)
	if err != nil {
		return Outcome{}, err
	}
	return toOutcome(resp), nil
}

// ProposeCommand submits a shell command for review. Commands containing
// a destructive verb are classified high risk and irreversible before
// the reviewer sees them.
func (c *Client) ProposeCommand(ctx context.Context, command, description string, opts ...RequestOption) (Outcome, error) {
	resp, err := c.runner.RequestCommand(ctx, command, description, gateOptions(opts)...)
	if err != nil {
		return Outcome{}, err
	}
	return toOutcome(resp), nil
}

// ProposeFileEdit submits a file change for review. Before and After are
// the full current and proposed contents; the reviewer sees their diff.
func (c *Client) ProposeFileEdit(ctx context.Context, path, before, after, description string, opts ...RequestOption) (Outcome, error) {
	resp, err := c.runner.RequestFileEdit(ctx, path, before, after, description, gateOptions(opts)...)
	if err != nil {
		return Outcome{}, err
	}
	return toOutcome(resp), nil
}

// Run records an agent_invoked entry, executes fn, and records the
// matching agent_completed or agent_failed entry with the duration.
func (c *Client) Run(ctx context.Context, input any, fn func(context.Context) (any, error)) (any, error) {
	return c.runner.Run(ctx, input, fn)
}

// RecordToolCall appends paired tool_called and tool_result entries.
func (c *Client) RecordToolCall(tool string, args, result any, toolErr error) error {
	return c.runner.RecordToolCall(tool, args, result, toolErr)
}

// RecordModelExchange appends paired llm_request and llm_response
// entries with the exchange duration on the response.
func (c *Client) RecordModelExchange(prompt, response, model string, duration time.Duration) error {
	return c.runner.RecordModelExchange(prompt, response, model, duration)
}

// RecordUserInput appends a user_input entry.
func (c *Client) RecordUserInput(text string) error {
	return c.runner.RecordUserInput(text)
}

// RecordSystemOutput appends a system_output entry.
func (c *Client) RecordSystemOutput(text string) error {
	return c.runner.RecordSystemOutput(text)
}

// Pending lists this client's undecided proposals, oldest first.
func (c *Client) Pending() []Proposal {
	reqs := c.gate.Pending()
	out := make([]Proposal, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toProposal(req))
	}
	return out
}

// Verify re-checks the full hash chain of the underlying ledger file.
func (c *Client) Verify() (Report, error) {
	r, err := c.ledger.Verify()
	if err != nil {
		return Report{}, err
	}
	return toReport(r), nil
}

// Summary aggregates one session. Empty sessionID means this client's
// session.
func (c *Client) Summary(sessionID string) (Summary, error) {
	s, err := c.ledger.Summarize(sessionID)
	if err != nil {
		return Summary{}, err
	}
	return toSummary(s), nil
}

// Close releases the ledger file handle. Entries already written stay
// verifiable.
func (c *Client) Close() error { return c.ledger.Close() }
