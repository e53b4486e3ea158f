package oversign

import (
	"context"

	"go.uber.org/zap"

	"github.com/oversign/oversign/internal/gate"
)

// Option configures a Client at creation time.
type Option func(*clientConfig)

// DeciderFunc reviews one proposal through whatever channel the caller
// wires up (an RPC to a review service, a chat interaction, a custom
// TUI). Returning an error records a rejection.
type DeciderFunc func(ctx context.Context, p Proposal) (Verdict, error)

type clientConfig struct {
	sessionID        string
	agentID          string
	autoApprove      bool
	console          bool
	queueDir         string
	deciderFn        DeciderFunc
	webhookURL       string
	eventsFile       string
	destructiveVerbs []string
	logger           *zap.Logger
}

// WithSessionID groups this client's entries under an existing session
// instead of a freshly generated one.
func WithSessionID(id string) Option {
	return func(c *clientConfig) { c.sessionID = id }
}

// WithAgentID sets the agent identity recorded on every entry.
// Default is "go-sdk".
func WithAgentID(id string) Option {
	return func(c *clientConfig) { c.agentID = id }
}

// WithAutoApprove approves every proposal without consulting a reviewer.
// Strictly for tests and non-interactive pipelines; both ledger entries
// per request are still written.
func WithAutoApprove() Option {
	return func(c *clientConfig) { c.autoApprove = true }
}

// WithConsoleReviewer prompts an interactive reviewer on the terminal.
// This is the default. Reviewer options are mutually exclusive; the last
// one given wins.
func WithConsoleReviewer() Option {
	return func(c *clientConfig) {
		c.console = true
		c.queueDir = ""
		c.deciderFn = nil
	}
}

// WithQueueReviewer files proposals into a directory queue and blocks
// until someone resolves them with the oversign CLI. Empty dir means
// the default queue location.
func WithQueueReviewer(dir string) Option {
	return func(c *clientConfig) {
		c.console = false
		c.deciderFn = nil
		c.queueDir = dir
		if dir == "" {
			c.queueDir = gate.DefaultDir()
		}
	}
}

// WithDeciderFunc routes proposals to a custom reviewer.
func WithDeciderFunc(fn DeciderFunc) Option {
	return func(c *clientConfig) {
		c.console = false
		c.queueDir = ""
		c.deciderFn = fn
	}
}

// WithWebhook POSTs a JSON event to url after every decision.
func WithWebhook(url string) Option {
	return func(c *clientConfig) { c.webhookURL = url }
}

// WithEventsFile appends an NDJSON event to path after every decision.
func WithEventsFile(path string) Option {
	return func(c *clientConfig) { c.eventsFile = path }
}

// WithDestructiveVerbs replaces the verb list that marks a proposed
// command irreversible and high risk.
func WithDestructiveVerbs(verbs []string) Option {
	return func(c *clientConfig) { c.destructiveVerbs = verbs }
}

// WithLogger attaches a structured logger for gate and recorder
// diagnostics. Default is no logging.
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = log }
}

// RequestOption adjusts a single proposal.
type RequestOption func(*requestConfig)

type requestConfig struct {
	risk       Risk
	reversible *bool
	context    string
}

// WithRisk labels the proposal for the reviewer.
func WithRisk(r Risk) RequestOption {
	return func(rc *requestConfig) { rc.risk = r }
}

// WithReversible declares whether the action can be undone.
func WithReversible(v bool) RequestOption {
	return func(rc *requestConfig) { rc.reversible = &v }
}

// WithContext attaches free-text background shown to the reviewer.
func WithContext(s string) RequestOption {
	return func(rc *requestConfig) { rc.context = s }
}

// gateOptions lowers SDK request options onto the gate's option type.
func gateOptions(opts []RequestOption) []gate.RequestOption {
	var rc requestConfig
	for _, o := range opts {
		o(&rc)
	}

	var out []gate.RequestOption
	if rc.risk != "" {
		out = append(out, gate.WithRiskLevel(gate.RiskLevel(rc.risk)))
	}
	if rc.reversible != nil {
		out = append(out, gate.WithReversible(*rc.reversible))
	}
	if rc.context != "" {
		out = append(out, gate.WithContext(rc.context))
	}
	return out
}
