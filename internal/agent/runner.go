// Package agent wraps agent executions with audit entries. A Runner
// brackets each run with invoked/completed/failed records, pairs tool
// calls and model exchanges, and funnels approval requests through the
// gate while keeping per-agent counters.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
)

// ErrNoGate is returned by approval helpers when the runner was built
// without one.
var ErrNoGate = errors.New("agent: no approval gate configured")

// Stats are the per-runner counters accumulated across runs. A modified
// decision counts as granted: the action still executes, just not in its
// original form.
type Stats struct {
	Runs               int `json:"runs"`
	Failures           int `json:"failures"`
	ToolCalls          int `json:"tool_calls"`
	ModelCalls         int `json:"model_calls"`
	ApprovalsRequested int `json:"approvals_requested"`
	ApprovalsGranted   int `json:"approvals_granted"`
	ApprovalsDenied    int `json:"approvals_denied"`
}

// Fn is the agent body executed by Run. The returned value becomes the
// output payload of the completion entry.
type Fn func(ctx context.Context) (any, error)

// Runner records one agent's activity against a shared ledger.
type Runner struct {
	ledger  *ledger.Ledger
	gate    *gate.Gate
	agentID string
	log     *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithGate attaches an approval gate for the Request* helpers.
func WithGate(g *gate.Gate) RunnerOption {
	return func(r *Runner) { r.gate = g }
}

// WithLogger sets the logger for append failures on paths that must not
// mask the run's own error.
func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner builds a runner recording as agentID.
func NewRunner(l *ledger.Ledger, agentID string, opts ...RunnerOption) *Runner {
	r := &Runner{ledger: l, agentID: agentID, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AgentID returns the identifier this runner records under.
func (r *Runner) AgentID() string { return r.agentID }

// Run executes fn between an agent_invoked entry and its terminal
// agent_completed or agent_failed entry. The invocation is recorded
// before fn starts, so a run that cannot be recorded never executes.
// fn's error is returned unchanged; a completion that cannot be recorded
// is an error even when fn succeeded.
func (r *Runner) Run(ctx context.Context, input any, fn Fn) (any, error) {
	if _, err := r.ledger.Append(ledger.Record{
		Action:    ledger.ActionAgentInvoked,
		AgentID:   r.agentID,
		Input:     input,
		Reasoning: "Starting " + r.agentID,
	}); err != nil {
		return nil, fmt.Errorf("agent: record invocation: %w", err)
	}

	r.mu.Lock()
	r.stats.Runs++
	r.mu.Unlock()

	start := time.Now()
	out, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		r.mu.Lock()
		r.stats.Failures++
		r.mu.Unlock()

		if _, aerr := r.ledger.Append(ledger.Record{
			Action:    ledger.ActionAgentFailed,
			AgentID:   r.agentID,
			Output:    err.Error(),
			Reasoning: "Agent run failed",
			Duration:  elapsed,
			Success:   ledger.Bool(false),
			Err:       err,
		}); aerr != nil {
			r.log.Warn("failed to record agent failure",
				zap.String("agent_id", r.agentID),
				zap.Error(aerr))
		}
		return nil, err
	}

	if _, aerr := r.ledger.Append(ledger.Record{
		Action:    ledger.ActionAgentCompleted,
		AgentID:   r.agentID,
		Output:    out,
		Reasoning: "Agent run completed",
		Duration:  elapsed,
		Success:   ledger.Bool(true),
	}); aerr != nil {
		return out, fmt.Errorf("agent: record completion: %w", aerr)
	}
	return out, nil
}

// RecordToolCall writes the tool_called/tool_result pair for one tool
// invocation. A non-nil toolErr marks the result entry failed and
// carries the error message.
func (r *Runner) RecordToolCall(tool string, args any, result any, toolErr error) error {
	if _, err := r.ledger.Append(ledger.Record{
		Action:    ledger.ActionToolCalled,
		AgentID:   r.agentID,
		Input:     map[string]any{"tool": tool, "args": args},
		Reasoning: "Calling tool " + tool,
	}); err != nil {
		return err
	}

	rec := ledger.Record{
		Action:    ledger.ActionToolResult,
		AgentID:   r.agentID,
		Input:     map[string]any{"tool": tool},
		Output:    result,
		Reasoning: "Tool " + tool + " completed",
		Success:   ledger.Bool(true),
	}
	if toolErr != nil {
		rec.Reasoning = "Tool " + tool + " failed"
		rec.Success = ledger.Bool(false)
		rec.Err = toolErr
	}
	if _, err := r.ledger.Append(rec); err != nil {
		return err
	}

	r.mu.Lock()
	r.stats.ToolCalls++
	r.mu.Unlock()
	return nil
}

// RecordModelExchange writes the llm_request/llm_response pair for one
// model call. Prompt and response bodies are reduced to lengths; the
// ledger records that an exchange happened and how long it took, not the
// conversation itself.
func (r *Runner) RecordModelExchange(prompt, response, model string, duration time.Duration) error {
	r.mu.Lock()
	r.stats.ModelCalls++
	n := r.stats.ModelCalls
	r.mu.Unlock()

	if _, err := r.ledger.Append(ledger.Record{
		Action:    ledger.ActionLLMRequest,
		AgentID:   r.agentID,
		Input:     map[string]any{"model": model, "prompt_length": len(prompt)},
		Reasoning: fmt.Sprintf("LLM call %d", n),
		ModelName: model,
	}); err != nil {
		return err
	}
	_, err := r.ledger.Append(ledger.Record{
		Action:    ledger.ActionLLMResponse,
		AgentID:   r.agentID,
		Output:    map[string]any{"model": model, "response_length": len(response)},
		Reasoning: "LLM response received",
		ModelName: model,
		Duration:  duration,
	})
	return err
}

// RecordUserInput notes text the user fed into the session.
func (r *Runner) RecordUserInput(text string) error {
	_, err := r.ledger.Append(ledger.Record{
		Action:  ledger.ActionUserInput,
		AgentID: r.agentID,
		Input:   text,
	})
	return err
}

// RecordSystemOutput notes text the system surfaced to the user.
func (r *Runner) RecordSystemOutput(text string) error {
	_, err := r.ledger.Append(ledger.Record{
		Action:  ledger.ActionSystemOutput,
		AgentID: r.agentID,
		Output:  text,
	})
	return err
}

// RequestApproval submits a generic proposal and blocks on the decision.
func (r *Runner) RequestApproval(ctx context.Context, actionType string, proposal any, description string, opts ...gate.RequestOption) (*gate.Response, error) {
	if r.gate == nil {
		return nil, ErrNoGate
	}
	req, err := r.gate.Request(r.agentID, actionType, proposal, description, opts...)
	if err != nil {
		return nil, err
	}
	return r.decide(ctx, req)
}

// RequestFileEdit submits a file edit for review with both content
// versions so the reviewer sees a diff.
func (r *Runner) RequestFileEdit(ctx context.Context, path, before, after, description string, opts ...gate.RequestOption) (*gate.Response, error) {
	if r.gate == nil {
		return nil, ErrNoGate
	}
	req, err := r.gate.RequestFileEdit(r.agentID, path, before, after, description, opts...)
	if err != nil {
		return nil, err
	}
	return r.decide(ctx, req)
}

// RequestCommand submits a shell command for review.
func (r *Runner) RequestCommand(ctx context.Context, command, description string, opts ...gate.RequestOption) (*gate.Response, error) {
	if r.gate == nil {
		return nil, ErrNoGate
	}
	req, err := r.gate.RequestCommand(r.agentID, command, description, opts...)
	if err != nil {
		return nil, err
	}
	return r.decide(ctx, req)
}

func (r *Runner) decide(ctx context.Context, req *gate.Request) (*gate.Response, error) {
	r.mu.Lock()
	r.stats.ApprovalsRequested++
	r.mu.Unlock()

	resp, err := r.gate.Decide(ctx, req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	switch resp.Status {
	case gate.StatusApproved, gate.StatusModified:
		r.stats.ApprovalsGranted++
	case gate.StatusRejected:
		r.stats.ApprovalsDenied++
	}
	r.mu.Unlock()
	return resp, nil
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
