// Package gate is the approval chokepoint for agent proposals. Every
// side-effecting action an agent wants to take is submitted as a request,
// reviewed by a decider (human console, durable queue, or auto-approve),
// and resolved to exactly one terminal decision. Each request leaves
// exactly two ledger entries: approval_requested on submission and one of
// approval_granted, approval_denied, or approval_modified when decided.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oversign/oversign/internal/identity"
	"github.com/oversign/oversign/internal/ledger"
	"github.com/oversign/oversign/internal/notify"
)

// Usage errors for decision calls referencing the wrong request. Neither
// writes anything to the ledger.
var (
	ErrUnknownRequest = errors.New("gate: unknown request")
	ErrAlreadyDecided = errors.New("gate: request already decided")
)

// DefaultDestructiveVerbs mark a shell command irreversible when any of
// them occurs in the lowercased command text.
var DefaultDestructiveVerbs = []string{"rm ", "delete", "drop", "truncate", "format"}

// Gate mediates between proposing agents and a reviewing decider.
type Gate struct {
	ledger      *ledger.Ledger
	decider     Decider
	notifier    notify.Notifier
	autoApprove bool
	destructive []string
	now         func() time.Time

	mu       sync.Mutex
	pending  map[string]*Request
	deciding map[string]bool
	decided  map[string]Status
}

// Option configures a Gate.
type Option func(*Gate)

// WithDecider sets the reviewer implementation. Default is an interactive
// console decider on stdin/stdout.
func WithDecider(d Decider) Option {
	return func(g *Gate) { g.decider = d }
}

// WithAutoApprove approves every request without consulting the decider.
// Strictly for tests and non-interactive pipelines; the two ledger entries
// per request are still written.
func WithAutoApprove() Option {
	return func(g *Gate) { g.autoApprove = true }
}

// WithNotifier delivers decision events to n after each decided request.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Gate) { g.notifier = n }
}

// WithDestructiveVerbs replaces the irreversibility denylist used by
// RequestCommand.
func WithDestructiveVerbs(verbs []string) Option {
	return func(g *Gate) { g.destructive = verbs }
}

// WithClock substitutes the wall clock for request and decision
// timestamps. Tests only.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate writing to l.
func New(l *ledger.Ledger, opts ...Option) *Gate {
	g := &Gate{
		ledger:      l,
		destructive: DefaultDestructiveVerbs,
		now:         time.Now,
		pending:     make(map[string]*Request),
		deciding:    make(map[string]bool),
		decided:     make(map[string]Status),
	}
	for _, o := range opts {
		o(g)
	}
	if g.decider == nil {
		g.decider = NewConsoleDecider(nil, nil)
	}
	return g
}

// RequestOption adjusts a request before submission.
type RequestOption func(*Request)

// WithContext attaches free-text context for the reviewer; it is also
// recorded as the reasoning of the approval_requested entry.
func WithContext(context string) RequestOption {
	return func(r *Request) { r.Context = context }
}

// WithRiskLevel overrides the default medium risk.
func WithRiskLevel(level RiskLevel) RequestOption {
	return func(r *Request) { r.RiskLevel = level }
}

// WithReversible overrides the default reversible=true.
func WithReversible(reversible bool) RequestOption {
	return func(r *Request) { r.Reversible = reversible }
}

// Request submits a proposal for review and records approval_requested.
// The request stays in the pending table until Decide or Cancel resolves
// it.
func (g *Gate) Request(agentID, actionType string, proposal any, description string, opts ...RequestOption) (*Request, error) {
	req := g.newRequest(agentID, actionType, proposal, description, opts)
	return g.submit(req, map[string]any{
		"request_id":  req.ID,
		"action_type": actionType,
		"description": description,
		"risk_level":  string(req.RiskLevel),
	})
}

// RequestFileEdit submits an edit_file proposal carrying both content
// versions so the reviewer sees a unified diff.
func (g *Gate) RequestFileEdit(agentID, path, before, after, description string, opts ...RequestOption) (*Request, error) {
	req := g.newRequest(agentID, ActionTypeFileEdit, FileEdit{Path: path, Content: after}, description, opts)
	req.Before = &before
	req.After = &after
	return g.submit(req, map[string]any{
		"request_id":  req.ID,
		"action_type": ActionTypeFileEdit,
		"file_path":   path,
		"description": description,
	})
}

// RequestCommand submits a run_shell proposal. A command containing a
// destructive verb is classified irreversible and raised to high risk;
// the classification is advisory and never blocks submission.
func (g *Gate) RequestCommand(agentID, command, description string, opts ...RequestOption) (*Request, error) {
	req := g.newRequest(agentID, ActionTypeCommand, Command{Command: command}, description, opts)
	lower := strings.ToLower(command)
	for _, verb := range g.destructive {
		if strings.Contains(lower, verb) {
			req.Reversible = false
			req.RiskLevel = RiskHigh
			break
		}
	}
	return g.submit(req, map[string]any{
		"request_id":  req.ID,
		"action_type": ActionTypeCommand,
		"command":     command,
		"description": description,
		"risk_level":  string(req.RiskLevel),
	})
}

func (g *Gate) newRequest(agentID, actionType string, proposal any, description string, opts []RequestOption) *Request {
	req := &Request{
		ID:          identity.NewRequestID(),
		AgentID:     agentID,
		ActionType:  actionType,
		Description: description,
		Proposal:    proposal,
		RiskLevel:   RiskMedium,
		Reversible:  true,
		CreatedAt:   g.now().UTC(),
		Status:      StatusPending,
	}
	for _, o := range opts {
		o(req)
	}
	return req
}

// submit records approval_requested and only then exposes the request in
// the pending table, so a failed append never leaves an unrecorded
// pending request.
func (g *Gate) submit(req *Request, payload map[string]any) (*Request, error) {
	if _, err := g.ledger.Append(ledger.Record{
		Action:    ledger.ActionApprovalRequested,
		AgentID:   req.AgentID,
		Input:     payload,
		Reasoning: req.Context,
	}); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.pending[req.ID] = req
	g.mu.Unlock()
	return req, nil
}

// Decide blocks until the decider resolves the request, records the
// decided entry, removes the request from the pending table, and returns
// the response. Decider errors and cancellation are normalized to a
// recorded rejection, so the ledger always holds a complete
// request/decision pair. Unknown or already-decided requests are usage
// errors and write nothing.
func (g *Gate) Decide(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrUnknownRequest
	}
	if err := g.claim(req.ID); err != nil {
		return nil, err
	}
	defer g.release(req.ID)

	// No gate or ledger lock is held here; the decider may wait on a
	// human indefinitely.
	var dec Decision
	switch {
	case g.autoApprove:
		dec = Decision{Status: StatusApproved, Notes: "Auto-approved (testing mode)"}
	default:
		var err error
		dec, err = g.decider.Decide(ctx, req)
		if err != nil {
			dec = Decision{Status: StatusRejected, Notes: "decision failed: " + err.Error()}
		}
	}
	if !dec.Status.Terminal() {
		dec = Decision{Status: StatusRejected, Notes: fmt.Sprintf("decider returned non-terminal status %q", dec.Status)}
	}

	return g.finish(req, dec)
}

// claim marks a pending request as in-flight so exactly one decision can
// be recorded for it.
func (g *Gate) claim(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; !ok {
		if _, done := g.decided[id]; done {
			return fmt.Errorf("%w: %s", ErrAlreadyDecided, id)
		}
		return fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	if g.deciding[id] {
		return fmt.Errorf("%w: decision in progress for %s", ErrAlreadyDecided, id)
	}
	g.deciding[id] = true
	return nil
}

func (g *Gate) release(id string) {
	g.mu.Lock()
	delete(g.deciding, id)
	g.mu.Unlock()
}

func (g *Gate) finish(req *Request, dec Decision) (*Response, error) {
	resp := &Response{
		RequestID: req.ID,
		Status:    dec.Status,
		Notes:     dec.Notes,
		DecidedAt: g.now().UTC(),
	}
	if dec.Status == StatusModified {
		resp.Modified = dec.Modified
		if resp.Modified == nil {
			resp.Modified = req.Proposal
		}
	}

	action := ledger.ActionApprovalDenied
	switch dec.Status {
	case StatusApproved:
		action = ledger.ActionApprovalGranted
	case StatusModified:
		action = ledger.ActionApprovalModified
	}

	if _, err := g.ledger.Append(ledger.Record{
		Action:  action,
		AgentID: req.AgentID,
		Input:   map[string]any{"request_id": req.ID},
		Output: map[string]any{
			"status":   string(dec.Status),
			"notes":    dec.Notes,
			"modified": resp.Modified != nil,
		},
		Reasoning: dec.Notes,
	}); err != nil {
		// Nothing was recorded; the request stays pending and Decide may
		// be retried.
		return nil, err
	}

	g.mu.Lock()
	req.Status = dec.Status
	req.Notes = dec.Notes
	delete(g.pending, req.ID)
	g.decided[req.ID] = dec.Status
	g.mu.Unlock()

	g.notify(req, resp)
	return resp, nil
}

// Pending returns a snapshot of undecided requests in submission order.
// The returned requests are copies; a decision recorded after the call
// does not mutate them.
func (g *Gate) Pending() []*Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Request, 0, len(g.pending))
	for _, r := range g.pending {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Cancel rejects a pending request without consulting the decider, as
// when an operator withdraws a proposal. Returns false when the id is
// unknown, already decided, or mid-decision.
func (g *Gate) Cancel(requestID string) (bool, error) {
	g.mu.Lock()
	req, ok := g.pending[requestID]
	if !ok || g.deciding[requestID] {
		g.mu.Unlock()
		return false, nil
	}
	g.deciding[requestID] = true
	g.mu.Unlock()
	defer g.release(requestID)

	if _, err := g.ledger.Append(ledger.Record{
		Action:    ledger.ActionApprovalDenied,
		AgentID:   req.AgentID,
		Input:     map[string]any{"request_id": requestID},
		Output:    map[string]any{"status": "cancelled"},
		Reasoning: "Request cancelled",
	}); err != nil {
		return false, err
	}

	g.mu.Lock()
	req.Status = StatusRejected
	delete(g.pending, requestID)
	g.decided[requestID] = StatusRejected
	g.mu.Unlock()
	return true, nil
}

func (g *Gate) notify(req *Request, resp *Response) {
	if g.notifier == nil {
		return
	}
	g.notifier.Notify(notify.Event{
		Timestamp:  resp.DecidedAt.Format(ledger.TimestampFormat),
		RequestID:  req.ID,
		AgentID:    req.AgentID,
		ActionType: req.ActionType,
		Status:     string(resp.Status),
		RiskLevel:  string(req.RiskLevel),
		Reversible: req.Reversible,
	})
}
