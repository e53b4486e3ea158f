package oversign

import (
	"fmt"
	"time"

	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
)

// Status is the reviewer's verdict on one proposal.
type Status string

const (
	Pending  Status = Status(gate.StatusPending)
	Approved Status = Status(gate.StatusApproved)
	Rejected Status = Status(gate.StatusRejected)
	Modified Status = Status(gate.StatusModified)
)

// Risk labels a proposal for the reviewer. It is advisory; the gate only
// guarantees that a recorded decision exists before the action runs.
type Risk string

const (
	RiskLow    Risk = Risk(gate.RiskLow)
	RiskMedium Risk = Risk(gate.RiskMedium)
	RiskHigh   Risk = Risk(gate.RiskHigh)
)

// Action types with dedicated review rendering. Any other string is shown
// to the reviewer as pretty-printed JSON.
const (
	ActionCommand  = gate.ActionTypeCommand
	ActionFileEdit = gate.ActionTypeFileEdit
)

// Action describes what a tool intends to do. Command actions set
// Command; file edits set Path, Before, and After so the reviewer sees a
// diff; anything else carries its payload in Payload.
type Action struct {
	Type        string // ActionCommand, ActionFileEdit, or any custom action type
	Command     string // shell command when Type is ActionCommand
	Path        string // target file when Type is ActionFileEdit
	Before      string // current file content, shown as the diff base
	After       string // proposed file content
	Payload     any    // proposal payload for custom action types
	Description string // one-line summary shown to the reviewer
}

// Outcome is the recorded verdict for one proposal.
type Outcome struct {
	RequestID string
	Status    Status
	Notes     string
	Modified  any // reviewer's replacement payload, set only for Modified
	DecidedAt time.Time
}

// Proceed reports whether the action may run, possibly with the
// reviewer's replacement payload.
func (o Outcome) Proceed() bool {
	return o.Status == Approved || o.Status == Modified
}

// Proposal is a pending request as presented to a custom reviewer.
type Proposal struct {
	RequestID   string
	AgentID     string
	ActionType  string
	Description string
	Payload     any
	Context     string
	Risk        Risk
	Reversible  bool
	CreatedAt   time.Time
}

// Verdict is a custom reviewer's decision on one proposal. Modified is
// consulted only when Status is Modified.
type Verdict struct {
	Status   Status
	Notes    string
	Modified any
}

// DeniedError is returned by a wrapped tool when the reviewer rejects
// the action. The inner function is never called.
type DeniedError struct {
	RequestID  string
	ActionType string
	Notes      string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("oversign denied (%s): %s", e.ActionType, e.Notes)
}

// Violation pinpoints one integrity failure found during verification.
type Violation struct {
	Kind     string
	Sequence int
	Line     int
	Message  string
}

// Report is the outcome of a full-chain verification pass.
type Report struct {
	Valid      bool
	Entries    int
	Violations []Violation
}

// Summary aggregates one session of ledger entries.
type Summary struct {
	SessionID       string
	TotalEntries    int
	FirstTimestamp  string
	LastTimestamp   string
	ActionCounts    map[string]int
	AgentCounts     map[string]int
	TotalDurationMS int64
	FailedCount     int
	SuccessRate     float64
}

// toOutcome maps a gate response to the SDK shape.
func toOutcome(resp *gate.Response) Outcome {
	return Outcome{
		RequestID: resp.RequestID,
		Status:    Status(resp.Status),
		Notes:     resp.Notes,
		Modified:  resp.Modified,
		DecidedAt: resp.DecidedAt,
	}
}

// toProposal maps a gate request to the shape custom reviewers see.
func toProposal(req *gate.Request) Proposal {
	return Proposal{
		RequestID:   req.ID,
		AgentID:     req.AgentID,
		ActionType:  req.ActionType,
		Description: req.Description,
		Payload:     req.Proposal,
		Context:     req.Context,
		Risk:        Risk(req.RiskLevel),
		Reversible:  req.Reversible,
		CreatedAt:   req.CreatedAt,
	}
}

// toReport maps a verification report to the SDK shape.
func toReport(r ledger.Report) Report {
	out := Report{Valid: r.Valid, Entries: r.Entries}
	for _, v := range r.Violations {
		out.Violations = append(out.Violations, Violation{
			Kind:     string(v.Kind),
			Sequence: v.Sequence,
			Line:     v.Line,
			Message:  v.Message,
		})
	}
	return out
}

// toSummary maps a session summary to the SDK shape.
func toSummary(s ledger.Summary) Summary {
	out := Summary{
		SessionID:       s.SessionID,
		TotalEntries:    s.TotalEntries,
		FirstTimestamp:  s.FirstTimestamp,
		LastTimestamp:   s.LastTimestamp,
		TotalDurationMS: s.TotalDurationMS,
		FailedCount:     s.FailedCount,
		SuccessRate:     s.SuccessRate,
	}
	if len(s.ActionCounts) > 0 {
		out.ActionCounts = make(map[string]int, len(s.ActionCounts))
		for a, n := range s.ActionCounts {
			out.ActionCounts[string(a)] = n
		}
	}
	if len(s.AgentCounts) > 0 {
		out.AgentCounts = make(map[string]int, len(s.AgentCounts))
		for a, n := range s.AgentCounts {
			out.AgentCounts[a] = n
		}
	}
	return out
}
