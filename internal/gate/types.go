package gate

import "time"

// Status of an approval request. A request starts pending and moves
// exactly once to approved, rejected, or modified.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusModified Status = "modified"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusModified
}

// RiskLevel is advisory metadata surfaced to the reviewer. The gate never
// enforces it; it only guarantees a recorded decision exists.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Action types with dedicated proposal rendering. Any other string is
// accepted and rendered as pretty-printed JSON.
const (
	ActionTypeFileEdit = "edit_file"
	ActionTypeCommand  = "run_shell"
)

// FileEdit is the proposal payload of an edit_file request.
type FileEdit struct {
	Path    string `json:"file_path"`
	Content string `json:"content"`
}

// Command is the proposal payload of a run_shell request.
type Command struct {
	Command string `json:"command"`
}

// Request is one proposal awaiting review. Before and After carry the two
// content versions of an edit_file request so the reviewer sees a diff;
// Proposal is the payload the agent executes on approval.
type Request struct {
	ID          string    `json:"request_id"`
	AgentID     string    `json:"agent_id"`
	ActionType  string    `json:"action_type"`
	Description string    `json:"description"`
	Proposal    any       `json:"proposal"`
	Context     string    `json:"context,omitempty"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Reversible  bool      `json:"reversible"`
	Before      *string   `json:"original_content,omitempty"`
	After       *string   `json:"proposed_content,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Status      Status    `json:"status"`
	Notes       string    `json:"reviewer_notes,omitempty"`
}

// Response is the terminal outcome of one request. Modified carries the
// reviewer's replacement payload and is set only for StatusModified.
type Response struct {
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	Modified  any       `json:"modified_proposal,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Decision is what a Decider produces. Modified is consulted only when
// Status is StatusModified.
type Decision struct {
	Status   Status
	Notes    string
	Modified any
}
