package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
)

// --- Input/Output types ---

// ProposeInput defines parameters for the oversign_propose tool.
type ProposeInput struct {
	AgentID     string          `json:"agent_id" jsonschema:"identifier of the proposing agent"`
	ActionType  string          `json:"action_type" jsonschema:"action type (run_shell/edit_file or any custom string)"`
	Proposal    json.RawMessage `json:"proposal" jsonschema:"proposal payload: {command} for run_shell, {file_path, content, original_content} for edit_file, any JSON object otherwise"`
	Description string          `json:"description" jsonschema:"one-line summary of the proposed action"`
	Context     string          `json:"context,omitempty" jsonschema:"free-text context shown to the reviewer"`
	Risk        string          `json:"risk,omitempty" jsonschema:"advisory risk level (low/medium/high)"`
	Reversible  *bool           `json:"reversible,omitempty" jsonschema:"whether the action can be undone, defaults to true"`
}

// ProposeOutput reports the reviewer's decision.
type ProposeOutput struct {
	RequestID  string `json:"request_id,omitempty"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	Modified   any    `json:"modified_proposal,omitempty"`
	RiskLevel  string `json:"risk_level,omitempty"`
	Reversible bool   `json:"reversible"`
}

// RecordInput defines parameters for the oversign_record tool.
type RecordInput struct {
	AgentID    string          `json:"agent_id" jsonschema:"identifier of the recording agent"`
	Action     string          `json:"action" jsonschema:"entry action type (agent_invoked/tool_called/llm_request/...)"`
	Input      json.RawMessage `json:"input,omitempty" jsonschema:"input payload"`
	Output     json.RawMessage `json:"output,omitempty" jsonschema:"output payload"`
	Reasoning  string          `json:"reasoning,omitempty" jsonschema:"why the agent took this action"`
	Model      string          `json:"model,omitempty" jsonschema:"model name for llm_request/llm_response entries"`
	DurationMS int64           `json:"duration_ms,omitempty" jsonschema:"operation duration in milliseconds"`
	Success    *bool           `json:"success,omitempty" jsonschema:"whether the operation succeeded, defaults to true unless error is set"`
	Error      string          `json:"error,omitempty" jsonschema:"error message for failed operations"`
}

// RecordOutput identifies the appended entry.
type RecordOutput struct {
	SequenceNum int    `json:"sequence_num,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	EntryHash   string `json:"entry_hash,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PendingInput has no parameters.
type PendingInput struct{}

// PendingOutput lists requests still awaiting review.
type PendingOutput struct {
	Requests []PendingItem `json:"requests"`
}

// PendingItem describes one undecided request.
type PendingItem struct {
	RequestID   string `json:"request_id"`
	AgentID     string `json:"agent_id"`
	ActionType  string `json:"action_type"`
	Description string `json:"description"`
	RiskLevel   string `json:"risk_level"`
	Reversible  bool   `json:"reversible"`
	CreatedAt   string `json:"created_at"`
}

// VerifyInput has no parameters.
type VerifyInput struct{}

// VerifyOutput is the chain verification report.
type VerifyOutput struct {
	Valid      bool            `json:"valid"`
	Entries    int             `json:"entries"`
	Violations []ViolationItem `json:"violations,omitempty"`
}

// ViolationItem pinpoints one integrity failure.
type ViolationItem struct {
	Kind        string `json:"kind"`
	SequenceNum int    `json:"sequence_num,omitempty"`
	Line        int    `json:"line"`
	Message     string `json:"message"`
}

// SummaryInput selects the session to summarize.
type SummaryInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session to summarize, defaults to the current session"`
}

// SummaryOutput aggregates one session.
type SummaryOutput struct {
	SessionID       string         `json:"session_id"`
	TotalEntries    int            `json:"total_entries"`
	FirstTimestamp  string         `json:"first_timestamp,omitempty"`
	LastTimestamp   string         `json:"last_timestamp,omitempty"`
	ActionCounts    map[string]int `json:"action_counts,omitempty"`
	AgentCounts     map[string]int `json:"agent_counts,omitempty"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	FailedCount     int            `json:"failed_count"`
	SuccessRate     float64        `json:"success_rate"`
}

// commandProposal is the run_shell payload shape.
type commandProposal struct {
	Command string `json:"command"`
}

// fileEditProposal is the edit_file payload shape. Original rides along so
// the reviewer sees a diff against the current content.
type fileEditProposal struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Original string `json:"original_content"`
}

// parsedProposal is the typed form of a propose payload.
type parsedProposal struct {
	command  string
	fileEdit *fileEditProposal
	generic  any
}

// parseProposal validates the raw payload against the action type.
func parseProposal(actionType string, raw json.RawMessage) (parsedProposal, error) {
	var p parsedProposal
	switch actionType {
	case gate.ActionTypeCommand:
		var c commandProposal
		if err := json.Unmarshal(raw, &c); err != nil {
			return p, fmt.Errorf("invalid run_shell proposal: %w", err)
		}
		if strings.TrimSpace(c.Command) == "" {
			return p, errors.New("run_shell proposal needs a non-empty command field")
		}
		p.command = c.Command
	case gate.ActionTypeFileEdit:
		var f fileEditProposal
		if err := json.Unmarshal(raw, &f); err != nil {
			return p, fmt.Errorf("invalid edit_file proposal: %w", err)
		}
		if f.FilePath == "" {
			return p, errors.New("edit_file proposal needs a file_path field")
		}
		p.fileEdit = &f
	default:
		if err := json.Unmarshal(raw, &p.generic); err != nil {
			return p, fmt.Errorf("invalid proposal payload: %w", err)
		}
	}
	return p, nil
}

// parseRisk validates an advisory risk string.
func parseRisk(s string) (gate.RiskLevel, error) {
	switch strings.ToLower(s) {
	case string(gate.RiskLow):
		return gate.RiskLow, nil
	case string(gate.RiskMedium):
		return gate.RiskMedium, nil
	case string(gate.RiskHigh):
		return gate.RiskHigh, nil
	default:
		return "", fmt.Errorf("unknown risk level %q: expected low, medium, or high", s)
	}
}

// isApprovalAction reports whether a is one of the gate-owned entry types.
func isApprovalAction(a ledger.Action) bool {
	switch a {
	case ledger.ActionApprovalRequested, ledger.ActionApprovalGranted,
		ledger.ActionApprovalDenied, ledger.ActionApprovalModified:
		return true
	}
	return false
}

// --- Handlers ---

func (s *Server) handlePropose(ctx context.Context, req *mcpsdk.CallToolRequest, input ProposeInput) (*mcpsdk.CallToolResult, ProposeOutput, error) {
	var out ProposeOutput
	if input.AgentID == "" || input.ActionType == "" {
		out.Status = "invalid"
		out.Notes = "agent_id and action_type are required"
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if len(input.Proposal) == 0 {
		out.Status = "invalid"
		out.Notes = "proposal payload is required"
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	parsed, err := parseProposal(input.ActionType, input.Proposal)
	if err != nil {
		out.Status = "invalid"
		out.Notes = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	opts, err := s.requestOptions(input)
	if err != nil {
		out.Status = "invalid"
		out.Notes = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	var request *gate.Request
	switch {
	case parsed.command != "":
		request, err = s.gate.RequestCommand(input.AgentID, parsed.command, input.Description, opts...)
	case parsed.fileEdit != nil:
		request, err = s.gate.RequestFileEdit(input.AgentID, parsed.fileEdit.FilePath,
			parsed.fileEdit.Original, parsed.fileEdit.Content, input.Description, opts...)
	default:
		request, err = s.gate.Request(input.AgentID, input.ActionType, parsed.generic, input.Description, opts...)
	}
	if err != nil {
		return nil, out, fmt.Errorf("failed to submit proposal: %w", err)
	}

	s.log.Info("proposal submitted",
		zap.String("request_id", request.ID),
		zap.String("agent_id", request.AgentID),
		zap.String("action_type", request.ActionType),
		zap.String("risk_level", string(request.RiskLevel)),
		zap.String("reviewer", s.reviewer))

	resp, err := s.gate.Decide(ctx, request)
	if err != nil {
		return nil, out, fmt.Errorf("failed to decide request %s: %w", request.ID, err)
	}

	out = ProposeOutput{
		RequestID:  resp.RequestID,
		Status:     string(resp.Status),
		Notes:      resp.Notes,
		Modified:   resp.Modified,
		RiskLevel:  string(request.RiskLevel),
		Reversible: request.Reversible,
	}
	s.log.Info("proposal decided",
		zap.String("request_id", resp.RequestID),
		zap.String("status", string(resp.Status)))

	if resp.Status == gate.StatusRejected {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

// requestOptions translates the optional propose fields into gate options.
func (s *Server) requestOptions(input ProposeInput) ([]gate.RequestOption, error) {
	var opts []gate.RequestOption
	if input.Context != "" {
		opts = append(opts, gate.WithContext(input.Context))
	}
	risk := input.Risk
	if risk == "" {
		risk = s.defaultRisk
	}
	if risk != "" {
		level, err := parseRisk(risk)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gate.WithRiskLevel(level))
	}
	if input.Reversible != nil {
		opts = append(opts, gate.WithReversible(*input.Reversible))
	}
	return opts, nil
}

func (s *Server) handleRecord(ctx context.Context, req *mcpsdk.CallToolRequest, input RecordInput) (*mcpsdk.CallToolResult, RecordOutput, error) {
	var out RecordOutput
	if input.AgentID == "" {
		out.Error = "agent_id is required"
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	action := ledger.Action(input.Action)
	if !action.Valid() {
		out.Error = fmt.Sprintf("unknown action type %q", input.Action)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	if isApprovalAction(action) {
		out.Error = fmt.Sprintf("%s entries are written by the approval gate, use oversign_propose", action)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	rec := ledger.Record{
		Action:    action,
		AgentID:   input.AgentID,
		Reasoning: input.Reasoning,
		ModelName: input.Model,
		Duration:  time.Duration(input.DurationMS) * time.Millisecond,
		Success:   input.Success,
	}
	if len(input.Input) > 0 {
		var v any
		if err := json.Unmarshal(input.Input, &v); err != nil {
			out.Error = fmt.Sprintf("invalid input payload: %v", err)
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		rec.Input = v
	}
	if len(input.Output) > 0 {
		var v any
		if err := json.Unmarshal(input.Output, &v); err != nil {
			out.Error = fmt.Sprintf("invalid output payload: %v", err)
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		rec.Output = v
	}
	if input.Error != "" {
		rec.Err = errors.New(input.Error)
		// An entry carrying an error is a failure unless the caller says
		// otherwise.
		if input.Success == nil {
			rec.Success = ledger.Bool(false)
		}
	}

	entry, err := s.ledger.Append(rec)
	if err != nil {
		return nil, out, fmt.Errorf("failed to append entry: %w", err)
	}

	s.log.Debug("entry recorded",
		zap.Int("sequence_num", entry.SequenceNum),
		zap.String("action", string(entry.Action)),
		zap.String("agent_id", entry.AgentID))

	out = RecordOutput{
		SequenceNum: entry.SequenceNum,
		Timestamp:   entry.Timestamp,
		EntryHash:   entry.EntryHash,
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	pending := s.gate.Pending()
	out := PendingOutput{Requests: make([]PendingItem, 0, len(pending))}
	for _, r := range pending {
		out.Requests = append(out.Requests, PendingItem{
			RequestID:   r.ID,
			AgentID:     r.AgentID,
			ActionType:  r.ActionType,
			Description: r.Description,
			RiskLevel:   string(r.RiskLevel),
			Reversible:  r.Reversible,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	report, err := s.ledger.Verify()
	if err != nil {
		return nil, VerifyOutput{}, fmt.Errorf("failed to verify ledger: %w", err)
	}

	out := VerifyOutput{Valid: report.Valid, Entries: report.Entries}
	for _, v := range report.Violations {
		out.Violations = append(out.Violations, ViolationItem{
			Kind:        string(v.Kind),
			SequenceNum: v.Sequence,
			Line:        v.Line,
			Message:     v.Message,
		})
	}
	if !report.Valid {
		s.log.Warn("chain verification failed",
			zap.Int("entries", report.Entries),
			zap.Int("violations", len(report.Violations)))
	}
	return nil, out, nil
}

func (s *Server) handleSummary(ctx context.Context, req *mcpsdk.CallToolRequest, input SummaryInput) (*mcpsdk.CallToolResult, SummaryOutput, error) {
	sum, err := s.ledger.Summarize(input.SessionID)
	if err != nil {
		return nil, SummaryOutput{}, fmt.Errorf("failed to summarize session: %w", err)
	}

	out := SummaryOutput{
		SessionID:       sum.SessionID,
		TotalEntries:    sum.TotalEntries,
		FirstTimestamp:  sum.FirstTimestamp,
		LastTimestamp:   sum.LastTimestamp,
		TotalDurationMS: sum.TotalDurationMS,
		FailedCount:     sum.FailedCount,
		SuccessRate:     sum.SuccessRate,
	}
	if len(sum.ActionCounts) > 0 {
		out.ActionCounts = make(map[string]int, len(sum.ActionCounts))
		for a, n := range sum.ActionCounts {
			out.ActionCounts[string(a)] = n
		}
	}
	if len(sum.AgentCounts) > 0 {
		out.AgentCounts = sum.AgentCounts
	}
	return nil, out, nil
}
