package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampFormat is the layout used in entry timestamps (UTC, millisecond
// precision).
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Action identifies the kind of event a ledger entry records.
type Action string

// The closed set of recordable actions. Wire values are part of the log
// format contract and must never change between versions.
const (
	ActionAgentInvoked      Action = "agent_invoked"
	ActionAgentCompleted    Action = "agent_completed"
	ActionAgentFailed       Action = "agent_failed"
	ActionToolCalled        Action = "tool_called"
	ActionToolResult        Action = "tool_result"
	ActionApprovalRequested Action = "approval_requested"
	ActionApprovalGranted   Action = "approval_granted"
	ActionApprovalDenied    Action = "approval_denied"
	ActionApprovalModified  Action = "approval_modified"
	ActionLLMRequest        Action = "llm_request"
	ActionLLMResponse       Action = "llm_response"
	ActionUserInput         Action = "user_input"
	ActionSystemOutput      Action = "system_output"
)

// Actions lists every recordable action.
var Actions = []Action{
	ActionAgentInvoked,
	ActionAgentCompleted,
	ActionAgentFailed,
	ActionToolCalled,
	ActionToolResult,
	ActionApprovalRequested,
	ActionApprovalGranted,
	ActionApprovalDenied,
	ActionApprovalModified,
	ActionLLMRequest,
	ActionLLMResponse,
	ActionUserInput,
	ActionSystemOutput,
}

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// Entry is one immutable record in the hash-chained NDJSON ledger.
// PreviousHash binds each entry to its predecessor and EntryHash covers the
// entry's own content, so any insertion, deletion, reordering, or mutation
// after the fact is detectable by a linear scan. Entries are sealed at
// append time and never modified.
type Entry struct {
	Timestamp    string  `json:"timestamp"`
	Action       Action  `json:"action"`
	AgentID      string  `json:"agent_id"`
	SessionID    string  `json:"session_id"`
	SequenceNum  int     `json:"sequence_num"`
	InputData    *string `json:"input_data"`
	OutputData   *string `json:"output_data"`
	Reasoning    *string `json:"reasoning"`
	PreviousHash string  `json:"previous_hash"`
	EntryHash    string  `json:"entry_hash"`
	ModelName    *string `json:"model_name"`
	DurationMS   *int64  `json:"duration_ms"`
	Success      bool    `json:"success"`
	ErrorMessage *string `json:"error_message"`
}

// Time parses the entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return time.Parse(time.RFC3339, e.Timestamp)
}

// Record describes one event to append. Input and Output may be any
// JSON-serializable value: strings pass through unchanged, everything else
// is serialized to a compact JSON string before it is stored. Empty
// optional fields are recorded as JSON null. A nil Success records true,
// the common case; failures set it explicitly.
type Record struct {
	Action    Action
	AgentID   string
	Input     any
	Output    any
	Reasoning string
	ModelName string
	Duration  time.Duration
	Success   *bool
	Err       error
}

// Bool returns a pointer to b, for Record.Success.
func Bool(b bool) *bool { return &b }

// canonicalFields returns the hash input for an entry: every field except
// entry_hash, with absent optionals encoded as JSON null so that field
// presence is itself covered by the digest.
func canonicalFields(e Entry) map[string]any {
	return map[string]any{
		"timestamp":     e.Timestamp,
		"action":        string(e.Action),
		"agent_id":      e.AgentID,
		"session_id":    e.SessionID,
		"sequence_num":  e.SequenceNum,
		"input_data":    e.InputData,
		"output_data":   e.OutputData,
		"reasoning":     e.Reasoning,
		"previous_hash": e.PreviousHash,
		"model_name":    e.ModelName,
		"duration_ms":   e.DurationMS,
		"success":       e.Success,
		"error_message": e.ErrorMessage,
	}
}

// marshalCanonical encodes m deterministically: keys sorted, compact
// separators, no HTML escaping. json.Marshal already sorts map keys; the
// Encoder is needed only to disable HTML escaping, and its trailing newline
// is stripped.
func marshalCanonical(m map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// ComputeHash returns the lowercase hex SHA-256 digest of the entry's
// canonical serialization. EntryHash itself never participates in the
// digest, which is what allows verification after the hash is stored.
func ComputeHash(e Entry) (string, error) {
	payload, err := marshalCanonical(canonicalFields(e))
	if err != nil {
		return "", fmt.Errorf("ledger: canonical serialization: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// seal computes the content hash and returns the sealed copy. Entries are
// built unsealed, sealed exactly once, and never mutated afterward.
func seal(e Entry) (Entry, error) {
	h, err := ComputeHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.EntryHash = h
	return e, nil
}

// MarshalLine renders the entry exactly as it is stored in the ledger
// file. Useful for excerpting entries into other stores without losing
// byte-level fidelity.
func (e Entry) MarshalLine() ([]byte, error) { return encodeLine(e) }

// encodeLine renders a sealed entry as the single NDJSON line stored on
// disk: declared field order, compact, no HTML escaping, no trailing
// newline.
func encodeLine(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, fmt.Errorf("ledger: encode entry: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// recomputeLineHash re-derives the content hash from a raw stored line.
// It decodes into a generic map with exact number preservation rather than
// into Entry, so that unknown fields or re-typed values introduced by
// tampering change the digest instead of being silently normalized away.
func recomputeLineHash(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return "", err
	}
	delete(m, "entry_hash")
	payload, err := marshalCanonical(m)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// payloadString serializes a Record payload the way reviewers will read it
// back: strings pass through, everything else becomes compact JSON.
func payloadString(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return optString(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("ledger: serialize payload: %w", err)
	}
	s := string(b)
	return &s, nil
}
