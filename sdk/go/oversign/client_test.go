package oversign

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oversign/oversign/internal/gate"
)

// newTestClient opens a client on a throwaway ledger. Reviewer behavior
// comes from opts; pass WithAutoApprove for tests that only exercise
// recording.
func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	opts = append([]Option{WithSessionID("sess-sdk"), WithAgentID("sdk_test")}, opts...)
	c, err := New(path, opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewGeneratesSession(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "audit.jsonl"), WithAutoApprove())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	if c.SessionID() == "" {
		t.Error("expected a generated session id")
	}
	if c.AgentID() != "go-sdk" {
		t.Errorf("expected default agent id go-sdk, got %q", c.AgentID())
	}
}

func TestLastReviewerOptionWins(t *testing.T) {
	apply := func(opts ...Option) clientConfig {
		var cfg clientConfig
		for _, o := range opts {
			o(&cfg)
		}
		return cfg
	}

	d, err := buildDecider(apply(WithQueueReviewer(t.TempDir()), WithConsoleReviewer()))
	if err != nil {
		t.Fatalf("buildDecider failed: %v", err)
	}
	if _, ok := d.(*gate.ConsoleDecider); !ok {
		t.Fatalf("expected console decider after console option, got %T", d)
	}

	d, err = buildDecider(apply(WithConsoleReviewer(), WithQueueReviewer(t.TempDir())))
	if err != nil {
		t.Fatalf("buildDecider failed: %v", err)
	}
	if _, ok := d.(*gate.QueueDecider); !ok {
		t.Fatalf("expected queue decider after queue option, got %T", d)
	}

	d, err = buildDecider(apply(
		WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
			return Verdict{Status: Approved}, nil
		}),
		WithConsoleReviewer(),
	))
	if err != nil {
		t.Fatalf("buildDecider failed: %v", err)
	}
	if _, ok := d.(*gate.ConsoleDecider); !ok {
		t.Fatalf("expected console decider to replace the custom func, got %T", d)
	}
}

func TestProposeCommandAutoApproved(t *testing.T) {
	c := newTestClient(t, WithAutoApprove())

	out, err := c.ProposeCommand(context.Background(), "gofmt -w .", "Format the tree")
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if out.Status != Approved {
		t.Errorf("expected approved, got %s", out.Status)
	}
	if out.RequestID == "" {
		t.Error("expected a request id")
	}

	report, err := c.Verify()
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !report.Valid || report.Entries != 2 {
		t.Errorf("expected 2 valid entries, got valid=%v entries=%d", report.Valid, report.Entries)
	}
}

func TestProposeRejectionIsNotAnError(t *testing.T) {
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		return Verdict{Status: Rejected, Notes: "touches production"}, nil
	}))

	out, err := c.ProposeCommand(context.Background(), "psql -c 'drop table users'", "Clean up")
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if out.Status != Rejected {
		t.Errorf("expected rejected, got %s", out.Status)
	}
	if out.Notes != "touches production" {
		t.Errorf("unexpected notes: %q", out.Notes)
	}
}

func TestDeciderFuncSeesClassifiedProposal(t *testing.T) {
	var seen Proposal
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		seen = p
		return Verdict{Status: Approved}, nil
	}))

	if _, err := c.ProposeCommand(context.Background(), "rm -rf build/", "Clear artifacts"); err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	if seen.ActionType != ActionCommand {
		t.Errorf("expected %s, got %s", ActionCommand, seen.ActionType)
	}
	if seen.AgentID != "sdk_test" {
		t.Errorf("expected agent sdk_test, got %s", seen.AgentID)
	}
	if seen.Risk != RiskHigh || seen.Reversible {
		t.Errorf("destructive command should be high risk and irreversible, got %s/%v", seen.Risk, seen.Reversible)
	}
}

func TestProposeOptionsReachReviewer(t *testing.T) {
	var seen Proposal
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		seen = p
		return Verdict{Status: Approved}, nil
	}))

	_, err := c.Propose(context.Background(), "deploy_service",
		map[string]any{"service": "api"}, "Deploy the API",
		WithRisk(RiskHigh), WithReversible(false), WithContext("change window 312"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	if seen.Risk != RiskHigh || seen.Reversible {
		t.Errorf("options not applied: %s/%v", seen.Risk, seen.Reversible)
	}
	if seen.Context != "change window 312" {
		t.Errorf("unexpected context: %q", seen.Context)
	}
}

func TestRecordingPassthroughs(t *testing.T) {
	c := newTestClient(t, WithAutoApprove())

	if err := c.RecordUserInput("implement the parser"); err != nil {
		t.Fatalf("record user input: %v", err)
	}
	if err := c.RecordModelExchange("plan it", "plan ready", "test-model", 250*time.Millisecond); err != nil {
		t.Fatalf("record model exchange: %v", err)
	}
	if err := c.RecordToolCall("gofmt", map[string]any{"args": "-l ."}, "clean", nil); err != nil {
		t.Fatalf("record tool call: %v", err)
	}
	if err := c.RecordSystemOutput("done"); err != nil {
		t.Fatalf("record system output: %v", err)
	}

	sum, err := c.Summary("")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.TotalEntries != 6 {
		t.Fatalf("expected 6 entries, got %d", sum.TotalEntries)
	}
	for _, action := range []string{"user_input", "llm_request", "llm_response", "tool_called", "tool_result", "system_output"} {
		if sum.ActionCounts[action] != 1 {
			t.Errorf("expected one %s entry, got %d", action, sum.ActionCounts[action])
		}
	}
	if sum.TotalDurationMS != 250 {
		t.Errorf("expected 250ms total duration, got %d", sum.TotalDurationMS)
	}
}

func TestRunRecordsLifecycle(t *testing.T) {
	c := newTestClient(t, WithAutoApprove())

	result, err := c.Run(context.Background(), "fix the bug", func(ctx context.Context) (any, error) {
		return "fixed", nil
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result != "fixed" {
		t.Errorf("expected fixed, got %v", result)
	}

	sum, err := c.Summary("")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if sum.ActionCounts["agent_invoked"] != 1 || sum.ActionCounts["agent_completed"] != 1 {
		t.Errorf("expected lifecycle entries, got %v", sum.ActionCounts)
	}
}

func TestVerifyReportsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := New(path, WithSessionID("sess-sdk"), WithAutoApprove())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	for _, text := range []string{"step one", "step two", "step three"} {
		if err := c.RecordSystemOutput(text); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read ledger: %v", err)
	}
	tampered := bytes.Replace(data, []byte("step two"), []byte("sponged"), 1)
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("failed to write tampered ledger: %v", err)
	}

	report, err := c.Verify()
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if report.Valid {
		t.Fatal("expected tampering to be detected")
	}
	if len(report.Violations) != 1 {
		t.Fatalf("expected exactly one violation, got %d", len(report.Violations))
	}
	if report.Violations[0].Kind != "entry_tampered" {
		t.Errorf("expected entry_tampered, got %s", report.Violations[0].Kind)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	first, err := New(path, WithSessionID("sess-a"), WithAutoApprove())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := first.RecordSystemOutput("session a"); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	second, err := New(path, WithSessionID("sess-b"), WithAutoApprove())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()
	if err := second.RecordSystemOutput("session b"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	report, err := second.Verify()
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !report.Valid || report.Entries != 2 {
		t.Errorf("expected 2 valid entries across sessions, got valid=%v entries=%d", report.Valid, report.Entries)
	}
}

func TestEventsFileReceivesDecisions(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.ndjson")
	c, err := New(filepath.Join(dir, "audit.jsonl"),
		WithSessionID("sess-sdk"), WithAutoApprove(), WithEventsFile(events))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer c.Close()

	if _, err := c.ProposeCommand(context.Background(), "go test ./...", "Run the suite"); err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	data, err := os.ReadFile(events)
	if err != nil {
		t.Fatalf("events file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("approved")) {
		t.Errorf("expected an approved event, got %s", data)
	}
}
