package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func seedLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	l, path := newTestLedger(t)
	steps := []Record{
		{Action: ActionAgentInvoked, AgentID: "coder", Input: "implement feature"},
		{Action: ActionToolCalled, AgentID: "coder", Input: "go build ./...", Duration: 120 * time.Millisecond},
		{Action: ActionToolResult, AgentID: "coder", Output: "ok"},
		{Action: ActionToolCalled, AgentID: "reviewer", Input: "go vet ./...", Success: Bool(false), Err: os.ErrPermission},
		{Action: ActionAgentCompleted, AgentID: "coder", Output: "done"},
	}
	for i, r := range steps {
		if _, err := l.Append(r); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	return l, path
}

func TestQueryFiltersByAgentAndAction(t *testing.T) {
	l, path := seedLedger(t)
	l.Close()

	got, err := QueryFile(path, Filter{AgentID: "coder", Action: ActionToolCalled})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].InputData == nil || *got[0].InputData != "go build ./..." {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
}

func TestQueryFiltersBySession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.jsonl")

	l1, err := Open(path, WithSessionID("sess-a"))
	if err != nil {
		t.Fatal(err)
	}
	l1.Append(Record{Action: ActionUserInput, AgentID: "human", Input: "first"})
	l1.Close()

	l2, err := Open(path, WithSessionID("sess-b"))
	if err != nil {
		t.Fatal(err)
	}
	l2.Append(Record{Action: ActionUserInput, AgentID: "human", Input: "second"})
	l2.Append(Record{Action: ActionUserInput, AgentID: "human", Input: "third"})
	l2.Close()

	got, err := QueryFile(path, Filter{SessionID: "sess-b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for sess-b, got %d", len(got))
	}
}

func TestQueryTimeWindow(t *testing.T) {
	l, path := seedLedger(t)
	l.Close()

	now := time.Now().UTC()
	got, err := QueryFile(path, Filter{Since: now.Add(-time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 entries since a minute ago, got %d", len(got))
	}

	got, err = QueryFile(path, Filter{Until: now.Add(-time.Minute)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 entries before a minute ago, got %d", len(got))
	}
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	l, path := seedLedger(t)
	l.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()

	got, err := QueryFile(path, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 parseable entries, got %d", len(got))
	}
}

func TestTailReturnsLastEntries(t *testing.T) {
	l, path := seedLedger(t)
	l.Close()

	got, err := TailFile(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[1].Action != ActionAgentCompleted {
		t.Fatalf("expected final entry last, got %s", got[1].Action)
	}

	got, err = TailFile(path, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected all 5 entries, got %d", len(got))
	}
}

func TestExportSessionWritesVerifiableExcerpt(t *testing.T) {
	l, path := seedLedger(t)

	out, n, err := l.ExportSession("", "")
	l.Close()
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 exported entries, got %d", n)
	}
	base := filepath.Base(out)
	if !strings.HasPrefix(base, "audit_export_sess-test_") || !strings.HasSuffix(base, ".jsonl") {
		t.Fatalf("unexpected export name %q", base)
	}
	if filepath.Dir(out) != filepath.Dir(path) {
		t.Fatalf("expected export next to ledger, got %q", out)
	}

	// The whole ledger is one session, so the excerpt is a complete chain.
	report, err := VerifyFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.Entries != 5 {
		t.Fatalf("expected valid 5-entry export, got %d entries: %v", report.Entries, report.Violations)
	}
}

func TestExportSessionHonorsExplicitPath(t *testing.T) {
	l, _ := seedLedger(t)
	defer l.Close()

	want := filepath.Join(t.TempDir(), "handoff.jsonl")
	out, n, err := l.ExportSession("sess-test", want)
	if err != nil {
		t.Fatal(err)
	}
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
	if n != 5 {
		t.Fatalf("expected 5 entries, got %d", n)
	}
}

func TestSummarizeCountsSession(t *testing.T) {
	l, _ := seedLedger(t)
	defer l.Close()

	s, err := l.Summarize("")
	if err != nil {
		t.Fatal(err)
	}
	if s.SessionID != "sess-test" {
		t.Fatalf("expected sess-test, got %q", s.SessionID)
	}
	if s.TotalEntries != 5 {
		t.Fatalf("expected 5 entries, got %d", s.TotalEntries)
	}
	if s.ActionCounts[ActionToolCalled] != 2 {
		t.Fatalf("expected 2 tool_called, got %d", s.ActionCounts[ActionToolCalled])
	}
	if s.AgentCounts["coder"] != 4 || s.AgentCounts["reviewer"] != 1 {
		t.Fatalf("unexpected agent counts: %v", s.AgentCounts)
	}
	if s.TotalDurationMS != 120 {
		t.Fatalf("expected 120ms total duration, got %d", s.TotalDurationMS)
	}
	if s.FailedCount != 1 {
		t.Fatalf("expected 1 failure, got %d", s.FailedCount)
	}
	if s.SuccessRate != 80 {
		t.Fatalf("expected 80%% success rate, got %v", s.SuccessRate)
	}
	if s.FirstTimestamp == "" || s.LastTimestamp == "" {
		t.Fatal("expected first and last timestamps")
	}
}

func TestSummarizeUnknownSessionIsEmpty(t *testing.T) {
	l, _ := seedLedger(t)
	defer l.Close()

	s, err := l.Summarize("sess-nope")
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalEntries != 0 {
		t.Fatalf("expected 0 entries, got %d", s.TotalEntries)
	}
	if s.SessionID != "sess-nope" {
		t.Fatalf("expected echoed session id, got %q", s.SessionID)
	}
}
