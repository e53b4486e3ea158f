package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
)

// resetFlags restores the package-level flag state between tests.
func resetFlags() {
	cfgPath = ""
	ledgerOverride = ""
	recordAgent = ""
	recordAction = ""
	recordSession = ""
	recordInput = ""
	recordOutput = ""
	recordReasoning = ""
	recordModel = ""
	recordDurationMS = 0
	recordFailed = false
	recordError = ""
	querySession = ""
	queryAgent = ""
	queryAction = ""
	querySince = ""
	queryUntil = ""
	exportOut = ""
	indexDB = ""
	approveNotes = ""
	approveBy = ""
	denyNotes = ""
	denyBy = ""
}

func seedHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	resetFlags()
	return tmp
}

func TestRunRecordAppendsEntry(t *testing.T) {
	home := seedHome(t)
	ledgerOverride = filepath.Join(home, "audit.jsonl")
	recordAgent = "coder"
	recordAction = "tool_called"
	recordSession = "sess-cli"
	recordInput = "gofmt -l ."
	recordDurationMS = 42

	if err := runRecord(nil, nil); err != nil {
		t.Fatalf("runRecord failed: %v", err)
	}

	entries, err := ledger.QueryFile(ledgerOverride, ledger.Filter{})
	if err != nil {
		t.Fatalf("failed to query ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != ledger.ActionToolCalled || e.AgentID != "coder" || e.SessionID != "sess-cli" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.DurationMS == nil || *e.DurationMS != 42 {
		t.Fatalf("expected duration 42ms, got %v", e.DurationMS)
	}
}

func TestRunRecordRejectsUnknownAction(t *testing.T) {
	home := seedHome(t)
	ledgerOverride = filepath.Join(home, "audit.jsonl")
	recordAgent = "coder"
	recordAction = "coffee_break"

	if err := runRecord(nil, nil); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := os.Stat(ledgerOverride); !os.IsNotExist(err) {
		t.Fatal("no ledger file should be created for a rejected record")
	}
}

func TestRunRecordMarksFailures(t *testing.T) {
	home := seedHome(t)
	ledgerOverride = filepath.Join(home, "audit.jsonl")
	recordAgent = "coder"
	recordAction = "tool_result"
	recordError = "exit status 2"

	if err := runRecord(nil, nil); err != nil {
		t.Fatalf("runRecord failed: %v", err)
	}

	entries, err := ledger.QueryFile(ledgerOverride, ledger.Filter{})
	if err != nil {
		t.Fatalf("failed to query ledger: %v", err)
	}
	if entries[0].Success {
		t.Fatal("expected success=false when --error is given")
	}
	if entries[0].ErrorMessage == nil || *entries[0].ErrorMessage != "exit status 2" {
		t.Fatalf("unexpected error message: %v", entries[0].ErrorMessage)
	}
}

func TestRunVerifyValidLedger(t *testing.T) {
	home := seedHome(t)
	path := filepath.Join(home, "audit.jsonl")
	seedLedger(t, path)
	ledgerOverride = path

	if err := runVerify(nil, nil); err != nil {
		t.Fatalf("runVerify failed: %v", err)
	}
	if err := runVerify(nil, []string{path}); err != nil {
		t.Fatalf("runVerify with explicit path failed: %v", err)
	}
}

func TestRunExportWritesSessionFile(t *testing.T) {
	home := seedHome(t)
	path := filepath.Join(home, "audit.jsonl")
	seedLedger(t, path)
	ledgerOverride = path
	exportOut = filepath.Join(home, "export.jsonl")

	if err := runExport(nil, []string{"sess-cli"}); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}

	entries, err := ledger.QueryFile(exportOut, ledger.Filter{})
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}
}

func TestRunIndexBuildsMirror(t *testing.T) {
	home := seedHome(t)
	path := filepath.Join(home, "audit.jsonl")
	seedLedger(t, path)
	ledgerOverride = path
	indexDB = filepath.Join(home, "audit.db")

	indexCmd.SetContext(context.Background())
	if err := runIndex(indexCmd, nil); err != nil {
		t.Fatalf("runIndex failed: %v", err)
	}
	if _, err := os.Stat(indexDB); err != nil {
		t.Fatalf("mirror database not created: %v", err)
	}
}

func TestRunApproveFilesDecision(t *testing.T) {
	home := seedHome(t)
	queueDir := filepath.Join(home, ".oversign", "queue")
	store := seedQueuedRequest(t, queueDir, "req-cli-1")
	approveNotes = "ship it"
	approveBy = "oncall"

	if err := runApprove(nil, []string{"req-cli-1"}); err != nil {
		t.Fatalf("runApprove failed: %v", err)
	}

	dec, err := store.ReadDecision("req-cli-1")
	if err != nil {
		t.Fatalf("failed to read decision: %v", err)
	}
	if dec == nil || dec.Status != gate.StatusApproved {
		t.Fatalf("expected approved decision, got %+v", dec)
	}
	if dec.Notes != "ship it" || dec.DecidedBy != "oncall" {
		t.Fatalf("unexpected decision metadata: %+v", dec)
	}
}

func TestRunDenyFilesDecision(t *testing.T) {
	home := seedHome(t)
	queueDir := filepath.Join(home, ".oversign", "queue")
	store := seedQueuedRequest(t, queueDir, "req-cli-2")
	denyNotes = "touches prod"
	denyBy = "oncall"

	if err := runDeny(nil, []string{"req-cli-2"}); err != nil {
		t.Fatalf("runDeny failed: %v", err)
	}

	dec, err := store.ReadDecision("req-cli-2")
	if err != nil {
		t.Fatalf("failed to read decision: %v", err)
	}
	if dec == nil || dec.Status != gate.StatusRejected {
		t.Fatalf("expected rejected decision, got %+v", dec)
	}
}

func TestRunApproveUnknownRequest(t *testing.T) {
	home := seedHome(t)
	if _, err := gate.NewStore(filepath.Join(home, ".oversign", "queue")); err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := runApprove(nil, []string{"req-ghost"}); err == nil {
		t.Fatal("expected error for unknown request")
	}
}

// seedLedger writes two entries under sess-cli.
func seedLedger(t *testing.T, path string) {
	t.Helper()
	l, err := ledger.Open(path, ledger.WithSessionID("sess-cli"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	defer l.Close()
	for _, a := range []ledger.Action{ledger.ActionAgentInvoked, ledger.ActionAgentCompleted} {
		if _, err := l.Append(ledger.Record{Action: a, AgentID: "coder"}); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}
}

// seedQueuedRequest puts one pending request into a fresh queue store.
func seedQueuedRequest(t *testing.T, dir, id string) *gate.Store {
	t.Helper()
	store, err := gate.NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	req := &gate.Request{
		ID:          id,
		AgentID:     "coder",
		ActionType:  gate.ActionTypeCommand,
		Description: "Run linters",
		Proposal:    gate.Command{Command: "golangci-lint run"},
		RiskLevel:   gate.RiskMedium,
		Reversible:  true,
		CreatedAt:   time.Now().UTC(),
		Status:      gate.StatusPending,
	}
	if err := store.Put(req); err != nil {
		t.Fatalf("failed to queue request: %v", err)
	}
	return store
}
