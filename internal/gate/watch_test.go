package gate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/oversign/oversign/internal/ledger"
)

// reviewerRules writes the verdict from a second store handle, retrying
// until the request shows up in the queue.
func reviewerRules(t *testing.T, dir string, dec QueueDecision) {
	t.Helper()
	reviewer, err := NewStore(dir)
	if err != nil {
		t.Errorf("reviewer store: %v", err)
		return
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := reviewer.Decide(dec); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("request %s never became pending", dec.RequestID)
}

func TestQueueDeciderResolvesWhenReviewerRules(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueueDecider(s, WithPollInterval(25*time.Millisecond))

	req := queuedRequest("req-queued")
	go reviewerRules(t, dir, QueueDecision{
		RequestID: "req-queued",
		Status:    StatusApproved,
		Notes:     "ship it",
		DecidedBy: "alex",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dec, err := q.Decide(ctx, req)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Status != StatusApproved || dec.Notes != "ship it" {
		t.Fatalf("unexpected decision: %+v", dec)
	}

	// Queue files are cleaned up once the verdict lands.
	if _, err := s.Get("req-queued"); err == nil {
		t.Error("expected pending file to be removed")
	}
	left, err := s.ReadDecision("req-queued")
	if err != nil {
		t.Fatal(err)
	}
	if left != nil {
		t.Error("expected decision file to be removed")
	}
}

func TestQueueDeciderSeesPreexistingDecision(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	req := queuedRequest("req-early")
	if err := s.Put(req); err != nil {
		t.Fatal(err)
	}
	if err := s.Decide(QueueDecision{RequestID: "req-early", Status: StatusRejected, Notes: "no"}); err != nil {
		t.Fatal(err)
	}

	q := NewQueueDecider(s, WithPollInterval(25*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dec, err := q.Decide(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Status != StatusRejected || dec.Notes != "no" {
		t.Fatalf("unexpected decision: %+v", dec)
	}
}

func TestQueueDeciderHonorsContext(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueueDecider(s, WithPollInterval(25*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = q.Decide(ctx, queuedRequest("req-abandoned"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDecisionIDFiltersPartialWrites(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{filepath.Join("decided", "req-1.json"), "req-1"},
		{filepath.Join("decided", "req-1.json.tmp"), ""},
		{filepath.Join("decided", "notes.txt"), ""},
	}
	for _, tc := range cases {
		if got := decisionID(tc.path); got != tc.want {
			t.Errorf("decisionID(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestGateRoundTripThroughQueue(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	g, path := newTestGate(t, WithDecider(NewQueueDecider(s, WithPollInterval(25*time.Millisecond))))

	req, err := g.RequestCommand("coder", "rm stale.log", "Remove stale log")
	if err != nil {
		t.Fatal(err)
	}

	go reviewerRules(t, dir, QueueDecision{
		RequestID: req.ID,
		Status:    StatusModified,
		Notes:     "use the interactive flag",
		Modified:  Command{Command: "rm -i stale.log"},
		DecidedBy: "alex",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := g.Decide(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusModified {
		t.Fatalf("expected modified, got %s", resp.Status)
	}
	// The verdict crossed a JSON file, so the payload is a generic object.
	modified, ok := resp.Modified.(map[string]any)
	if !ok || modified["command"] != "rm -i stale.log" {
		t.Fatalf("unexpected modified payload: %#v", resp.Modified)
	}

	actions := ledgerActions(t, path)
	if len(actions) != 2 || actions[1] != ledger.ActionApprovalModified {
		t.Fatalf("unexpected ledger entries: %v", actions)
	}
	if len(g.Pending()) != 0 {
		t.Error("expected empty pending table")
	}
}
