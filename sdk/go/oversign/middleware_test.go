package oversign

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewarePassesSafeMethods(t *testing.T) {
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		t.Fatal("safe methods should not reach the reviewer")
		return Verdict{}, nil
	}))
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestMiddlewareGatesMutations(t *testing.T) {
	c := newTestClient(t, WithAutoApprove())
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/deployments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	report, err := c.Verify()
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if report.Entries != 2 {
		t.Errorf("expected request and grant entries, got %d", report.Entries)
	}
}

func TestMiddlewareBlocksRejected(t *testing.T) {
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		return Verdict{Status: Rejected, Notes: "external writes need a ticket"}, nil
	}))
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	}))

	req := httptest.NewRequest("POST", "https://billing.example.com/v1/charges", nil)
	req.Host = "billing.example.com"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON body: %v", err)
	}
	if blocked, ok := body["blocked"].(bool); !ok || !blocked {
		t.Error("expected blocked=true in response")
	}
	if status, _ := body["status"].(string); status != string(Rejected) {
		t.Errorf("expected rejected status, got %q", status)
	}
	if notes, _ := body["notes"].(string); notes != "external writes need a ticket" {
		t.Errorf("unexpected notes: %q", notes)
	}
}

func TestMiddlewareMarksDeleteIrreversible(t *testing.T) {
	var seen Proposal
	c := newTestClient(t, WithDeciderFunc(func(ctx context.Context, p Proposal) (Verdict, error) {
		seen = p
		return Verdict{Status: Approved}, nil
	}))
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("DELETE", "/deployments/api", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if seen.Risk != RiskHigh || seen.Reversible {
		t.Errorf("DELETE should be high risk and irreversible, got %s/%v", seen.Risk, seen.Reversible)
	}
	if seen.ActionType != "http_request" {
		t.Errorf("expected http_request, got %s", seen.ActionType)
	}
}
