package gate

import "context"

// Decider resolves one request to a terminal decision. Implementations
// may block for human-timescale durations; ctx cancellation should
// surface as an error, which the gate records as a rejection.
type Decider interface {
	Decide(ctx context.Context, req *Request) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx context.Context, req *Request) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, req *Request) (Decision, error) {
	return f(ctx, req)
}

// AutoApprover approves every request. Test and pipeline use only; every
// decision is still written to the ledger.
type AutoApprover struct{}

func (AutoApprover) Decide(ctx context.Context, req *Request) (Decision, error) {
	return Decision{Status: StatusApproved, Notes: "Auto-approved (testing mode)"}, nil
}
