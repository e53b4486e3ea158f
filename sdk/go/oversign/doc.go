// Package oversign embeds a tamper-evident audit trail and an approval
// gate directly into Go agent frameworks. Every recorded event and every
// review decision lands in a hash-chained NDJSON ledger, and wrapped tool
// functions cannot execute until a verdict for them is on the chain.
//
// Usage:
//
//	ov, err := oversign.New("audit.jsonl", oversign.WithAgentID("deploy_bot"))
//	wrapped := ov.Wrap(runShell)
//	result, err := wrapped(ctx, oversign.Action{
//	    Type:        oversign.ActionCommand,
//	    Command:     "kubectl rollout restart deploy/api",
//	    Description: "Restart the API after the config change",
//	})
//
// The SDK links directly against internal packages for zero-subprocess
// overhead. External users import github.com/oversign/oversign/sdk/go/oversign.
package oversign
