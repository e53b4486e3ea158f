package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/agent"
	"github.com/oversign/oversign/internal/gate"
	"github.com/oversign/oversign/internal/ledger"
)

func init() {
	rootCmd.AddCommand(demoCmd)
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted agent session and prove tamper evidence",
	Long: "Records a complete auto-approved agent session into a throwaway ledger, then\n" +
		"corrupts a copy of it and shows that verification catches the corruption.",
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	fmt.Println("=== oversign demo ===")
	fmt.Println("A scripted agent session, every step landing in the hash chain.")
	fmt.Println()

	tmpDir, err := os.MkdirTemp("", "oversign-demo-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ledgerPath := filepath.Join(tmpDir, "audit.jsonl")
	l, err := ledger.Open(ledgerPath, ledger.WithSessionID("demo"))
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	g := gate.New(l, gate.WithAutoApprove())
	runner := agent.NewRunner(l, "demo_coder", agent.WithGate(g))
	ctx := cmd.Context()

	fmt.Println("--- Session ---")
	_, err = runner.Run(ctx, "tidy the workspace", func(ctx context.Context) (any, error) {
		step("model plans the work")
		if err := runner.RecordModelExchange(
			"List the cleanup steps for this workspace.",
			"1. format sources 2. remove the stale build directory",
			"demo-model", 120*time.Millisecond); err != nil {
			return nil, err
		}

		step("tool call: gofmt")
		if err := runner.RecordToolCall("gofmt",
			map[string]any{"args": "-l ."}, "all files formatted", nil); err != nil {
			return nil, err
		}

		step("proposal: edit README.md")
		if _, err := runner.RequestFileEdit(ctx, "README.md",
			"# workspace\n", "# workspace\n\nCleaned nightly.\n",
			"Document the cleanup schedule"); err != nil {
			return nil, err
		}

		step("proposal: rm -rf build/ (classified irreversible)")
		resp, err := runner.RequestCommand(ctx, "rm -rf build/",
			"Remove the stale build directory")
		if err != nil {
			return nil, err
		}
		step(fmt.Sprintf("decision: %s", resp.Status))

		return "workspace tidy", nil
	})
	if err != nil {
		return fmt.Errorf("demo session failed: %w", err)
	}

	stats := runner.Stats()
	statsJSON, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println("\nRunner stats:")
	fmt.Println(string(statsJSON))

	if err := l.Close(); err != nil {
		return err
	}

	// The CI gate: the genuine ledger must verify, a corrupted copy must
	// not.
	fmt.Println("\n--- Tamper evidence ---")
	report, err := ledger.VerifyFile(ledgerPath)
	if err != nil {
		return err
	}
	fmt.Printf("  original ledger:  valid=%v entries=%d\n", report.Valid, report.Entries)

	tamperedPath := filepath.Join(tmpDir, "tampered.jsonl")
	raw, err := os.ReadFile(ledgerPath)
	if err != nil {
		return err
	}
	tampered := bytes.Replace(raw, []byte("rm -rf build/"), []byte("rm -rf /data/"), 1)
	if err := os.WriteFile(tamperedPath, tampered, 0o600); err != nil {
		return err
	}
	tamperedReport, err := ledger.VerifyFile(tamperedPath)
	if err != nil {
		return err
	}
	fmt.Printf("  tampered copy:    valid=%v violations=%d\n", tamperedReport.Valid, len(tamperedReport.Violations))
	for _, v := range tamperedReport.Violations {
		fmt.Printf("    line %d [%s]: %s\n", v.Line, v.Kind, v.Message)
	}

	fmt.Println()
	if !report.Valid {
		fmt.Println("FAIL: the genuine ledger did not verify.")
		os.Exit(1)
	}
	if tamperedReport.Valid {
		fmt.Println("FAIL: the tampered copy verified. Tamper evidence is broken.")
		os.Exit(1)
	}

	fmt.Println("PASS: genuine ledger verified, tampered copy caught.")
	return nil
}

func step(msg string) {
	fmt.Printf("  * %s\n", msg)
}
