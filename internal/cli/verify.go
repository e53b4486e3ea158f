package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the audit ledger",
	Long: "Walks the NDJSON ledger and validates sequence numbers, previous-hash links,\n" +
		"and every entry's own hash. Exits 0 if valid, 1 if tampered.",
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := ledgerOverride
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		cfg, err := loadSettings()
		if err != nil {
			return err
		}
		path = cfg.LedgerPath
	}

	report, err := ledger.VerifyFile(path)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", path, err)
	}

	if report.Valid {
		fmt.Printf("OK: %d entries verified\n", report.Entries)
		return nil
	}

	fmt.Fprintf(os.Stderr, "FAILED: %d violation(s) in %s\n", len(report.Violations), path)
	for _, v := range report.Violations {
		fmt.Fprintf(os.Stderr, "  line %d [%s]: %s\n", v.Line, v.Kind, v.Message)
	}
	os.Exit(1)
	return nil
}
