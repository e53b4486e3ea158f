package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

var exportOut string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default: derived name in the export directory)")
}

var exportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export one session to its own NDJSON file",
	Long: "Writes every entry of a session to a standalone file. Exported lines keep\n" +
		"their original hashes, so each one still proves its own integrity.",
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" && cfg.ExportDir != "" {
		if err := os.MkdirAll(cfg.ExportDir, 0o700); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
		stamp := time.Now().Format("20060102_150405")
		out = filepath.Join(cfg.ExportDir, fmt.Sprintf("audit_export_%s_%s.jsonl", args[0], stamp))
	}

	path, n, err := ledger.ExportSessionFile(cfg.LedgerPath, args[0], out)
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d entries to %s\n", n, path)
	return nil
}
