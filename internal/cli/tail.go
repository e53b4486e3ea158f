package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

func init() {
	rootCmd.AddCommand(tailCmd)
}

var tailCmd = &cobra.Command{
	Use:   "tail [n]",
	Short: "Show the most recent ledger entries",
	Long:  "Reads the last N entries (default 10) and pretty-prints them.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	n := 10
	if len(args) == 1 {
		n, err = strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid entry count %q", args[0])
		}
	}

	entries, err := ledger.TailFile(cfg.LedgerPath, n)
	if err != nil {
		return err
	}

	for _, e := range entries {
		out, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
