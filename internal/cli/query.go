package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

var (
	querySession string
	queryAgent   string
	queryAction  string
	querySince   string
	queryUntil   string
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&querySession, "session", "", "Filter by session identifier")
	queryCmd.Flags().StringVar(&queryAgent, "agent", "", "Filter by agent identifier")
	queryCmd.Flags().StringVar(&queryAction, "action", "", "Filter by action type")
	queryCmd.Flags().StringVar(&querySince, "since", "", "Only entries at or after this RFC3339 time")
	queryCmd.Flags().StringVar(&queryUntil, "until", "", "Only entries at or before this RFC3339 time")
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query ledger entries as NDJSON",
	Long: "Scans the ledger and writes matching entries to stdout, one JSON object per\n" +
		"line, byte-identical to the stored lines so excerpts stay verifiable.",
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	f := ledger.Filter{
		SessionID: querySession,
		AgentID:   queryAgent,
		Action:    ledger.Action(queryAction),
	}
	if querySince != "" {
		t, err := time.Parse(time.RFC3339, querySince)
		if err != nil {
			return fmt.Errorf("invalid --since value %q: %w", querySince, err)
		}
		f.Since = t
	}
	if queryUntil != "" {
		t, err := time.Parse(time.RFC3339, queryUntil)
		if err != nil {
			return fmt.Errorf("invalid --until value %q: %w", queryUntil, err)
		}
		f.Until = t
	}

	entries, err := ledger.QueryFile(cfg.LedgerPath, f)
	if err != nil {
		return err
	}

	for _, e := range entries {
		line, err := e.MarshalLine()
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}
