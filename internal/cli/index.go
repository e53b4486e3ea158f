package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/mirror"
)

var indexDB string

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexDB, "db", "", "SQLite output path (default: from config)")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build a SQLite mirror of the ledger for ad-hoc SQL",
	Long: "Verifies the full hash chain and then rebuilds a queryable SQLite copy of\n" +
		"every entry. The mirror is derived data; the NDJSON ledger stays the record\n" +
		"of truth. A ledger that fails verification is never indexed.",
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	db := indexDB
	if db == "" {
		db = cfg.MirrorPath
	}

	n, err := mirror.Build(cmd.Context(), cfg.LedgerPath, db)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d entries into %s\n", n, db)

	conn, err := mirror.Open(db)
	if err != nil {
		return err
	}
	defer conn.Close()

	actions, err := mirror.ActionCounts(cmd.Context(), conn, "")
	if err != nil {
		return err
	}
	for _, action := range sortedKeys(actions) {
		fmt.Printf("  %-22s %d\n", action, actions[action])
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
