package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/gate"
)

func init() {
	rootCmd.AddCommand(pendingCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List queued approval requests awaiting review",
	Long:  "Shows every request in the pending queue with its action, risk, and age.",
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	store, err := gate.NewStore(cfg.QueueDir)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}

	list, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending requests.")
		return nil
	}

	fmt.Printf("%-42s %-12s %-12s %-6s %-40s %s\n", "REQUEST", "AGENT", "ACTION", "RISK", "DESCRIPTION", "CREATED")
	for _, r := range list {
		fmt.Printf("%-42s %-12s %-12s %-6s %-40s %s\n",
			r.ID,
			truncate(r.AgentID, 12),
			truncate(r.ActionType, 12),
			r.RiskLevel,
			truncate(r.Description, 40),
			r.CreatedAt.Local().Format("15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
