package cli

import (
	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/gate"
)

var (
	denyNotes string
	denyBy    string
)

func init() {
	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVar(&denyNotes, "notes", "", "Reviewer notes recorded with the decision")
	denyCmd.Flags().StringVar(&denyBy, "by", "", "Reviewer identity (default: current OS user)")
}

var denyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a queued request",
	Long: "Writes a denial decision file for a pending request. The waiting agent picks\n" +
		"it up and records the approval_denied entry.",
	Args: cobra.ExactArgs(1),
	RunE: runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	return decideQueued(args[0], gate.StatusRejected, denyNotes, denyBy)
}
