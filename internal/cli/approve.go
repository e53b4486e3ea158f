package cli

import (
	"fmt"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/gate"
)

var (
	approveNotes string
	approveBy    string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVar(&approveNotes, "notes", "", "Reviewer notes recorded with the decision")
	approveCmd.Flags().StringVar(&approveBy, "by", "", "Reviewer identity (default: current OS user)")
}

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a queued request",
	Long: "Writes an approval decision file for a pending request. The waiting agent\n" +
		"picks it up and records the approval_granted entry; this command never\n" +
		"touches the ledger itself.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	return decideQueued(args[0], gate.StatusApproved, approveNotes, approveBy)
}

// decideQueued files a terminal decision for a queued request.
func decideQueued(id string, status gate.Status, notes, by string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	store, err := gate.NewStore(cfg.QueueDir)
	if err != nil {
		return fmt.Errorf("failed to open queue store: %w", err)
	}

	if by == "" {
		if u, err := user.Current(); err == nil {
			by = u.Username
		}
	}

	if err := store.Decide(gate.QueueDecision{
		RequestID: id,
		Status:    status,
		Notes:     notes,
		DecidedBy: by,
		DecidedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	fmt.Printf("%s %q\n", statusVerb(status), id)
	return nil
}

func statusVerb(s gate.Status) string {
	switch s {
	case gate.StatusApproved:
		return "Approved"
	case gate.StatusRejected:
		return "Denied"
	case gate.StatusModified:
		return "Modified"
	default:
		return string(s)
	}
}
