package cli

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/gate"
)

func init() {
	rootCmd.AddCommand(reviewCmd)
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review queued requests interactively",
	Long: "Walks every pending request in the queue, rendering diffs and commands, and\n" +
		"files the decision you make for each. Closing input (Ctrl-D) stops the batch\n" +
		"and leaves the remaining requests pending.",
	RunE: runReview,
}

func runReview(cmd *cobra.Command, args []string) error {
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

	reviewer := ""
	if u, err := user.Current(); err == nil {
		reviewer = u.Username
	}

	console := gate.NewConsoleDecider(os.Stdin, os.Stdout)
	decided := 0
	for i, req := range list {
		fmt.Printf("\n[%d/%d]\n", i+1, len(list))

		dec, err := console.Decide(cmd.Context(), req)
		if err != nil {
			return err
		}
		if dec.Status == gate.StatusRejected && dec.Notes == gate.NotesCancelled {
			fmt.Printf("\nStopped. %d request(s) left pending.\n", len(list)-i)
			break
		}

		if err := store.Decide(gate.QueueDecision{
			RequestID: req.ID,
			Status:    dec.Status,
			Notes:     dec.Notes,
			Modified:  dec.Modified,
			DecidedBy: reviewer,
			DecidedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("failed to file decision for %s: %w", req.ID, err)
		}
		decided++
		fmt.Printf("%s %q\n", statusVerb(dec.Status), req.ID)
	}

	fmt.Printf("\nReviewed %d request(s).\n", decided)
	return nil
}
