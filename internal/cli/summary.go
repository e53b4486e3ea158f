package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary <session>",
	Short: "Summarize one recorded session",
	Long:  "Aggregates a session: entry counts per action and agent, duration, and success rate.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	s, err := ledger.SummarizeFile(cfg.LedgerPath, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session:  %s\n", s.SessionID)
	fmt.Printf("Entries:  %s\n", humanize.Comma(int64(s.TotalEntries)))
	if s.TotalEntries == 0 {
		return nil
	}

	fmt.Printf("Window:   %s  ->  %s (%s)\n", s.FirstTimestamp, s.LastTimestamp, relativeTime(s.LastTimestamp))
	fmt.Printf("Duration: %s recorded across timed entries\n", time.Duration(s.TotalDurationMS)*time.Millisecond)
	fmt.Printf("Failures: %s (%.1f%% success)\n", humanize.Comma(int64(s.FailedCount)), s.SuccessRate)

	fmt.Println("\nActions:")
	for _, k := range sortedActionKeys(s.ActionCounts) {
		fmt.Printf("  %-20s %s\n", k, humanize.Comma(int64(s.ActionCounts[ledger.Action(k)])))
	}

	fmt.Println("\nAgents:")
	agents := make([]string, 0, len(s.AgentCounts))
	for a := range s.AgentCounts {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	for _, a := range agents {
		fmt.Printf("  %-20s %s\n", a, humanize.Comma(int64(s.AgentCounts[a])))
	}
	return nil
}

func sortedActionKeys(m map[ledger.Action]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}

// relativeTime renders a ledger timestamp as "4 minutes ago". Unparseable
// timestamps come back empty rather than failing a report.
func relativeTime(ts string) string {
	t, err := time.Parse(ledger.TimestampFormat, ts)
	if err != nil {
		return ""
	}
	return humanize.Time(t)
}
