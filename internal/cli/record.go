package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversign/oversign/internal/ledger"
)

var (
	recordAgent      string
	recordAction     string
	recordSession    string
	recordInput      string
	recordOutput     string
	recordReasoning  string
	recordModel      string
	recordDurationMS int64
	recordFailed     bool
	recordError      string
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordAgent, "agent", "", "Agent identifier (required)")
	recordCmd.Flags().StringVar(&recordAction, "action", "", "Action type, e.g. tool_called (required)")
	recordCmd.Flags().StringVar(&recordSession, "session", "", "Session identifier (default: from config, or a fresh one)")
	recordCmd.Flags().StringVar(&recordInput, "input", "", "Input payload")
	recordCmd.Flags().StringVar(&recordOutput, "output", "", "Output payload")
	recordCmd.Flags().StringVar(&recordReasoning, "reasoning", "", "Why the agent took this action")
	recordCmd.Flags().StringVar(&recordModel, "model", "", "Model name for llm_request/llm_response entries")
	recordCmd.Flags().Int64Var(&recordDurationMS, "duration-ms", 0, "Operation duration in milliseconds")
	recordCmd.Flags().BoolVar(&recordFailed, "failed", false, "Mark the operation as failed")
	recordCmd.Flags().StringVar(&recordError, "error", "", "Error message (implies --failed)")
	_ = recordCmd.MarkFlagRequired("agent")
	_ = recordCmd.MarkFlagRequired("action")
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Append one entry to the audit ledger",
	Long: "Appends a hash-chained entry and prints it as JSON. The printed session_id\n" +
		"can be passed back via --session to group several invocations into one session.",
	RunE: runRecord,
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	printWarnings(cfg)

	action := ledger.Action(recordAction)
	if !action.Valid() {
		return fmt.Errorf("unknown action type %q", recordAction)
	}

	session := recordSession
	if session == "" {
		session = cfg.SessionID
	}
	var opts []ledger.Option
	if session != "" {
		opts = append(opts, ledger.WithSessionID(session))
	}

	l, err := ledger.Open(cfg.LedgerPath, opts...)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	rec := ledger.Record{
		Action:    action,
		AgentID:   recordAgent,
		Reasoning: recordReasoning,
		ModelName: recordModel,
		Duration:  time.Duration(recordDurationMS) * time.Millisecond,
	}
	if recordInput != "" {
		rec.Input = recordInput
	}
	if recordOutput != "" {
		rec.Output = recordOutput
	}
	if recordFailed || recordError != "" {
		rec.Success = ledger.Bool(false)
	}
	if recordError != "" {
		rec.Err = errors.New(recordError)
	}

	entry, err := l.Append(rec)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}

	out, _ := json.MarshalIndent(entry, "", "  ")
	fmt.Println(string(out))
	return nil
}
