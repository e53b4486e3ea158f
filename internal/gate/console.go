package gate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pmezard/go-difflib/difflib"
)

// NotesCancelled marks a rejection produced by closed input rather than
// an explicit reviewer choice.
const NotesCancelled = "Cancelled by user"

// ConsoleDecider reviews requests interactively on a terminal: it renders
// the proposal (unified diff for file edits, command line for shell,
// pretty JSON otherwise) and loops on [a]pprove / [r]eject / [m]odify /
// [v]iew until a terminal choice. EOF or interrupt rejects the request
// with NotesCancelled.
type ConsoleDecider struct {
	in    *bufio.Reader
	out   io.Writer
	color bool
}

// NewConsoleDecider builds a reviewer on the given streams. nil means
// stdin/stdout. ANSI diff coloring is enabled only when out is a
// terminal.
func NewConsoleDecider(in io.Reader, out io.Writer) *ConsoleDecider {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &ConsoleDecider{in: bufio.NewReader(in), out: out, color: color}
}

func (c *ConsoleDecider) Decide(ctx context.Context, req *Request) (Decision, error) {
	c.banner(req)

	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		choice, err := c.prompt("Your decision [a/r/m/v]: ")
		if err != nil {
			fmt.Fprintln(c.out, "\nApproval cancelled.")
			return Decision{Status: StatusRejected, Notes: NotesCancelled}, nil
		}
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "a":
			notes, _ := c.prompt("Notes (optional, press Enter to skip): ")
			return Decision{Status: StatusApproved, Notes: strings.TrimSpace(notes)}, nil

		case "r":
			notes, _ := c.prompt("Reason for rejection: ")
			return Decision{Status: StatusRejected, Notes: strings.TrimSpace(notes)}, nil

		case "m":
			modified, err := c.modification(req)
			if err != nil {
				fmt.Fprintln(c.out, "\nApproval cancelled.")
				return Decision{Status: StatusRejected, Notes: NotesCancelled}, nil
			}
			notes, _ := c.prompt("Notes on modification: ")
			return Decision{Status: StatusModified, Notes: strings.TrimSpace(notes), Modified: modified}, nil

		case "v":
			c.details(req)

		default:
			fmt.Fprintln(c.out, "Invalid choice. Please enter 'a', 'r', 'm', or 'v'.")
		}
	}
}

func (c *ConsoleDecider) banner(req *Request) {
	bar := strings.Repeat("=", 70)
	thin := strings.Repeat("-", 70)

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, bar)
	fmt.Fprintln(c.out, "APPROVAL REQUIRED")
	fmt.Fprintln(c.out, bar)
	fmt.Fprintf(c.out, "Request ID: %s\n", req.ID)
	fmt.Fprintf(c.out, "Agent: %s\n", req.AgentID)
	fmt.Fprintf(c.out, "Action: %s\n", req.ActionType)
	fmt.Fprintf(c.out, "Risk Level: %s\n", strings.ToUpper(string(req.RiskLevel)))
	reversible := "Yes"
	if !req.Reversible {
		reversible = "NO - IRREVERSIBLE"
	}
	fmt.Fprintf(c.out, "Reversible: %s\n", reversible)
	fmt.Fprintln(c.out, thin)
	fmt.Fprintf(c.out, "Description: %s\n", req.Description)
	if req.Context != "" {
		fmt.Fprintf(c.out, "\nContext: %s\n", req.Context)
	}

	if req.Before != nil && req.After != nil {
		fmt.Fprintln(c.out, "\n--- Proposed Changes ---")
		c.printDiff(*req.Before, *req.After)
	}
	if req.ActionType == ActionTypeCommand {
		fmt.Fprintf(c.out, "\nCommand: %s\n", proposalCommand(req))
	}
	if req.ActionType != ActionTypeFileEdit && req.ActionType != ActionTypeCommand {
		fmt.Fprintf(c.out, "\nProposal: %s\n", prettyJSON(req.Proposal))
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, thin)
	fmt.Fprintln(c.out, "Options:")
	fmt.Fprintln(c.out, "  [a] Approve - Execute as proposed")
	fmt.Fprintln(c.out, "  [r] Reject  - Do not execute")
	fmt.Fprintln(c.out, "  [m] Modify  - Edit the proposal before executing")
	fmt.Fprintln(c.out, "  [v] View    - Show more details")
	fmt.Fprintln(c.out, thin)
}

func (c *ConsoleDecider) printDiff(before, after string) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "original",
		ToFile:   "proposed",
		Context:  3,
	})
	if err != nil {
		fmt.Fprintf(c.out, "(diff unavailable: %v)\n", err)
		return
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(c.out, line)
		case strings.HasPrefix(line, "+"):
			fmt.Fprint(c.out, c.colorize("\033[92m", line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprint(c.out, c.colorize("\033[91m", line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprint(c.out, c.colorize("\033[96m", line))
		default:
			fmt.Fprint(c.out, line)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *ConsoleDecider) colorize(code, line string) string {
	if !c.color {
		return line
	}
	if strings.HasSuffix(line, "\n") {
		return code + strings.TrimSuffix(line, "\n") + "\033[0m\n"
	}
	return code + line + "\033[0m"
}

func (c *ConsoleDecider) details(req *Request) {
	fmt.Fprintln(c.out, "\n--- Full Request Details ---")
	fmt.Fprintf(c.out, "Request ID: %s\n", req.ID)
	fmt.Fprintf(c.out, "Timestamp: %s\n", req.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(c.out, "Agent ID: %s\n", req.AgentID)
	fmt.Fprintf(c.out, "Action Type: %s\n", req.ActionType)
	fmt.Fprintf(c.out, "Risk Level: %s\n", req.RiskLevel)
	fmt.Fprintf(c.out, "Reversible: %t\n", req.Reversible)
	fmt.Fprintf(c.out, "Description: %s\n", req.Description)
	fmt.Fprintf(c.out, "Context: %s\n", req.Context)
	fmt.Fprintf(c.out, "Proposal: %s\n", prettyJSON(req.Proposal))
	if req.Before != nil {
		fmt.Fprintf(c.out, "\nOriginal Content Length: %d chars\n", len(*req.Before))
	}
	if req.After != nil {
		fmt.Fprintf(c.out, "Proposed Content Length: %d chars\n", len(*req.After))
	}
	fmt.Fprintln(c.out)
}

// modification collects the reviewer's replacement payload: a single line
// for commands, a body terminated by a lone "." line for file edits, one
// JSON line otherwise.
func (c *ConsoleDecider) modification(req *Request) (any, error) {
	switch req.ActionType {
	case ActionTypeCommand:
		fmt.Fprintf(c.out, "\nOriginal command: %s\n", proposalCommand(req))
		line, err := c.prompt("Enter modified command: ")
		if err != nil {
			return nil, err
		}
		return Command{Command: strings.TrimSpace(line)}, nil

	case ActionTypeFileEdit:
		fmt.Fprintln(c.out, "\nEnter replacement content, ending with a single '.' line:")
		var b strings.Builder
		for {
			line, err := c.in.ReadString('\n')
			if strings.TrimRight(line, "\r\n") == "." && (err == nil || err == io.EOF) {
				break
			}
			b.WriteString(line)
			if err != nil {
				return nil, err
			}
		}
		return FileEdit{Path: proposalPath(req), Content: b.String()}, nil

	default:
		fmt.Fprintf(c.out, "\nCurrent proposal: %s\n", prettyJSON(req.Proposal))
		line, err := c.prompt("Enter modified proposal as JSON (or 'skip' to keep original): ")
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, "skip") {
			return req.Proposal, nil
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			fmt.Fprintf(c.out, "Invalid JSON: %v\n", err)
			return req.Proposal, nil
		}
		return v, nil
	}
}

// prompt reads one line. It fails only when nothing was read, so a final
// unterminated line still counts as input.
func (c *ConsoleDecider) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

// proposalCommand extracts the command text whether the proposal is still
// typed or came back from a JSON round-trip through the review queue.
func proposalCommand(req *Request) string {
	switch p := req.Proposal.(type) {
	case Command:
		return p.Command
	case *Command:
		return p.Command
	case map[string]any:
		if s, ok := p["command"].(string); ok {
			return s
		}
	}
	return "N/A"
}

func proposalPath(req *Request) string {
	switch p := req.Proposal.(type) {
	case FileEdit:
		return p.Path
	case *FileEdit:
		return p.Path
	case map[string]any:
		if s, ok := p["file_path"].(string); ok {
			return s
		}
	}
	return ""
}

func prettyJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
