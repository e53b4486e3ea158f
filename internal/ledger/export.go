package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportSession writes every entry of one session to its own NDJSON file
// and returns the output path and entry count. An empty sessionID means
// the ledger's current session; an empty outputPath derives
// audit_export_<session>_<timestamp>.jsonl next to the ledger file.
// Exported entries keep their original sequence numbers and hashes, so
// each line still proves its own integrity even though the excerpt does
// not form a contiguous chain.
func (l *Ledger) ExportSession(sessionID, outputPath string) (string, int, error) {
	if sessionID == "" {
		sessionID = l.SessionID()
	}
	return ExportSessionFile(l.path, sessionID, outputPath)
}

// ExportSessionFile is ExportSession for a ledger file with no open handle.
func ExportSessionFile(path, sessionID, outputPath string) (string, int, error) {
	if sessionID == "" {
		return "", 0, fmt.Errorf("ledger: export needs a session id")
	}
	entries, err := QueryFile(path, Filter{SessionID: sessionID})
	if err != nil {
		return "", 0, err
	}

	if outputPath == "" {
		stamp := time.Now().Format("20060102_150405")
		outputPath = filepath.Join(filepath.Dir(path),
			fmt.Sprintf("audit_export_%s_%s.jsonl", sessionID, stamp))
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("ledger: create export: %w", err)
	}
	for _, e := range entries {
		line, err := encodeLine(e)
		if err != nil {
			f.Close()
			return "", 0, err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			f.Close()
			return "", 0, fmt.Errorf("ledger: write export: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("ledger: close export: %w", err)
	}
	return outputPath, len(entries), nil
}
