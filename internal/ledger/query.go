package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries during a query. Zero-value fields match
// everything. Since and Until compare against the entry timestamp,
// inclusive on both ends.
type Filter struct {
	SessionID string
	AgentID   string
	Action    Action
	Since     time.Time
	Until     time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		ts, err := e.Time()
		if err != nil {
			return false
		}
		if !f.Since.IsZero() && ts.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && ts.After(f.Until) {
			return false
		}
	}
	return true
}

// Query returns the entries in this ledger's file matching the filter,
// in file order.
func (l *Ledger) Query(f Filter) ([]Entry, error) {
	return QueryFile(l.path, f)
}

// QueryFile scans an NDJSON ledger file and returns matching entries.
// Unparseable lines are skipped; queries are a read path, and integrity
// complaints belong to VerifyFile.
func QueryFile(path string, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open for query: %w", err)
	}
	defer file.Close()

	var out []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		if f.matches(e) {
			out = append(out, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan for query: %w", err)
	}
	return out, nil
}

// TailFile returns the last n parseable entries of a ledger file in
// file order. n <= 0 returns nil.
func TailFile(path string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	entries, err := QueryFile(path, Filter{})
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
