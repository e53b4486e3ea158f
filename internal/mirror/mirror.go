// Package mirror builds a SQLite read-side index of a ledger file for
// auditor ad-hoc SQL. The mirror is derived, disposable data: it is never
// a write path, every Build starts from scratch, and a ledger that fails
// chain verification is refused outright.
package mirror

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/oversign/oversign/internal/ledger"
)

const schema = `
DROP TABLE IF EXISTS entries;
CREATE TABLE entries (
	sequence_num  INTEGER PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	action        TEXT NOT NULL,
	agent_id      TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	success       INTEGER NOT NULL,
	duration_ms   INTEGER,
	previous_hash TEXT NOT NULL,
	entry_hash    TEXT NOT NULL,
	raw           TEXT NOT NULL
);
CREATE INDEX idx_entries_session ON entries(session_id);
CREATE INDEX idx_entries_agent   ON entries(agent_id);
CREATE INDEX idx_entries_action  ON entries(action);
`

// Open opens (or creates) a mirror database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror db: %w", err)
	}
	return db, nil
}

// Build verifies the ledger at ledgerPath and indexes every entry into a
// fresh entries table at dbPath. Returns the number of rows written. A
// ledger with violations yields a *ledger.ChainError and no mirror.
func Build(ctx context.Context, ledgerPath, dbPath string) (int, error) {
	report, err := ledger.VerifyFile(ledgerPath)
	if err != nil {
		return 0, err
	}
	if !report.Valid {
		return 0, &ledger.ChainError{Path: ledgerPath, Report: report}
	}

	entries, err := ledger.QueryFile(ledgerPath, ledger.Filter{})
	if err != nil {
		return 0, err
	}

	db, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return 0, fmt.Errorf("failed to create mirror schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin mirror tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (
			sequence_num, timestamp, action, agent_id, session_id,
			success, duration_ms, previous_hash, entry_hash, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		raw, err := e.MarshalLine()
		if err != nil {
			return 0, err
		}
		success := 0
		if e.Success {
			success = 1
		}
		if _, err := stmt.ExecContext(ctx,
			e.SequenceNum, e.Timestamp, string(e.Action), e.AgentID, e.SessionID,
			success, e.DurationMS, e.PreviousHash, e.EntryHash, string(raw),
		); err != nil {
			return 0, fmt.Errorf("failed to index sequence %d: %w", e.SequenceNum, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mirror: %w", err)
	}
	return len(entries), nil
}

// ActionCounts tallies entries per action, optionally scoped to one
// session. Empty sessionID counts everything.
func ActionCounts(ctx context.Context, db *sql.DB, sessionID string) (map[string]int, error) {
	return counts(ctx, db, "action", sessionID)
}

// AgentCounts tallies entries per agent, optionally scoped to one
// session.
func AgentCounts(ctx context.Context, db *sql.DB, sessionID string) (map[string]int, error) {
	return counts(ctx, db, "agent_id", sessionID)
}

func counts(ctx context.Context, db *sql.DB, column, sessionID string) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM entries GROUP BY %s`, column, column)
	args := []any{}
	if sessionID != "" {
		query = fmt.Sprintf(`SELECT %s, COUNT(*) FROM entries WHERE session_id = ? GROUP BY %s`, column, column)
		args = append(args, sessionID)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}
