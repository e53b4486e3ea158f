// Package ledger implements an append-only, tamper-evident audit trail.
// Entries are newline-delimited JSON records chained by SHA-256: each entry
// embeds the hash of its predecessor and a hash of its own canonical
// serialization, so an auditor holding only the file can prove that nothing
// was altered, inserted, or removed after the fact.
package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oversign/oversign/internal/identity"
)

// maxLineBytes bounds a single NDJSON line during scans. Proposal payloads
// can carry whole file contents, so the default bufio token limit is far
// too small.
const maxLineBytes = 16 << 20

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("ledger: closed")

// Ledger is an append-only NDJSON store of hash-chained entries. One Ledger
// owns one backing file: sequence assignment and previous-hash chaining are
// serialized under a mutex, since two appends racing on the last known hash
// would fork the chain. Reads re-scan the file and may run concurrently
// with appends; they observe only flushed lines.
type Ledger struct {
	path      string
	sessionID string

	mu       sync.Mutex
	file     *os.File
	lastSeq  int
	lastHash string
	lastTime time.Time
}

// Option configures a Ledger at open time.
type Option func(*config)

type config struct {
	sessionID string
}

// WithSessionID supplies an external session identifier instead of a
// generated one. The session is fixed for the Ledger's lifetime.
func WithSessionID(id string) Option {
	return func(c *config) { c.sessionID = id }
}

// Open creates or resumes the ledger at path. An existing log is fully
// verified before the first append is allowed: a chain that fails
// verification refuses to initialize rather than extend a compromised
// history. On resume the last sequence number and entry hash are recovered
// so new entries continue the same chain.
func Open(path string, opts ...Option) (*Ledger, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = identity.NewSessionID()
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}

	l := &Ledger{path: path, sessionID: cfg.sessionID}

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		report, err := VerifyFile(path)
		if err != nil {
			return nil, err
		}
		if !report.Valid {
			return nil, &ChainError{Path: path, Report: report}
		}
		if err := l.loadChainState(); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("ledger: open file: %w", err)
	}
	l.file = file
	return l, nil
}

// loadChainState reads the final line to recover the chain tail.
func (l *Ledger) loadChainState() error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("ledger: read existing log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lastLine []byte
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		lastLine = append(lastLine[:0], scanner.Bytes()...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ledger: scan existing log: %w", err)
	}
	if len(lastLine) == 0 {
		return nil
	}

	var last Entry
	if err := json.Unmarshal(lastLine, &last); err != nil {
		return fmt.Errorf("ledger: parse last entry: %w", err)
	}
	l.lastSeq = last.SequenceNum
	l.lastHash = last.EntryHash
	if ts, err := last.Time(); err == nil {
		l.lastTime = ts
	}
	return nil
}

// Append records one event. This is the sole mutation: it assigns the next
// sequence number, stamps a non-decreasing UTC timestamp, chains the entry
// to the last known hash, seals it, writes one line, and syncs to disk.
// Write errors propagate to the caller unretried — a silently repeated
// append could skip or duplicate a sequence number, which is itself a
// compliance violation.
func (l *Ledger) Append(rec Record) (Entry, error) {
	if !rec.Action.Valid() {
		return Entry{}, fmt.Errorf("ledger: unknown action %q", rec.Action)
	}

	input, err := payloadString(rec.Input)
	if err != nil {
		return Entry{}, err
	}
	output, err := payloadString(rec.Output)
	if err != nil {
		return Entry{}, err
	}

	success := true
	if rec.Success != nil {
		success = *rec.Success
	}
	var durationMS *int64
	if rec.Duration > 0 {
		ms := rec.Duration.Milliseconds()
		durationMS = &ms
	}
	var errMsg *string
	if rec.Err != nil {
		errMsg = optString(rec.Err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return Entry{}, ErrClosed
	}

	// Timestamps never run backwards within one store, even if the wall
	// clock steps back between appends.
	now := time.Now().UTC()
	if now.Before(l.lastTime) {
		now = l.lastTime
	}

	unsealed := Entry{
		Timestamp:    now.Format(TimestampFormat),
		Action:       rec.Action,
		AgentID:      rec.AgentID,
		SessionID:    l.sessionID,
		SequenceNum:  l.lastSeq + 1,
		InputData:    input,
		OutputData:   output,
		Reasoning:    optString(rec.Reasoning),
		PreviousHash: l.lastHash,
		ModelName:    optString(rec.ModelName),
		DurationMS:   durationMS,
		Success:      success,
		ErrorMessage: errMsg,
	}

	sealed, err := seal(unsealed)
	if err != nil {
		return Entry{}, err
	}

	line, err := encodeLine(sealed)
	if err != nil {
		return Entry{}, err
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("ledger: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("ledger: sync: %w", err)
	}

	l.lastSeq = sealed.SequenceNum
	l.lastHash = sealed.EntryHash
	l.lastTime = now
	return sealed, nil
}

// SessionID returns the session assigned to this ledger instance.
func (l *Ledger) SessionID() string { return l.sessionID }

// Path returns the backing file path.
func (l *Ledger) Path() string { return l.path }

// LastSequence returns the sequence number of the most recent entry.
func (l *Ledger) LastSequence() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Close flushes and closes the backing file. Subsequent appends fail with
// ErrClosed.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
