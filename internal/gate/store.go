package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oversign/oversign/internal/identity"
)

// Store persists requests for out-of-process review. A request waits as
// pending/<id>.json until a reviewer writes decided/<id>.json; both writes
// are atomic (tmp + rename) so a watcher never observes partial JSON. The
// queue is working state only — the ledger remains the durable record.
type Store struct {
	dir string
	mu  sync.Mutex
}

// QueueDecision is the verdict file a reviewer writes under decided/.
type QueueDecision struct {
	RequestID string    `json:"request_id"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes,omitempty"`
	Modified  any       `json:"modified_proposal,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// NewStore creates a Store backed by the given directory.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"pending", "decided"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create queue directory: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default review queue directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "oversign-queue")
	}
	return filepath.Join(home, ".oversign", "queue")
}

// PendingDir returns the directory holding undecided requests.
func (s *Store) PendingDir() string { return filepath.Join(s.dir, "pending") }

// DecidedDir returns the directory reviewers write verdicts into.
func (s *Store) DecidedDir() string { return filepath.Join(s.dir, "decided") }

// Put persists a pending request. No-op if the file already exists.
func (s *Store) Put(req *Request) error {
	if err := identity.ValidateID(req.ID); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pendingPath(req.ID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeAtomic(path, req)
}

// Get loads one pending request.
func (s *Store) Get(id string) (*Request, error) {
	if err := identity.ValidateID(id); err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.pendingPath(id))
	if err != nil {
		return nil, fmt.Errorf("request %q not found: %w", id, err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("request %q corrupt: %w", id, err)
	}
	return &req, nil
}

// List returns all pending requests, oldest first.
func (s *Store) List() ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.PendingDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var requests []*Request
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.PendingDir(), e.Name()))
		if err != nil {
			continue
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		requests = append(requests, &req)
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
	return requests, nil
}

// Decide writes the reviewer's verdict for a pending request. The gate
// process watching the decided directory records the ledger entry; this
// call never touches the ledger.
func (s *Store) Decide(dec QueueDecision) error {
	if err := identity.ValidateID(dec.RequestID); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}
	if !dec.Status.Terminal() {
		return fmt.Errorf("non-terminal decision status %q", dec.Status)
	}
	if dec.DecidedAt.IsZero() {
		dec.DecidedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.pendingPath(dec.RequestID)); err != nil {
		return fmt.Errorf("request %q not pending: %w", dec.RequestID, err)
	}
	return writeAtomic(s.decidedPath(dec.RequestID), dec)
}

// ReadDecision loads the verdict for a request, or nil when none exists
// yet.
func (s *Store) ReadDecision(id string) (*QueueDecision, error) {
	if err := identity.ValidateID(id); err != nil {
		return nil, fmt.Errorf("invalid request id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.decidedPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dec QueueDecision
	if err := json.Unmarshal(data, &dec); err != nil {
		return nil, fmt.Errorf("decision %q corrupt: %w", id, err)
	}
	return &dec, nil
}

// Remove clears both queue files for a request after the gate recorded
// its decision.
func (s *Store) Remove(id string) error {
	if err := identity.ValidateID(id); err != nil {
		return fmt.Errorf("invalid request id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, path := range []string{s.pendingPath(id), s.decidedPath(id)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Cleanup removes every file in the queue.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, dir := range []string{s.PendingDir(), s.DecidedDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Store) pendingPath(id string) string {
	return filepath.Join(s.PendingDir(), id+".json")
}

func (s *Store) decidedPath(id string) string {
	return filepath.Join(s.DecidedDir(), id+".json")
}

func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
