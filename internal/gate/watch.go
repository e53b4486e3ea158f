package gate

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// pollDefault bounds how long a missed filesystem event can delay a
// decision.
const pollDefault = 2 * time.Second

// QueueDecider reviews requests out of process. Decide persists the
// request to the queue store and blocks until a reviewer in another
// process (oversign pending / approve / deny / review) writes the
// decision file. The fsnotify watcher delivers verdicts promptly; the
// polling fallback means a missed event can only delay a decision, never
// lose it.
type QueueDecider struct {
	store *Store
	poll  time.Duration
	log   *zap.Logger
}

// QueueOption configures a QueueDecider.
type QueueOption func(*QueueDecider)

// WithPollInterval overrides the polling fallback interval.
func WithPollInterval(d time.Duration) QueueOption {
	return func(q *QueueDecider) { q.poll = d }
}

// WithQueueLogger sets the logger for watch diagnostics.
func WithQueueLogger(log *zap.Logger) QueueOption {
	return func(q *QueueDecider) { q.log = log }
}

// NewQueueDecider builds a decider over the given queue store.
func NewQueueDecider(store *Store, opts ...QueueOption) *QueueDecider {
	q := &QueueDecider{store: store, poll: pollDefault, log: zap.NewNop()}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *QueueDecider) Decide(ctx context.Context, req *Request) (Decision, error) {
	if err := q.store.Put(req); err != nil {
		return Decision{}, err
	}

	q.log.Info("request queued for review",
		zap.String("request_id", req.ID),
		zap.String("agent_id", req.AgentID),
		zap.String("action_type", req.ActionType),
		zap.String("risk_level", string(req.RiskLevel)))

	dec, err := q.await(ctx, req.ID)
	if err != nil {
		return Decision{}, err
	}

	// The queue files served their purpose; the ledger entry the gate is
	// about to write is the durable record.
	if err := q.store.Remove(req.ID); err != nil {
		q.log.Warn("queue cleanup failed",
			zap.String("request_id", req.ID),
			zap.Error(err))
	}

	q.log.Info("decision received",
		zap.String("request_id", req.ID),
		zap.String("status", string(dec.Status)),
		zap.String("decided_by", dec.DecidedBy))

	return Decision{Status: dec.Status, Notes: dec.Notes, Modified: dec.Modified}, nil
}

func (q *QueueDecider) await(ctx context.Context, id string) (*QueueDecision, error) {
	var events chan fsnotify.Event
	var werrs chan error

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		q.log.Warn("fsnotify unavailable, polling only", zap.Error(err))
	} else {
		defer watcher.Close()
		if err := watcher.Add(q.store.DecidedDir()); err != nil {
			q.log.Warn("watch failed, polling only",
				zap.String("dir", q.store.DecidedDir()),
				zap.Error(err))
		} else {
			events = watcher.Events
			werrs = watcher.Errors
		}
	}

	// The reviewer may have ruled before the watch began.
	if dec, err := q.store.ReadDecision(id); err != nil {
		return nil, err
	} else if dec != nil {
		return dec, nil
	}

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Create) || decisionID(ev.Name) != id {
				continue
			}
			if dec, err := q.store.ReadDecision(id); err == nil && dec != nil {
				return dec, nil
			}

		case err, ok := <-werrs:
			if !ok {
				werrs = nil
				continue
			}
			q.log.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			if dec, err := q.store.ReadDecision(id); err == nil && dec != nil {
				return dec, nil
			}
		}
	}
}

// decisionID extracts the request id from a decision file path, ignoring
// .tmp partial writes.
func decisionID(path string) string {
	name := filepath.Base(path)
	if strings.HasSuffix(name, ".tmp") || !strings.HasSuffix(name, ".json") {
		return ""
	}
	return strings.TrimSuffix(name, ".json")
}
