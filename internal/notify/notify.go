// Package notify delivers approval decision events to external sinks.
// Delivery is best-effort: failures are logged and never block or fail
// the decision that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is the payload describing one decided request.
type Event struct {
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id"`
	AgentID    string `json:"agent_id"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
	RiskLevel  string `json:"risk_level"`
	Reversible bool   `json:"reversible"`
}

// Notifier receives decision events. Implementations must return quickly;
// slow delivery belongs in a goroutine.
type Notifier interface {
	Notify(Event)
}

// WebhookConfig defines one webhook destination. MaxAttempts and Backoff
// tune retry behavior; zero values mean the package defaults.
type WebhookConfig struct {
	URL         string            `yaml:"url"          json:"url"`
	Format      string            `yaml:"format"       json:"format"` // "generic", "slack", "pagerduty"
	Events      []string          `yaml:"events"       json:"events"` // statuses to deliver; empty matches all
	Headers     map[string]string `yaml:"headers"      json:"headers"`
	MaxAttempts int               `yaml:"max_attempts" json:"max_attempts"`
	Backoff     time.Duration     `yaml:"backoff"      json:"backoff"`
}

// Dispatcher fans out decision events to matching webhooks and an optional
// append-only events file. Webhook sends run in goroutines.
type Dispatcher struct {
	configs []WebhookConfig
	file    string
	log     *zap.Logger

	mu sync.Mutex // serializes events-file appends
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEventsFile appends every event as one JSON line to path.
func WithEventsFile(path string) Option {
	return func(d *Dispatcher) { d.file = path }
}

// WithLogger sets the logger for delivery failures.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a Dispatcher. Returns nil when no sink is
// configured; a nil Dispatcher is safe to use and does nothing.
func NewDispatcher(configs []WebhookConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{configs: configs, log: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	if len(d.configs) == 0 && d.file == "" {
		return nil
	}
	return d
}

// Notify sends the event to every webhook whose Events list matches its
// status, then appends it to the events file when one is configured.
func (d *Dispatcher) Notify(e Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if matches(cfg.Events, e.Status) {
			cfg := cfg
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), deliveryBudget(cfg))
				defer cancel()
				if err := Send(ctx, cfg, e); err != nil {
					d.log.Warn("webhook delivery failed",
						zap.String("url", cfg.URL),
						zap.String("request_id", e.RequestID),
						zap.Error(err))
				}
			}()
		}
	}
	if d.file != "" {
		if err := d.appendFile(e); err != nil {
			d.log.Warn("events file append failed",
				zap.String("path", d.file),
				zap.Error(err))
		}
	}
}

func matches(events []string, status string) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == status {
			return true
		}
	}
	return false
}

func (d *Dispatcher) appendFile(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
