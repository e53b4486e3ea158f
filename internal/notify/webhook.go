package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Delivery defaults for configs that leave the tuning fields unset.
const (
	defaultTimeout  = 5 * time.Second
	defaultAttempts = 3
	defaultBackoff  = time.Second
)

var httpClient = &http.Client{Timeout: defaultTimeout}

// Send delivers one decision event to cfg's endpoint. Transport errors
// and 5xx responses are retried with linear backoff until the attempt
// budget runs out; a 4xx response is final, the endpoint saw the event
// and refused it. Errors name the request id so a delivery failure can
// be traced back to the decision it belongs to.
func Send(ctx context.Context, cfg WebhookConfig, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("webhook for %s: format payload: %w", event.RequestID, err)
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook for %s: %w", event.RequestID, ctx.Err())
			case <-time.After(time.Duration(attempt-1) * backoff):
			}
		}

		retry, err := post(ctx, cfg, body)
		if err == nil {
			return nil
		}
		if !retry {
			return fmt.Errorf("webhook for %s: %w", event.RequestID, err)
		}
		lastErr = err
	}
	return fmt.Errorf("webhook for %s: giving up after %d attempts: %w", event.RequestID, attempts, lastErr)
}

// post performs a single delivery attempt. retry reports whether another
// attempt could still succeed.
func post(ctx context.Context, cfg WebhookConfig, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("endpoint refused the event: HTTP %d", resp.StatusCode)
	}
}

// deliveryBudget bounds one event's delivery end to end: every attempt
// at the client timeout plus the pauses between them.
func deliveryBudget(cfg WebhookConfig) time.Duration {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	pauses := time.Duration(attempts*(attempts-1)/2) * backoff
	return time.Duration(attempts)*defaultTimeout + pauses
}
