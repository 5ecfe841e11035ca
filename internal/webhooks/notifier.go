package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"fleetsplit/internal/metrics"
)

// Notifier posts signed event envelopes to a single configured endpoint.
type Notifier struct {
	URL         string
	Secret      string
	HTTP        *http.Client
	MaxAttempts int
	// Backoff returns the wait before retry number attempt (0-based).
	Backoff func(attempt int) time.Duration
}

func NewNotifier(url, secret string, maxAttempts int) *Notifier {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Notifier{URL: url, Secret: secret, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts, Backoff: nextBackoff}
}

// Enabled reports whether a destination is configured.
func (n *Notifier) Enabled() bool { return n != nil && n.URL != "" }

// Notify delivers eventType with data, retrying non-2xx responses and transport errors.
func (n *Notifier) Notify(ctx context.Context, eventType string, data any) error {
	if !n.Enabled() {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"id":   "evt_" + uuid.NewString(),
		"type": eventType,
		"ts":   time.Now().UTC().Format(time.RFC3339),
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", eventType, err)
	}
	var lastErr error
	for attempt := 0; attempt < n.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.Backoff(attempt - 1)):
			}
		}
		code, latency, err := n.post(ctx, eventType, body)
		status := "success"
		if err != nil || code < 200 || code >= 300 {
			status = "failure"
		}
		metrics.WebhookDeliveries.WithLabelValues(eventType, status).Inc()
		metrics.WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latency.Milliseconds()))
		if status == "success" {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d", code)
		}
		lastErr = err
		log.Printf("webhook event=%s attempt=%d err=%v", eventType, attempt+1, err)
	}
	return fmt.Errorf("webhook: %s undelivered after %d attempts: %w", eventType, n.MaxAttempts, lastErr)
}

func (n *Notifier) post(ctx context.Context, eventType string, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", eventType)
	if n.Secret != "" {
		req.Header.Set("X-Signature", SignHMAC(n.Secret, body))
	}
	start := time.Now()
	resp, err := n.HTTP.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
