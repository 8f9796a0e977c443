// Package feeder talks to the WiFi fish feeder module.
package feeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const requestTimeout = 10 * time.Second

// WebhookTrigger posts feed requests to the feeder module's HTTP
// endpoint.
type WebhookTrigger struct {
	url    string
	client *http.Client
}

func NewWebhookTrigger(url string) *WebhookTrigger {
	return &WebhookTrigger{
		url:    url,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type feedRequest struct {
	Target string `json:"target"`
	Method string `json:"method,omitempty"`
}

// Feed asks the feeder module to dispense once.
func (t *WebhookTrigger) Feed(ctx context.Context, target, method string) error {
	if t.url == "" {
		return fmt.Errorf("feeder webhook url not configured")
	}
	body, err := json.Marshal(feedRequest{Target: target, Method: method})
	if err != nil {
		return fmt.Errorf("encode feed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("feeder webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("feeder webhook: unexpected status %s", resp.Status)
	}
	return nil
}
