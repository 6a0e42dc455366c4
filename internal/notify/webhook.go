package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook is a Channel that posts JSON to a URL.
type Webhook struct {
	url    string
	source string
	client *http.Client
	now    func() time.Time
}

// webhookPayload is the body posted by Webhook.
type webhookPayload struct {
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWebhook creates a webhook channel. source names the sender in payloads.
func NewWebhook(url, source string) *Webhook {
	return &Webhook{
		url:    url,
		source: source,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Notify implements Channel.
func (w *Webhook) Notify(ctx context.Context, text string) error {
	payload, err := json.Marshal(webhookPayload{
		Source:    w.source,
		Text:      text,
		Timestamp: w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", redactURLError(err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", redactURLError(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return &APIError{Method: "webhook", StatusCode: resp.StatusCode}
	}
	return nil
}
