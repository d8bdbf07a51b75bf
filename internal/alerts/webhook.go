package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"amble/internal/models"
)

// WebhookChannel POSTs alerts as JSON, throttled by a token bucket.
type WebhookChannel struct {
	name       string
	url        string
	headers    map[string]string
	limiter    *rate.Limiter
	httpClient *http.Client
}

type webhookPayload struct {
	Recipient string        `json:"recipient"`
	Alert     *models.Alert `json:"alert"`
}

// NewWebhookChannel creates a webhook channel. ratePerMinute ≤ 0 disables throttling.
func NewWebhookChannel(name, url string, headers map[string]string, ratePerMinute int) *WebhookChannel {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return &WebhookChannel{
		name:       name,
		url:        url,
		headers:    headers,
		limiter:    limiter,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return c.name }

// Deliver waits for a token (bounded by ctx) and posts the alert.
func (c *WebhookChannel) Deliver(ctx context.Context, recipient string, a *models.Alert) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook %s rate limited: %w", c.name, err)
	}

	body, err := json.Marshal(webhookPayload{Recipient: recipient, Alert: a})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned %d", c.name, resp.StatusCode)
	}
	return nil
}
