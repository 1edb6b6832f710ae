// Package notify delivers operator-facing alerts. Delivery is fire-and-forget
// and never blocks or fails the calling operation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier sends an operator alert. Implementations must not return errors to
// callers; alerting is best-effort.
type Notifier interface {
	Alert(ctx context.Context, subject, body string)
}

// Webhook posts alerts as JSON to a configured endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhook creates a webhook notifier. An empty URL yields a no-op notifier.
func NewWebhook(url string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type alertPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Alert posts the message; failures are logged and swallowed.
func (w *Webhook) Alert(ctx context.Context, subject, body string) {
	if w == nil || w.url == "" {
		return
	}
	payload, err := json.Marshal(alertPayload{Subject: subject, Body: body})
	if err != nil {
		w.logger.Error().Err(err).Msg("notify: encode alert failed")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Error().Err(err).Msg("notify: build alert request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Error().Err(err).Str("subject", subject).Msg("notify: alert delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Error().Int("status", resp.StatusCode).Str("subject", subject).Msg("notify: alert rejected")
	}
}

var _ Notifier = (*Webhook)(nil)
