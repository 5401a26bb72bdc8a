// Package notify delivers the fire-and-forget "transactions changed" event
// to downstream consumers.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BarnBuilder412/smsync/pkg/api"
)

const webhookTimeout = 5 * time.Second

// Webhook POSTs the event to a fixed URL. Delivery failures are logged,
// never returned: the event carries no payload and consumers re-read state
// on their own schedule anyway.
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ api.Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier targeting url.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
		logger:     logger,
	}
}

func (w *Webhook) TransactionsChanged(ctx context.Context) {
	body := strings.NewReader(`{"event":"transactions_changed"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, body)
	if err != nil {
		w.logger.Warn("building notification request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("notification delivery failed", "error", err)
		return
	}
	resp.Body.Close()

	w.logger.Debug("notification delivered", "status", resp.StatusCode)
}
