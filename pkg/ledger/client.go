// Package ledger implements the remote ledger API client: batch ingest with
// a single-create fallback.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/BarnBuilder412/smsync/pkg/api"
)

const (
	defaultTimeout = 30 * time.Second
	batchPath      = "/api/v1/transactions/batch"
	createPath     = "/api/v1/transactions"

	// batchAttempts bounds retries within one cycle; the next poll retries
	// anything still missing.
	batchAttempts = 2
	retryDelay    = 2 * time.Second
)

// StatusError is returned for non-2xx ledger responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger returned status %d: %s", e.Code, e.Body)
}

// retryable reports whether a request is worth repeating within this cycle.
// Client errors other than rate limiting are not.
func retryable(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	// Transport-level failure.
	return true
}

// Config holds configuration for the ledger client.
type Config struct {
	// BaseURL is the remote ledger's base URL, without trailing slash.
	BaseURL string
	// Token is the bearer token attached to every request.
	Token string
	// Timeout bounds each HTTP round trip. Defaults to 30s.
	Timeout time.Duration
}

// Client talks to the remote ledger.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

var _ api.Ledger = (*Client)(nil)

// New creates a ledger client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// wireTransaction is the JSON shape both endpoints accept.
type wireTransaction struct {
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Merchant      string     `json:"merchant,omitempty"`
	Category      string     `json:"category,omitempty"`
	Source        string     `json:"source"`
	TransactionAt *time.Time `json:"transaction_at,omitempty"`
	SourceSender  string     `json:"source_sender,omitempty"`
	Signature     string     `json:"signature,omitempty"`
}

func toWire(cand api.TransactionCandidate, signature string) wireTransaction {
	w := wireTransaction{
		Amount:       cand.Amount.StringFixed(2),
		Currency:     "INR",
		Merchant:     cand.Merchant,
		Category:     cand.Category,
		Source:       "sms",
		SourceSender: cand.SourceSender,
		Signature:    signature,
	}
	if !cand.TransactionAt.IsZero() {
		at := cand.TransactionAt.UTC()
		w.TransactionAt = &at
	}
	return w
}

type batchRequest struct {
	Transactions []wireTransaction `json:"transactions"`
}

type batchResponse struct {
	CreatedCount int `json:"created_count"`
}

// BatchCreate uploads all items in one call. The server deduplicates on
// signature, so repeating a batch is safe. Transient failures (transport,
// 429, 5xx) are retried once before the caller falls back to per-item
// creates.
func (c *Client) BatchCreate(ctx context.Context, items []api.BatchItem) (api.BatchResult, error) {
	payload := batchRequest{Transactions: make([]wireTransaction, 0, len(items))}
	for _, item := range items {
		payload.Transactions = append(payload.Transactions, toWire(item.Candidate, item.Signature))
	}

	var result batchResponse
	err := retry.Do(
		func() error {
			return c.post(ctx, batchPath, payload, &result)
		},
		retry.RetryIf(retryable),
		retry.Attempts(batchAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return api.BatchResult{}, fmt.Errorf("batch ingest of %d items: %w", len(items), err)
	}

	return api.BatchResult{CreatedCount: result.CreatedCount}, nil
}

// Create submits a single candidate without a signature. Fallback path only;
// no retry here, the next poll cycle covers it.
func (c *Client) Create(ctx context.Context, cand api.TransactionCandidate) error {
	if err := c.post(ctx, createPath, toWire(cand, ""), nil); err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
