// Package api defines the core data types and boundary interfaces for smsync.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RawMessage is a single text message as returned by a message source.
// It is immutable and never persisted by this subsystem.
type RawMessage struct {
	// Sender is the short code or name the message arrived from (e.g. "HDFCBK").
	Sender string
	// Body is the full message text.
	Body string
	// ObservedAt is the device-observed arrival time in milliseconds since epoch.
	ObservedAt int64
}

// ObservedTime returns ObservedAt as a time.Time.
func (m RawMessage) ObservedTime() time.Time {
	return time.UnixMilli(m.ObservedAt)
}

// TransactionCandidate is a structured transaction extracted from a RawMessage.
// It exists only within one sync cycle; the remote ledger owns the canonical record.
type TransactionCandidate struct {
	// Amount is the transaction amount, always > 0.
	Amount decimal.Decimal
	// Merchant is the extracted merchant name; empty when no pattern matched.
	Merchant string
	// Category is the inferred expense category; "other" when nothing matched.
	Category string
	// TransactionAt is derived from the message's observed time.
	TransactionAt time.Time
	// SourceSender is the sender of the message the candidate came from.
	SourceSender string
}

// MessageSource reads raw messages from a device message store.
//
// Implementations must tolerate minTimestampMs <= 0 (full inbox scan) and
// return an empty slice, not an error, on unsupported environments.
type MessageSource interface {
	// Available reports whether the source can be used at all.
	// A non-nil error means the backing module is missing or broken.
	Available(ctx context.Context) error

	// ListInbox returns inbox messages with ObservedAt >= minTimestampMs,
	// in arrival order.
	ListInbox(ctx context.Context, minTimestampMs int64) ([]RawMessage, error)
}

// PermissionGate guards access to the message store.
type PermissionGate interface {
	HasPermission(ctx context.Context) bool
	RequestPermission(ctx context.Context) bool
}

// BatchItem is one candidate plus its dedup signature, as submitted to the
// remote ledger's batch endpoint.
type BatchItem struct {
	Candidate TransactionCandidate
	Signature string
}

// BatchResult is the remote ledger's response to a batch ingest.
type BatchResult struct {
	// CreatedCount is the number of records actually created; items the
	// server had already seen (by signature) are not counted.
	CreatedCount int
}

// Ledger is the remote ledger API consumed by the sync cycle.
//
// BatchCreate must be safe to call twice with the same signatures: the
// server deduplicates on signature in addition to the client-side cache.
type Ledger interface {
	BatchCreate(ctx context.Context, items []BatchItem) (BatchResult, error)
	// Create is the per-item fallback; it carries no signature.
	Create(ctx context.Context, cand TransactionCandidate) error
}

// Notifier receives the fire-and-forget "transactions changed" event.
// Implementations must not block the sync cycle on delivery.
type Notifier interface {
	TransactionsChanged(ctx context.Context)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) TransactionsChanged(context.Context) {}
