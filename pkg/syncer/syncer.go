// Package syncer implements the sync cycle: fetch messages since the
// cursor, parse candidates, filter already-seen signatures, upload the rest
// to the remote ledger, and persist the advanced state.
//
// The dedup cache and the cursor are mutated only after a network call's
// result is known, never speculatively: an un-synced candidate is never
// lost, a synced one is never counted twice.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BarnBuilder412/smsync/pkg/api"
	"github.com/BarnBuilder412/smsync/pkg/config"
	"github.com/BarnBuilder412/smsync/pkg/dedup"
	"github.com/BarnBuilder412/smsync/pkg/parser"
	"github.com/BarnBuilder412/smsync/pkg/state"
)

// Config holds tuning knobs for the sync cycle.
type Config struct {
	// OverlapMargin is subtracted from the cursor when querying the source,
	// to tolerate delayed message delivery. The dedup cache absorbs the
	// resulting re-observation. Defaults to config.DefaultOverlapMargin.
	OverlapMargin time.Duration
	// DedupCap bounds the signature cache. Defaults to config.DefaultDedupCap.
	DedupCap int
	// Now is the wall clock, injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Syncer owns the persisted sync state (cursor, baseline marker, dedup
// cache). No other component mutates those keys.
type Syncer struct {
	source   api.MessageSource
	ledger   api.Ledger
	parser   *parser.Parser
	store    state.Store
	notifier api.Notifier
	logger   *slog.Logger

	overlap time.Duration
	now     func() time.Time

	// mu guarantees at most one cycle in flight; a second caller skips
	// instead of racing on the cache and cursor.
	mu    sync.Mutex
	cache *dedup.Store
}

// New creates a Syncer and loads the persisted dedup cache.
func New(source api.MessageSource, ledger api.Ledger, p *parser.Parser, st state.Store, notifier api.Notifier, cfg Config, logger *slog.Logger) (*Syncer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = api.NopNotifier{}
	}
	if cfg.OverlapMargin <= 0 {
		cfg.OverlapMargin = config.DefaultOverlapMargin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cache, err := dedup.Load(st, cfg.DedupCap)
	if err != nil {
		return nil, fmt.Errorf("loading dedup cache: %w", err)
	}

	return &Syncer{
		source:   source,
		ledger:   ledger,
		parser:   p,
		store:    st,
		notifier: notifier,
		logger:   logger,
		overlap:  cfg.OverlapMargin,
		now:      cfg.Now,
		cache:    cache,
	}, nil
}

// EnsureBaseline fast-forwards the cursor to "now" on first activation, so
// a user's historical inbox is never bulk-imported. The marker and the
// cursor are written atomically. Returns true when the baseline was just
// established by this call; all later calls are no-ops returning false.
func (s *Syncer) EnsureBaseline() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.baselineSet() && s.cursor() > 0 {
		return false, nil
	}

	now := s.now().UnixMilli()
	err := s.store.SetMany(map[string]string{
		state.KeyBaseline: "true",
		state.KeyCursor:   strconv.FormatInt(now, 10),
	})
	if err != nil {
		return false, fmt.Errorf("establishing baseline: %w", err)
	}

	s.logger.Info("baseline established", "cursor", now)
	return true, nil
}

// Cycle runs one sync pass to completion. When a cycle is already in
// flight, the call returns immediately without doing work.
func (s *Syncer) Cycle(ctx context.Context) error {
	if !s.mu.TryLock() {
		s.logger.Debug("sync cycle already in flight, skipping")
		return nil
	}
	defer s.mu.Unlock()

	cursor := s.cursor()
	minTs := cursor - s.overlap.Milliseconds()
	if minTs < 0 {
		minTs = 0
	}

	msgs, err := s.source.ListInbox(ctx, minTs)
	if err != nil {
		return fmt.Errorf("listing inbox: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	var pending []api.BatchItem
	var maxSeen, maxSkipped int64
	for _, msg := range msgs {
		if msg.ObservedAt > maxSeen {
			maxSeen = msg.ObservedAt
		}

		cand := s.parser.Parse(msg)
		if cand == nil {
			// Permanently unparseable: the cursor advances past it.
			if msg.ObservedAt > maxSkipped {
				maxSkipped = msg.ObservedAt
			}
			continue
		}

		sig := dedup.Signature(msg, *cand)
		if s.cache.Contains(sig) {
			if msg.ObservedAt > maxSkipped {
				maxSkipped = msg.ObservedAt
			}
			continue
		}

		pending = append(pending, api.BatchItem{Candidate: *cand, Signature: sig})
	}

	if len(pending) == 0 {
		return s.persistCursor(cursor, maxSeen)
	}

	s.logger.Info("uploading candidates", "pending", len(pending), "fetched", len(msgs))

	result, err := s.ledger.BatchCreate(ctx, pending)
	if err == nil {
		for _, item := range pending {
			s.cache.Insert(item.Signature)
		}
		if err := s.persistCacheAndCursor(cursor, maxSeen); err != nil {
			return err
		}
		if result.CreatedCount > 0 {
			s.notifier.TransactionsChanged(ctx)
		}
		return nil
	}

	s.logger.Warn("batch ingest failed, falling back to per-item creates",
		"pending", len(pending), "error", err)
	return s.fallback(ctx, pending, cursor, maxSeen, maxSkipped)
}

// fallback uploads pending candidates one by one. Each success records that
// signature; each failure is skipped and retried naturally on a later cycle
// because its signature was never recorded.
func (s *Syncer) fallback(ctx context.Context, pending []api.BatchItem, cursor, maxSeen, maxSkipped int64) error {
	var succeeded int
	for _, item := range pending {
		if err := s.ledger.Create(ctx, item.Candidate); err != nil {
			s.logger.Warn("fallback create failed",
				"signature", item.Signature, "error", err)
			continue
		}
		s.cache.Insert(item.Signature)
		succeeded++
	}

	if succeeded > 0 {
		if err := s.persistCacheAndCursor(cursor, maxSeen); err != nil {
			return err
		}
		s.notifier.TransactionsChanged(ctx)
		return nil
	}

	// Nothing made it through; keep the cursor behind the failed
	// candidates so the next cycle retries them, advancing only over
	// messages that produced no pending work.
	return s.persistCursor(cursor, maxSkipped)
}

// CacheLen returns the number of cached signatures.
func (s *Syncer) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Cursor returns the persisted cursor, 0 when absent or malformed.
func (s *Syncer) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor()
}

func (s *Syncer) cursor() int64 {
	raw, ok, err := s.store.Get(state.KeyCursor)
	if err != nil || !ok {
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		// Malformed persisted state is treated as absence of state.
		return 0
	}
	return cursor
}

func (s *Syncer) baselineSet() bool {
	raw, ok, err := s.store.Get(state.KeyBaseline)
	return err == nil && ok && raw == "true"
}

// persistCursor advances the cursor to candidate if that is ahead of the
// current value. The cursor is monotonically non-decreasing.
func (s *Syncer) persistCursor(cursor, candidate int64) error {
	if candidate <= cursor {
		return nil
	}
	if err := s.store.Set(state.KeyCursor, strconv.FormatInt(candidate, 10)); err != nil {
		return fmt.Errorf("persisting cursor: %w", err)
	}
	return nil
}

// persistCacheAndCursor writes the dedup cache and the advanced cursor as
// one atomic unit.
func (s *Syncer) persistCacheAndCursor(cursor, candidate int64) error {
	encoded, err := s.cache.Encode()
	if err != nil {
		return err
	}

	next := cursor
	if candidate > next {
		next = candidate
	}
	err = s.store.SetMany(map[string]string{
		state.KeyDedupCache: encoded,
		state.KeyCursor:     strconv.FormatInt(next, 10),
	})
	if err != nil {
		return fmt.Errorf("persisting sync state: %w", err)
	}
	return nil
}
