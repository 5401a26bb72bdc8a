// Package scheduler owns the sync lifecycle: the enabled flag, the periodic
// timer, and the activation checks that gate turning sync on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BarnBuilder412/smsync/pkg/api"
	"github.com/BarnBuilder412/smsync/pkg/config"
	"github.com/BarnBuilder412/smsync/pkg/state"
	"github.com/BarnBuilder412/smsync/pkg/syncer"
)

// State is the scheduler lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason classifies why Start failed, for callers that present the failure
// to a user.
type Reason string

const (
	// ReasonPlatformUnsupported means no message source exists on this
	// platform.
	ReasonPlatformUnsupported Reason = "platform_unsupported"
	// ReasonModuleUnavailable means the source exists but cannot be used
	// right now.
	ReasonModuleUnavailable Reason = "module_unavailable"
	// ReasonPermissionDenied means the user declined access to messages.
	ReasonPermissionDenied Reason = "permission_denied"
	// ReasonInitialSyncFailed means activation succeeded but the inline
	// first sync did not. Sync stays enabled; the timer retries.
	ReasonInitialSyncFailed Reason = "initial_sync_failed"
)

// StartError reports a failed or degraded Start with a machine-readable
// reason.
type StartError struct {
	Reason Reason
	Err    error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("start sync: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("start sync: %s", e.Reason)
}

func (e *StartError) Unwrap() error { return e.Err }

// Scheduler drives periodic sync cycles. At most one timer exists at any
// time; starting cancels any previous timer before scheduling a new one.
type Scheduler struct {
	syncer   *syncer.Syncer
	source   api.MessageSource
	gate     api.PermissionGate
	store    state.Store
	clock    Clock
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	st        State
	stopTimer func()
}

// New creates a Scheduler. source may be nil on platforms without a message
// store; Start then fails with ReasonPlatformUnsupported. interval <= 0
// falls back to config.DefaultPollInterval, clock nil to the real clock.
func New(sy *syncer.Syncer, source api.MessageSource, gate api.PermissionGate, st state.Store, interval time.Duration, clock Clock, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	if clock == nil {
		clock = NewClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		syncer:   sy,
		source:   source,
		gate:     gate,
		store:    st,
		clock:    clock,
		interval: interval,
		logger:   logger,
		st:       Stopped,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Enabled reports the persisted enabled flag.
func (s *Scheduler) Enabled() (bool, error) {
	raw, ok, err := s.store.Get(state.KeyEnabled)
	if err != nil {
		return false, err
	}
	return ok && raw == "true", nil
}

// Start turns sync on: it verifies the source and permission, persists the
// enabled flag, establishes the baseline on first activation, runs an
// inline sync on re-activation, and schedules the periodic timer.
//
// A *StartError with ReasonInitialSyncFailed is a degraded success: sync
// stays enabled and the timer keeps running. Every other error leaves the
// scheduler stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return &StartError{Reason: ReasonPlatformUnsupported}
	}
	if err := s.source.Available(ctx); err != nil {
		return &StartError{Reason: ReasonModuleUnavailable, Err: err}
	}
	if s.gate != nil && !s.gate.HasPermission(ctx) {
		if !s.gate.RequestPermission(ctx) {
			return &StartError{Reason: ReasonPermissionDenied}
		}
	}

	s.st = Starting

	if err := s.store.Set(state.KeyEnabled, "true"); err != nil {
		s.st = Stopped
		return fmt.Errorf("persisting enabled flag: %w", err)
	}

	// Double-start must not leave two timers behind.
	s.cancelTimerLocked()

	established, err := s.syncer.EnsureBaseline()
	if err != nil {
		// Without a baseline the next cycle would import the whole
		// inbox, so the activation is rolled back.
		if serr := s.store.Set(state.KeyEnabled, "false"); serr != nil {
			s.logger.Error("rolling back enabled flag failed", "error", serr)
		}
		s.st = Stopped
		return err
	}

	var startErr error
	if !established {
		// Re-activation: catch up inline so the user sees fresh data
		// immediately instead of after the first interval.
		if err := s.syncer.Cycle(ctx); err != nil {
			s.logger.Error("initial sync failed", "error", err)
			startErr = &StartError{Reason: ReasonInitialSyncFailed, Err: err}
		}
	}

	s.scheduleLocked()
	s.st = Running

	s.logger.Info("sync scheduler running", "interval", s.interval)
	return startErr
}

// Stop turns sync off, persists the disabled flag, and cancels the timer.
// Stopping an already stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Set(state.KeyEnabled, "false")
	s.cancelTimerLocked()
	if s.st != Stopped {
		s.logger.Info("sync scheduler stopped")
	}
	s.st = Stopped
	if err != nil {
		return fmt.Errorf("persisting enabled flag: %w", err)
	}
	return nil
}

// Restore resumes sync after a process restart when the persisted flag says
// it was enabled. When resuming fails the flag is forced off so the process
// does not retry a broken activation on every boot.
func (s *Scheduler) Restore(ctx context.Context) error {
	enabled, err := s.Enabled()
	if err != nil {
		return fmt.Errorf("reading enabled flag: %w", err)
	}
	if !enabled {
		return nil
	}

	err = s.Start(ctx)
	if err == nil {
		return nil
	}
	var serr *StartError
	if errors.As(err, &serr) && serr.Reason == ReasonInitialSyncFailed {
		// Degraded but running.
		return err
	}

	s.logger.Warn("restoring sync failed, disabling", "error", err)
	if serr := s.store.Set(state.KeyEnabled, "false"); serr != nil {
		s.logger.Error("disabling after failed restore failed", "error", serr)
	}
	return err
}

// scheduleLocked starts the periodic timer. Caller holds s.mu and has
// cancelled any previous timer.
func (s *Scheduler) scheduleLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := s.clock.NewTicker(s.interval)
	s.stopTimer = func() {
		ticker.Stop()
		cancel()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				// Stop cancels the timer but never aborts a cycle in
				// flight; partial results are safe to persist.
				s.runCycle(context.Background())
			}
		}
	}()
}

func (s *Scheduler) cancelTimerLocked() {
	if s.stopTimer != nil {
		s.stopTimer()
		s.stopTimer = nil
	}
}

// runCycle executes one cycle, containing errors and panics so the timer
// keeps running.
func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync cycle panicked", "panic", r)
		}
	}()
	if err := s.syncer.Cycle(ctx); err != nil {
		s.logger.Error("sync cycle failed", "error", err)
	}
}
