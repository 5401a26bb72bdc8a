package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BarnBuilder412/smsync/pkg/api"
	"github.com/BarnBuilder412/smsync/pkg/config"
	"github.com/BarnBuilder412/smsync/pkg/parser"
	"github.com/BarnBuilder412/smsync/pkg/state"
	"github.com/BarnBuilder412/smsync/pkg/syncer"
)

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, t := range c.tickers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// tick fires the most recent active ticker and returns once the tick has
// been consumed.
func (c *fakeClock) tick(t *testing.T) {
	t.Helper()
	c.mu.Lock()
	var target *fakeTicker
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if !c.tickers[i].isStopped() {
			target = c.tickers[i]
			break
		}
	}
	now := c.now
	c.mu.Unlock()
	require.NotNil(t, target, "no active ticker")

	select {
	case target.ch <- now:
	case <-time.After(time.Second):
		t.Fatal("tick not consumed")
	}
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeSource struct {
	mu           sync.Mutex
	msgs         []api.RawMessage
	listCalls    int
	availableErr error
	listErr      error
}

func (f *fakeSource) Available(ctx context.Context) error { return f.availableErr }

func (f *fakeSource) ListInbox(ctx context.Context, minTimestampMs int64) ([]api.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []api.RawMessage
	for _, m := range f.msgs {
		if minTimestampMs <= 0 || m.ObservedAt >= minTimestampMs {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeGate struct {
	has     bool
	granted bool
}

func (f *fakeGate) HasPermission(ctx context.Context) bool     { return f.has }
func (f *fakeGate) RequestPermission(ctx context.Context) bool { return f.granted }

type nopLedger struct{}

func (nopLedger) BatchCreate(ctx context.Context, items []api.BatchItem) (api.BatchResult, error) {
	return api.BatchResult{CreatedCount: len(items)}, nil
}

func (nopLedger) Create(ctx context.Context, cand api.TransactionCandidate) error { return nil }

func newTestScheduler(t *testing.T, src *fakeSource, gate api.PermissionGate, st state.Store, clock *fakeClock) *Scheduler {
	t.Helper()
	p := parser.New([]string{"HDFCBK"}, []config.CategoryRule{{Keyword: "swiggy", Category: "food_delivery"}})
	sy, err := syncer.New(src, nopLedger{}, p, st, nil, syncer.Config{Now: clock.Now}, nil)
	require.NoError(t, err)

	var msgSource api.MessageSource
	if src != nil {
		msgSource = src
	}
	return New(sy, msgSource, gate, st, time.Minute, clock, nil)
}

func enabledValue(t *testing.T, st state.Store) string {
	t.Helper()
	raw, _, err := st.Get(state.KeyEnabled)
	require.NoError(t, err)
	return raw
}

func TestStartWithoutSource(t *testing.T) {
	st := state.NewMemory()
	s := newTestScheduler(t, nil, &fakeGate{has: true}, st, newFakeClock())

	err := s.Start(context.Background())
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ReasonPlatformUnsupported, serr.Reason)
	require.Equal(t, Stopped, s.State())
	require.Empty(t, enabledValue(t, st))
}

func TestStartSourceUnavailable(t *testing.T) {
	st := state.NewMemory()
	src := &fakeSource{availableErr: errors.New("store locked")}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, newFakeClock())

	err := s.Start(context.Background())
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ReasonModuleUnavailable, serr.Reason)
	require.Equal(t, Stopped, s.State())
	require.Empty(t, enabledValue(t, st))
}

func TestStartPermissionDenied(t *testing.T) {
	st := state.NewMemory()
	s := newTestScheduler(t, &fakeSource{}, &fakeGate{}, st, newFakeClock())

	err := s.Start(context.Background())
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ReasonPermissionDenied, serr.Reason)
	require.Equal(t, Stopped, s.State())
	require.Empty(t, enabledValue(t, st))
}

func TestStartFirstActivationSkipsInlineSync(t *testing.T) {
	st := state.NewMemory()
	clock := newFakeClock()
	src := &fakeSource{}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, Running, s.State())
	require.Equal(t, "true", enabledValue(t, st))
	// The baseline was just established; no inline catch-up runs.
	require.Equal(t, 0, src.calls())
	require.Equal(t, 1, clock.active())

	clock.tick(t)
	require.Eventually(t, func() bool { return src.calls() == 1 },
		time.Second, time.Millisecond)
}

func TestStartReactivationRunsInlineSync(t *testing.T) {
	st := state.NewMemory()
	clock := newFakeClock()
	src := &fakeSource{}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.Equal(t, "false", enabledValue(t, st))

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, Running, s.State())
	require.Equal(t, 1, src.calls())
}

func TestStartInitialSyncFailureStaysEnabled(t *testing.T) {
	st := state.NewMemory()
	clock := newFakeClock()
	src := &fakeSource{}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	src.listErr = errors.New("store busy")
	err := s.Start(context.Background())
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ReasonInitialSyncFailed, serr.Reason)

	// Degraded success: still enabled, timer scheduled.
	require.Equal(t, Running, s.State())
	require.Equal(t, "true", enabledValue(t, st))
	require.Equal(t, 1, clock.active())
}

func TestStartTwiceKeepsOneTimer(t *testing.T) {
	st := state.NewMemory()
	clock := newFakeClock()
	s := newTestScheduler(t, &fakeSource{}, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, clock.active())
}

func TestStopIsIdempotent(t *testing.T) {
	st := state.NewMemory()
	clock := newFakeClock()
	s := newTestScheduler(t, &fakeSource{}, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	require.Equal(t, Stopped, s.State())
	require.Equal(t, "false", enabledValue(t, st))
	require.Equal(t, 0, clock.active())
}

func TestRestoreResumesWhenEnabled(t *testing.T) {
	st := state.NewMemory()
	require.NoError(t, st.Set(state.KeyEnabled, "true"))

	clock := newFakeClock()
	s := newTestScheduler(t, &fakeSource{}, &fakeGate{has: true}, st, clock)

	require.NoError(t, s.Restore(context.Background()))
	require.Equal(t, Running, s.State())
	require.Equal(t, 1, clock.active())
}

func TestRestoreNoopWhenDisabled(t *testing.T) {
	st := state.NewMemory()
	s := newTestScheduler(t, &fakeSource{}, &fakeGate{has: true}, st, newFakeClock())

	require.NoError(t, s.Restore(context.Background()))
	require.Equal(t, Stopped, s.State())
}

func TestRestoreInitialSyncFailureStaysEnabled(t *testing.T) {
	st := state.NewMemory()
	require.NoError(t, st.SetMany(map[string]string{
		state.KeyEnabled:  "true",
		state.KeyBaseline: "true",
		state.KeyCursor:   "1700000000000",
	}))

	clock := newFakeClock()
	src := &fakeSource{listErr: errors.New("store busy")}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, clock)

	err := s.Restore(context.Background())
	var serr *StartError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ReasonInitialSyncFailed, serr.Reason)

	// Degraded but running: the flag survives and the timer retries.
	require.Equal(t, Running, s.State())
	require.Equal(t, "true", enabledValue(t, st))
	require.Equal(t, 1, clock.active())
}

func TestRestoreFailureDisables(t *testing.T) {
	st := state.NewMemory()
	require.NoError(t, st.Set(state.KeyEnabled, "true"))

	src := &fakeSource{availableErr: errors.New("store locked")}
	s := newTestScheduler(t, src, &fakeGate{has: true}, st, newFakeClock())

	require.Error(t, s.Restore(context.Background()))
	require.Equal(t, Stopped, s.State())
	require.Equal(t, "false", enabledValue(t, st))
}
