package scheduler

import "time"

// Clock abstracts wall time and periodic ticking so tests can drive the
// scheduler deterministically.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on Chan until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realClock struct{}

// NewClock returns a Clock backed by the time package.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) Chan() <-chan time.Time { return r.t.C }

func (r realTicker) Stop() { r.t.Stop() }
