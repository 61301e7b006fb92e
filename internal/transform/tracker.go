package transform

import (
	"sync"
	"time"
)

// IntervalTracker pins every read within one publish cycle to a single
// tick boundary. CycleTime is captured lazily on the first read after
// an advance and stays frozen until Tick, so all transformers in one
// cycle see the same timestamp and the same elapsed duration.
type IntervalTracker struct {
	now func() time.Time

	mu        sync.Mutex
	lastTick  time.Time
	cycleTime time.Time
}

func NewIntervalTracker(now func() time.Time) *IntervalTracker {
	if now == nil {
		now = time.Now
	}
	return &IntervalTracker{now: now, lastTick: now()}
}

// CycleTime returns the current cycle's frozen wall-clock time.
func (t *IntervalTracker) CycleTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycleTimeLocked()
}

// Timestamp returns the cycle time as epoch milliseconds, the
// timestamp carried by every record emitted in this cycle.
func (t *IntervalTracker) Timestamp() int64 {
	return t.CycleTime().UnixMilli()
}

// Elapsed returns the time between the previous tick and the current
// cycle time. Stable across repeated calls within one cycle.
func (t *IntervalTracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycleTimeLocked().Sub(t.lastTick)
}

// Tick advances the window. Called exactly once, at the end of a
// publish cycle.
func (t *IntervalTracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTick = t.cycleTimeLocked()
	t.cycleTime = time.Time{}
}

func (t *IntervalTracker) cycleTimeLocked() time.Time {
	if t.cycleTime.IsZero() {
		t.cycleTime = t.now()
	}
	return t.cycleTime
}
