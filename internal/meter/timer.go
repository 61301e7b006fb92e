package meter

import (
	"sync"
	"time"
)

// TimerSnapshot is one consistent read of a timer's current window.
type TimerSnapshot struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Timer accumulates duration recordings over one aggregation window.
// Poll drains the window: the caller receives a consistent snapshot
// and the accumulators reset for the next step. The percentile
// histogram, when configured, spans windows.
type Timer struct {
	id   ID
	hist *histogram

	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func NewTimer(id ID, cfg DistributionConfig) *Timer {
	t := &Timer{id: id}
	if cfg.enabled() {
		t.hist = newHistogram(cfg)
	}
	return t
}

func (t *Timer) ID() ID {
	return t.id
}

func (t *Timer) Record(d time.Duration) {
	if d < 0 {
		return
	}

	t.mu.Lock()
	t.count++
	t.total += d
	if t.count == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.mu.Unlock()

	if t.hist != nil {
		t.hist.record(float64(d))
	}
}

// Time runs fn and records its wall-clock duration.
func (t *Timer) Time(fn func()) {
	start := time.Now()
	fn()
	t.Record(time.Since(start))
}

// Poll returns the current window's accumulators and resets them.
func (t *Timer) Poll() TimerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := TimerSnapshot{
		Count: t.count,
		Total: t.total,
		Min:   t.min,
		Max:   t.max,
	}
	t.count = 0
	t.total = 0
	t.min = 0
	t.max = 0
	return snapshot
}

// Percentile reads the q-quantile duration from the histogram, or NaN
// when the timer has no histogram or no samples.
func (t *Timer) Percentile(q float64) float64 {
	if t.hist == nil {
		return nan()
	}
	return t.hist.percentile(q)
}

func (t *Timer) HasHistogram() bool {
	return t.hist != nil
}

func (t *Timer) Measure() []Measurement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return []Measurement{
		{Statistic: "count", Value: float64(t.count)},
		{Statistic: "total_time", Value: float64(t.total)},
		{Statistic: "max", Value: float64(t.max)},
	}
}

// FunctionTimer reads cumulative count and total time from
// user-supplied functions over a monitored object. Totals are expected
// to be monotonic; nothing resets between cycles.
type FunctionTimer struct {
	id         ID
	countFn    func() float64
	totalFn    func() float64
	sourceUnit time.Duration
}

func NewFunctionTimer(
	id ID,
	sourceUnit time.Duration,
	countFn func() float64,
	totalFn func() float64,
) *FunctionTimer {
	return &FunctionTimer{
		id:         id,
		countFn:    countFn,
		totalFn:    totalFn,
		sourceUnit: sourceUnit,
	}
}

func (ft *FunctionTimer) ID() ID {
	return ft.id
}

func (ft *FunctionTimer) Count() float64 {
	return ft.countFn()
}

// TotalTime converts the cumulative total to the requested unit.
func (ft *FunctionTimer) TotalTime(unit time.Duration) float64 {
	return ft.totalFn() * float64(ft.sourceUnit) / float64(unit)
}

func (ft *FunctionTimer) Measure() []Measurement {
	return []Measurement{
		{Statistic: "count", Value: ft.Count()},
		{Statistic: "total_time", Value: ft.totalFn()},
	}
}
