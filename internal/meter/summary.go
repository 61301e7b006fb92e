package meter

import (
	"math"
	"sync"
)

func nan() float64 {
	return math.NaN()
}

// SummarySnapshot is one consistent read of a distribution summary's
// current window.
type SummarySnapshot struct {
	Count int64
	Total float64
	Min   float64
	Max   float64
}

// DistributionSummary tracks the distribution of recorded amounts
// (payload sizes, row counts, ...) over one aggregation window. Like
// Timer, Poll drains the window.
type DistributionSummary struct {
	id   ID
	hist *histogram

	mu    sync.Mutex
	count int64
	total float64
	min   float64
	max   float64
}

func NewDistributionSummary(id ID, cfg DistributionConfig) *DistributionSummary {
	ds := &DistributionSummary{id: id}
	if cfg.enabled() {
		ds.hist = newHistogram(cfg)
	}
	return ds
}

func (ds *DistributionSummary) ID() ID {
	return ds.id
}

func (ds *DistributionSummary) Record(amount float64) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return
	}

	ds.mu.Lock()
	ds.count++
	ds.total += amount
	if ds.count == 1 || amount < ds.min {
		ds.min = amount
	}
	if amount > ds.max {
		ds.max = amount
	}
	ds.mu.Unlock()

	if ds.hist != nil {
		ds.hist.record(amount)
	}
}

// Poll returns the current window's accumulators and resets them.
func (ds *DistributionSummary) Poll() SummarySnapshot {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	snapshot := SummarySnapshot{
		Count: ds.count,
		Total: ds.total,
		Min:   ds.min,
		Max:   ds.max,
	}
	ds.count = 0
	ds.total = 0
	ds.min = 0
	ds.max = 0
	return snapshot
}

func (ds *DistributionSummary) Percentile(q float64) float64 {
	if ds.hist == nil {
		return nan()
	}
	return ds.hist.percentile(q)
}

func (ds *DistributionSummary) HasHistogram() bool {
	return ds.hist != nil
}

func (ds *DistributionSummary) Measure() []Measurement {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return []Measurement{
		{Statistic: "count", Value: float64(ds.count)},
		{Statistic: "total", Value: ds.total},
		{Statistic: "max", Value: ds.max},
	}
}
