package meter

import (
	"math"
	"sync/atomic"
)

// Counter accumulates a monotonically non-decreasing total. Negative
// and non-finite increments are ignored.
type Counter struct {
	id   ID
	bits atomic.Uint64
}

func NewCounter(id ID) *Counter {
	return &Counter{id: id}
}

func (c *Counter) ID() ID {
	return c.id
}

func (c *Counter) Increment() {
	c.Add(1)
}

func (c *Counter) Add(delta float64) {
	if delta <= 0 || math.IsNaN(delta) || math.IsInf(delta, 1) {
		return
	}

	for {
		old := c.bits.Load()
		updated := math.Float64bits(math.Float64frombits(old) + delta)
		if c.bits.CompareAndSwap(old, updated) {
			return
		}
	}
}

func (c *Counter) Count() float64 {
	return math.Float64frombits(c.bits.Load())
}

func (c *Counter) Measure() []Measurement {
	return []Measurement{{Statistic: "count", Value: c.Count()}}
}

// FunctionCounter reads its cumulative total from a user-supplied
// function over a monitored object. The function is expected to be
// monotonic; the publish path reads it at most once per cycle.
type FunctionCounter struct {
	id      ID
	countFn func() float64
}

func NewFunctionCounter(id ID, countFn func() float64) *FunctionCounter {
	return &FunctionCounter{id: id, countFn: countFn}
}

func (fc *FunctionCounter) ID() ID {
	return fc.id
}

func (fc *FunctionCounter) Count() float64 {
	return fc.countFn()
}

func (fc *FunctionCounter) Measure() []Measurement {
	return []Measurement{{Statistic: "count", Value: fc.Count()}}
}
