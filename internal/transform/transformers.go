package transform

import (
	"math"
	"time"

	"github.com/harwoodlabs/meterbridge/internal/meter"
	"github.com/harwoodlabs/meterbridge/internal/telemetry"
)

// counterSource is the shared read surface of Counter and
// FunctionCounter.
type counterSource interface {
	ID() meter.ID
	Count() float64
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// GaugeTransformer emits a gauge meter's instantaneous value. A
// non-finite reading produces no record.
type GaugeTransformer struct {
	tracker *IntervalTracker
}

func NewGaugeTransformer(tracker *IntervalTracker) *GaugeTransformer {
	return &GaugeTransformer{tracker: tracker}
}

func (t *GaugeTransformer) Transform(g *meter.Gauge) []telemetry.Metric {
	value := g.Value()
	if !finite(value) {
		return nil
	}

	id := g.ID()
	return []telemetry.Metric{
		telemetry.NewGaugeMetric(id.Name, t.tracker.Timestamp(), value, attributesFor(id)),
	}
}

// TimeGaugeTransformer normalizes a time gauge's reading to the
// registry's base time unit before emission.
type TimeGaugeTransformer struct {
	tracker  *IntervalTracker
	baseUnit time.Duration
}

func NewTimeGaugeTransformer(tracker *IntervalTracker, baseUnit time.Duration) *TimeGaugeTransformer {
	return &TimeGaugeTransformer{tracker: tracker, baseUnit: baseUnit}
}

func (t *TimeGaugeTransformer) Transform(tg *meter.TimeGauge) []telemetry.Metric {
	value := tg.Value(t.baseUnit)
	if !finite(value) {
		return nil
	}

	id := tg.ID()
	return []telemetry.Metric{
		telemetry.NewGaugeMetric(id.Name, t.tracker.Timestamp(), value, attributesFor(id)),
	}
}

// CounterTransformer emits the cumulative total of a Counter or
// FunctionCounter as a single count record. The value is reported
// as-is; converting cumulative counts into per-interval rates is the
// backend's concern.
type CounterTransformer struct {
	tracker *IntervalTracker
}

func NewCounterTransformer(tracker *IntervalTracker) *CounterTransformer {
	return &CounterTransformer{tracker: tracker}
}

func (t *CounterTransformer) Transform(c counterSource) []telemetry.Metric {
	value := c.Count()
	if !finite(value) {
		return nil
	}

	id := c.ID()
	return []telemetry.Metric{
		telemetry.NewCountMetric(id.Name, t.tracker.Timestamp(), value, attributesFor(id)),
	}
}

// TimerTransformer drains a timer's step window and emits a summary
// record (count/sum/min/max in the base time unit) plus a derived mean
// gauge when the window saw any recordings.
type TimerTransformer struct {
	tracker  *IntervalTracker
	baseUnit time.Duration
}

func NewTimerTransformer(tracker *IntervalTracker, baseUnit time.Duration) *TimerTransformer {
	return &TimerTransformer{tracker: tracker, baseUnit: baseUnit}
}

func (t *TimerTransformer) Transform(timer *meter.Timer) []telemetry.Metric {
	snapshot := timer.Poll()
	id := timer.ID()
	timestamp := t.tracker.Timestamp()

	metrics := []telemetry.Metric{
		telemetry.NewSummaryMetric(
			id.Name,
			timestamp,
			snapshot.Count,
			t.scale(snapshot.Total),
			t.scale(snapshot.Min),
			t.scale(snapshot.Max),
			attributesFor(id),
		),
	}

	if snapshot.Count > 0 {
		mean := t.scale(snapshot.Total) / float64(snapshot.Count)
		metrics = append(metrics, telemetry.NewGaugeMetric(
			id.Name+".mean", timestamp, mean, attributesFor(id),
		))
	}

	return metrics
}

func (t *TimerTransformer) scale(d time.Duration) float64 {
	return float64(d) / float64(t.baseUnit)
}

// FunctionTimerTransformer emits a function timer's cumulative count
// and total time. Function timers track no min/max.
type FunctionTimerTransformer struct {
	tracker  *IntervalTracker
	baseUnit time.Duration
}

func NewFunctionTimerTransformer(tracker *IntervalTracker, baseUnit time.Duration) *FunctionTimerTransformer {
	return &FunctionTimerTransformer{tracker: tracker, baseUnit: baseUnit}
}

func (t *FunctionTimerTransformer) Transform(ft *meter.FunctionTimer) []telemetry.Metric {
	count := ft.Count()
	total := ft.TotalTime(t.baseUnit)
	if !finite(count) || !finite(total) {
		return nil
	}

	id := ft.ID()
	timestamp := t.tracker.Timestamp()

	metrics := []telemetry.Metric{
		telemetry.NewSummaryMetric(
			id.Name, timestamp, int64(count), total, 0, 0, attributesFor(id),
		),
	}

	if count > 0 {
		metrics = append(metrics, telemetry.NewGaugeMetric(
			id.Name+".mean", timestamp, total/count, attributesFor(id),
		))
	}

	return metrics
}

// DistributionSummaryTransformer drains a summary's step window into a
// single summary record. Percentile data rides through the synthetic
// gauges installed by the HistogramCustomizer, not here.
type DistributionSummaryTransformer struct {
	tracker *IntervalTracker
}

func NewDistributionSummaryTransformer(tracker *IntervalTracker) *DistributionSummaryTransformer {
	return &DistributionSummaryTransformer{tracker: tracker}
}

func (t *DistributionSummaryTransformer) Transform(ds *meter.DistributionSummary) []telemetry.Metric {
	snapshot := ds.Poll()
	id := ds.ID()

	return []telemetry.Metric{
		telemetry.NewSummaryMetric(
			id.Name,
			t.tracker.Timestamp(),
			snapshot.Count,
			snapshot.Total,
			snapshot.Min,
			snapshot.Max,
			attributesFor(id),
		),
	}
}

// LongTaskTimerTransformer emits active-task count and duration-so-far
// gauges. Long-running tasks persist across cycles, so nothing here
// resets.
type LongTaskTimerTransformer struct {
	tracker  *IntervalTracker
	baseUnit time.Duration
}

func NewLongTaskTimerTransformer(tracker *IntervalTracker, baseUnit time.Duration) *LongTaskTimerTransformer {
	return &LongTaskTimerTransformer{tracker: tracker, baseUnit: baseUnit}
}

func (t *LongTaskTimerTransformer) Transform(ltt *meter.LongTaskTimer) []telemetry.Metric {
	snapshot := ltt.Snapshot()
	id := ltt.ID()
	timestamp := t.tracker.Timestamp()

	return []telemetry.Metric{
		telemetry.NewGaugeMetric(
			id.Name+".active_tasks", timestamp, float64(snapshot.ActiveTasks), attributesFor(id),
		),
		telemetry.NewGaugeMetric(
			id.Name+".duration",
			timestamp,
			float64(snapshot.Duration)/float64(t.baseUnit),
			attributesFor(id),
		),
	}
}

// BareMeterTransformer is the fallback for meter shapes without a
// dedicated transformer. It emits one gauge record per generic
// measurement, tagged with the measurement's statistic name, so
// unknown shapes are never silently dropped.
type BareMeterTransformer struct {
	tracker *IntervalTracker
}

func NewBareMeterTransformer(tracker *IntervalTracker) *BareMeterTransformer {
	return &BareMeterTransformer{tracker: tracker}
}

func (t *BareMeterTransformer) Transform(m meter.Meter) []telemetry.Metric {
	id := m.ID()
	timestamp := t.tracker.Timestamp()

	var metrics []telemetry.Metric
	for _, measurement := range m.Measure() {
		if !finite(measurement.Value) {
			continue
		}
		attrs := attributesFor(id)
		attrs["statistic"] = measurement.Statistic
		metrics = append(metrics, telemetry.NewGaugeMetric(
			id.Name, timestamp, measurement.Value, attrs,
		))
	}
	return metrics
}
