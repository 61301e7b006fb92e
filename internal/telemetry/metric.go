package telemetry

import (
	"maps"
)

const (
	// GaugeMetric carries a single instantaneous value.
	GaugeMetric MetricKind = iota
	// CountMetric carries a cumulative, monotonically non-decreasing total.
	CountMetric
	// SummaryMetric carries count/sum/min/max for one aggregation window.
	SummaryMetric
)

type MetricKind int

// Attributes is a flat key -> scalar set. Values are string, bool,
// int64, or float64. Keys are unique by construction.
type Attributes map[string]any

// Metric is one immutable emission unit. Value is meaningful for gauge
// and count kinds; Count/Sum/Min/Max for the summary kind. Timestamp is
// epoch milliseconds.
type Metric struct {
	Name       string
	Kind       MetricKind
	Timestamp  int64
	Value      float64
	Count      int64
	Sum        float64
	Min        float64
	Max        float64
	Attributes Attributes
}

// MetricBatch is the unit handed to a BatchSender. CommonAttributes
// apply to every metric in the batch and must not be mutated after
// handoff.
type MetricBatch struct {
	Metrics          []Metric
	CommonAttributes Attributes
}

func NewGaugeMetric(name string, timestamp int64, value float64, attributes Attributes) Metric {
	return Metric{
		Name:       name,
		Kind:       GaugeMetric,
		Timestamp:  timestamp,
		Value:      value,
		Attributes: attributes,
	}
}

func NewCountMetric(name string, timestamp int64, value float64, attributes Attributes) Metric {
	return Metric{
		Name:       name,
		Kind:       CountMetric,
		Timestamp:  timestamp,
		Value:      value,
		Attributes: attributes,
	}
}

func NewSummaryMetric(
	name string,
	timestamp int64,
	count int64,
	sum float64,
	min float64,
	max float64,
	attributes Attributes,
) Metric {
	return Metric{
		Name:       name,
		Kind:       SummaryMetric,
		Timestamp:  timestamp,
		Count:      count,
		Sum:        sum,
		Min:        min,
		Max:        max,
		Attributes: attributes,
	}
}

func (a Attributes) Copy() Attributes {
	copied := make(Attributes, len(a))
	maps.Copy(copied, a)
	return copied
}

// Merged returns a new set with other's entries layered over a's.
func (a Attributes) Merged(other Attributes) Attributes {
	merged := a.Copy()
	maps.Copy(merged, other)
	return merged
}
