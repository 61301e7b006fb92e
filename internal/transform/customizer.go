package transform

import (
	"strconv"
	"sync"
	"time"

	"github.com/harwoodlabs/meterbridge/internal/meter"
)

// HistogramCustomizer runs at meter-creation time. For every Timer or
// DistributionSummary with a configured histogram it registers one
// synthetic percentile gauge per configured quantile into the same
// registry. The gauges read from the parent's histogram snapshot, so
// histogram data rides through the ordinary gauge path at publish time
// with no special-casing. A side table keeps parent -> gauge bindings
// explicit.
type HistogramCustomizer struct {
	percentiles []float64
	baseUnit    time.Duration

	mu       sync.Mutex
	bindings map[string][]*meter.Gauge
}

func NewHistogramCustomizer(percentiles []float64, baseUnit time.Duration) *HistogramCustomizer {
	return &HistogramCustomizer{
		percentiles: percentiles,
		baseUnit:    baseUnit,
		bindings:    make(map[string][]*meter.Gauge),
	}
}

// Hook adapts the customizer to the registry's creation-hook surface.
func (hc *HistogramCustomizer) Hook() meter.CreationHook {
	return func(m meter.Meter, r *meter.Registry) {
		hc.RegisterHistogramGauges(m, r)
	}
}

// RegisterHistogramGauges installs the synthetic gauges for m.
// Idempotent per meter; a no-op for meters without a histogram.
func (hc *HistogramCustomizer) RegisterHistogramGauges(m meter.Meter, r *meter.Registry) {
	switch parent := m.(type) {
	case *meter.Timer:
		if !parent.HasHistogram() {
			return
		}
		hc.register(parent.ID(), r, func(q float64) float64 {
			// Histogram samples are nanoseconds; report in the base unit.
			return parent.Percentile(q) / float64(hc.baseUnit)
		})
	case *meter.DistributionSummary:
		if !parent.HasHistogram() {
			return
		}
		hc.register(parent.ID(), r, parent.Percentile)
	}
}

// Bindings returns the synthetic gauges registered for the given
// parent meter, if any.
func (hc *HistogramCustomizer) Bindings(parent meter.Meter) []*meter.Gauge {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.bindings[parent.ID().Key()]
}

func (hc *HistogramCustomizer) register(parentID meter.ID, r *meter.Registry, percentileFn func(float64) float64) {
	key := parentID.Key()

	hc.mu.Lock()
	if _, ok := hc.bindings[key]; ok {
		hc.mu.Unlock()
		return
	}
	// Reserve the slot before registering so a concurrent duplicate
	// registration stays a no-op.
	hc.bindings[key] = nil
	hc.mu.Unlock()

	gauges := make([]*meter.Gauge, 0, len(hc.percentiles))
	for _, q := range hc.percentiles {
		quantile := q
		id := meter.NewID(
			parentID.Name+".percentiles",
			append(parentID.Tags, meter.NewTag("percentile", formatQuantile(quantile)))...,
		)
		gauge, err := r.Gauge(id, func() float64 {
			return percentileFn(quantile)
		})
		if err != nil {
			continue
		}
		gauges = append(gauges, gauge)
	}

	hc.mu.Lock()
	hc.bindings[key] = gauges
	hc.mu.Unlock()
}

func formatQuantile(q float64) string {
	return strconv.FormatFloat(q, 'g', -1, 64)
}
