package transform

import (
	"testing"
	"time"

	"github.com/harwoodlabs/meterbridge/internal/meter"
)

func TestHistogramCustomizer(t *testing.T) {
	t.Run("registers one gauge per percentile", func(t *testing.T) {
		registry := meter.NewRegistry()
		customizer := NewHistogramCustomizer([]float64{0.5, 0.95}, time.Millisecond)

		timer := meter.NewTimer(
			meter.NewID("request.duration"),
			meter.DistributionConfig{Percentiles: []float64{0.5, 0.95}},
		)
		registry.Register(timer)
		customizer.RegisterHistogramGauges(timer, registry)

		bindings := customizer.Bindings(timer)
		if len(bindings) != 2 {
			t.Fatalf("expected 2 synthetic gauges, got %d", len(bindings))
		}

		// Parent + two synthetic gauges live in the registry.
		if len(registry.Meters()) != 3 {
			t.Errorf("expected 3 registered meters, got %d", len(registry.Meters()))
		}
	})

	t.Run("idempotent per meter", func(t *testing.T) {
		registry := meter.NewRegistry()
		customizer := NewHistogramCustomizer([]float64{0.5}, time.Millisecond)

		timer := meter.NewTimer(
			meter.NewID("t"),
			meter.DistributionConfig{Percentiles: []float64{0.5}},
		)
		registry.Register(timer)
		customizer.RegisterHistogramGauges(timer, registry)
		customizer.RegisterHistogramGauges(timer, registry)

		if len(customizer.Bindings(timer)) != 1 {
			t.Errorf("expected one binding after duplicate registration")
		}
		if len(registry.Meters()) != 2 {
			t.Errorf("expected 2 registered meters, got %d", len(registry.Meters()))
		}
	})

	t.Run("no-op for meters without a histogram", func(t *testing.T) {
		registry := meter.NewRegistry()
		customizer := NewHistogramCustomizer([]float64{0.5}, time.Millisecond)

		plain := meter.NewTimer(meter.NewID("plain"), meter.DistributionConfig{})
		registry.Register(plain)
		customizer.RegisterHistogramGauges(plain, registry)

		if len(customizer.Bindings(plain)) != 0 {
			t.Errorf("expected no bindings for a timer without a histogram")
		}

		counter := meter.NewCounter(meter.NewID("counter"))
		registry.Register(counter)
		customizer.RegisterHistogramGauges(counter, registry)
		if len(registry.Meters()) != 2 {
			t.Errorf("expected only the original meters, got %d", len(registry.Meters()))
		}
	})

	t.Run("gauges read from the parent histogram in the base unit", func(t *testing.T) {
		registry := meter.NewRegistry()
		customizer := NewHistogramCustomizer([]float64{0.5}, time.Millisecond)
		registry.OnCreation(customizer.Hook())

		timer, err := registry.Timer(
			meter.NewID("hist"),
			meter.DistributionConfig{Percentiles: []float64{0.5}},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 1; i <= 100; i++ {
			timer.Record(time.Duration(i) * time.Millisecond)
		}

		bindings := customizer.Bindings(timer)
		if len(bindings) != 1 {
			t.Fatalf("expected one synthetic gauge, got %d", len(bindings))
		}
		if got := bindings[0].Value(); got != 50 {
			t.Errorf("expected p50 of 50 (base unit ms), got %v", got)
		}

		id := bindings[0].ID()
		if id.Name != "hist.percentiles" {
			t.Errorf("unexpected gauge name %q", id.Name)
		}
	})

	t.Run("summary gauges report raw amounts", func(t *testing.T) {
		registry := meter.NewRegistry()
		customizer := NewHistogramCustomizer([]float64{0.5}, time.Millisecond)
		registry.OnCreation(customizer.Hook())

		summary, err := registry.DistributionSummary(
			meter.NewID("payload"),
			meter.DistributionConfig{Percentiles: []float64{0.5}},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 1; i <= 100; i++ {
			summary.Record(float64(i))
		}

		bindings := customizer.Bindings(summary)
		if got := bindings[0].Value(); got != 50 {
			t.Errorf("expected p50 of 50, got %v", got)
		}
	})
}
