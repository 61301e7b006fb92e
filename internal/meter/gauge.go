package meter

import "time"

// Gauge reads an instantaneous value from a user-supplied function.
// The function may return NaN when no value is available; the publish
// path omits the record in that case.
type Gauge struct {
	id      ID
	valueFn func() float64
}

func NewGauge(id ID, valueFn func() float64) *Gauge {
	return &Gauge{id: id, valueFn: valueFn}
}

func (g *Gauge) ID() ID {
	return g.id
}

func (g *Gauge) Value() float64 {
	return g.valueFn()
}

func (g *Gauge) Measure() []Measurement {
	return []Measurement{{Statistic: "value", Value: g.Value()}}
}

// TimeGauge is a gauge whose value is a duration expressed in a fixed
// source unit. Value converts the reading to the requested unit.
type TimeGauge struct {
	id         ID
	sourceUnit time.Duration
	valueFn    func() float64
}

func NewTimeGauge(id ID, sourceUnit time.Duration, valueFn func() float64) *TimeGauge {
	return &TimeGauge{id: id, sourceUnit: sourceUnit, valueFn: valueFn}
}

func (tg *TimeGauge) ID() ID {
	return tg.id
}

func (tg *TimeGauge) Value(unit time.Duration) float64 {
	return tg.valueFn() * float64(tg.sourceUnit) / float64(unit)
}

func (tg *TimeGauge) Measure() []Measurement {
	return []Measurement{{Statistic: "value", Value: tg.valueFn()}}
}
