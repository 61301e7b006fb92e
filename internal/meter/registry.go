package meter

import (
	"fmt"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
)

// CreationHook runs after a meter is registered. Hooks may register
// further meters (e.g. synthetic histogram gauges) into the same
// registry.
type CreationHook func(m Meter, r *Registry)

// Registry owns the live meter population. Meters are stored in
// registration order so enumeration (and therefore batch partitioning)
// is stable within a process. Registration is idempotent per ID: a
// second registration with the same name and tags returns the existing
// meter.
type Registry struct {
	mu     sync.RWMutex
	meters *orderedmap.OrderedMap[string, Meter]
	hooks  []CreationHook
}

func NewRegistry() *Registry {
	return &Registry{meters: orderedmap.NewOrderedMap[string, Meter]()}
}

// OnCreation installs a hook invoked for every subsequently registered
// meter. Not safe to call after registration traffic begins.
func (r *Registry) OnCreation(hook CreationHook) {
	r.hooks = append(r.hooks, hook)
}

// Meters returns a snapshot of the current population in registration
// order. Meters registered after the call do not appear until the next
// snapshot.
func (r *Registry) Meters() []Meter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meters := make([]Meter, 0, r.meters.Len())
	for m := range r.meters.Values() {
		meters = append(meters, m)
	}
	return meters
}

// Register adds an arbitrary meter (including shapes the publish path
// has no dedicated handling for). Returns the already-registered meter
// when the ID is taken.
func (r *Registry) Register(m Meter) Meter {
	r.mu.Lock()
	key := m.ID().Key()
	if existing, ok := r.meters.Get(key); ok {
		r.mu.Unlock()
		return existing
	}
	r.meters.Set(key, m)
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(m, r)
	}
	return m
}

func (r *Registry) Counter(id ID) (*Counter, error) {
	m := r.Register(NewCounter(id))
	counter, ok := m.(*Counter)
	if !ok {
		return nil, registeredAsError(id, "counter")
	}
	return counter, nil
}

func (r *Registry) FunctionCounter(id ID, countFn func() float64) (*FunctionCounter, error) {
	m := r.Register(NewFunctionCounter(id, countFn))
	fc, ok := m.(*FunctionCounter)
	if !ok {
		return nil, registeredAsError(id, "function counter")
	}
	return fc, nil
}

func (r *Registry) Gauge(id ID, valueFn func() float64) (*Gauge, error) {
	m := r.Register(NewGauge(id, valueFn))
	gauge, ok := m.(*Gauge)
	if !ok {
		return nil, registeredAsError(id, "gauge")
	}
	return gauge, nil
}

func (r *Registry) TimeGauge(id ID, sourceUnit time.Duration, valueFn func() float64) (*TimeGauge, error) {
	m := r.Register(NewTimeGauge(id, sourceUnit, valueFn))
	tg, ok := m.(*TimeGauge)
	if !ok {
		return nil, registeredAsError(id, "time gauge")
	}
	return tg, nil
}

func (r *Registry) Timer(id ID, cfg DistributionConfig) (*Timer, error) {
	m := r.Register(NewTimer(id, cfg))
	timer, ok := m.(*Timer)
	if !ok {
		return nil, registeredAsError(id, "timer")
	}
	return timer, nil
}

func (r *Registry) FunctionTimer(
	id ID,
	sourceUnit time.Duration,
	countFn func() float64,
	totalFn func() float64,
) (*FunctionTimer, error) {
	m := r.Register(NewFunctionTimer(id, sourceUnit, countFn, totalFn))
	ft, ok := m.(*FunctionTimer)
	if !ok {
		return nil, registeredAsError(id, "function timer")
	}
	return ft, nil
}

func (r *Registry) DistributionSummary(id ID, cfg DistributionConfig) (*DistributionSummary, error) {
	m := r.Register(NewDistributionSummary(id, cfg))
	ds, ok := m.(*DistributionSummary)
	if !ok {
		return nil, registeredAsError(id, "distribution summary")
	}
	return ds, nil
}

func (r *Registry) LongTaskTimer(id ID) (*LongTaskTimer, error) {
	m := r.Register(NewLongTaskTimer(id))
	ltt, ok := m.(*LongTaskTimer)
	if !ok {
		return nil, registeredAsError(id, "long task timer")
	}
	return ltt, nil
}

func registeredAsError(id ID, wanted string) error {
	return fmt.Errorf("meter %q is already registered with a different shape (wanted %s)", id.Key(), wanted)
}
