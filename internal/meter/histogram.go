package meter

import (
	"math"
	"sort"
	"sync"
)

const defaultMaxSamples = 1024

// DistributionConfig enables percentile tracking on timers and
// distribution summaries. An empty Percentiles slice disables the
// histogram entirely.
type DistributionConfig struct {
	Percentiles []float64
	MaxSamples  int
}

func (dc DistributionConfig) enabled() bool {
	return len(dc.Percentiles) > 0
}

// histogram keeps a bounded ring of recent samples. Percentiles are
// computed from a sorted copy at read time, so recordings stay cheap.
type histogram struct {
	mu      sync.Mutex
	samples []float64
	next    int
	filled  bool
}

func newHistogram(cfg DistributionConfig) *histogram {
	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = defaultMaxSamples
	}
	return &histogram{samples: make([]float64, maxSamples)}
}

func (h *histogram) record(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = value
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.filled = true
	}
}

// percentile returns the q-quantile (0 <= q <= 1) of the retained
// samples, or NaN when nothing has been recorded yet.
func (h *histogram) percentile(q float64) float64 {
	h.mu.Lock()
	size := h.next
	if h.filled {
		size = len(h.samples)
	}
	if size == 0 {
		h.mu.Unlock()
		return math.NaN()
	}
	sorted := make([]float64, size)
	copy(sorted, h.samples[:size])
	h.mu.Unlock()

	sort.Float64s(sorted)
	rank := int(math.Ceil(q * float64(size)))
	if rank > 0 {
		rank--
	}
	return sorted[rank]
}
