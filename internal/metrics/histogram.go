// Package metrics provides in-process latency tracking.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSamples bounds Histogram memory when no size is given.
const DefaultMaxSamples = 10000

// Histogram keeps a bounded window of durations and reports percentiles.
// It is safe for concurrent use.
type Histogram struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
	total   int
}

// NewHistogram creates a histogram keeping at most maxSize recent samples.
func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = DefaultMaxSamples
	}
	return &Histogram{
		samples: make([]time.Duration, 0, min(maxSize, 1024)),
		maxSize: maxSize,
	}
}

// Record adds a sample. Once the window is full the oldest fifth is dropped.
func (h *Histogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.total++
	h.samples = append(h.samples, d)
	if len(h.samples) > h.maxSize {
		drop := max(h.maxSize/5, 1)
		h.samples = append(h.samples[:0], h.samples[drop:]...)
	}
}

// Summary is a point-in-time view of a Histogram.
type Summary struct {
	Count int           `json:"count"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// Summary computes statistics over the retained window. Count is the total
// number of samples ever recorded.
func (h *Histogram) Summary() Summary {
	h.mu.RLock()
	sorted := append([]time.Duration(nil), h.samples...)
	total := h.total
	h.mu.RUnlock()

	s := Summary{Count: total}
	if len(sorted) == 0 {
		return s
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	s.Mean = sum / time.Duration(len(sorted))
	s.P50 = percentile(sorted, 50)
	s.P95 = percentile(sorted, 95)
	s.Max = sorted[len(sorted)-1]
	return s
}

// percentile interpolates linearly between the nearest ranks of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	fraction := index - float64(lower)
	return time.Duration(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}

// Reset clears all samples.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
	h.total = 0
}
