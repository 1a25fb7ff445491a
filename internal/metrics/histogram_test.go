package metrics

import (
	"testing"
	"time"
)

func TestHistogram_Summary(t *testing.T) {
	h := NewHistogram(100)
	for i := 1; i <= 5; i++ {
		h.Record(time.Duration(i) * time.Millisecond)
	}

	s := h.Summary()
	if s.Count != 5 {
		t.Errorf("Count = %d, want 5", s.Count)
	}
	if s.Mean != 3*time.Millisecond {
		t.Errorf("Mean = %v, want 3ms", s.Mean)
	}
	if s.P50 != 3*time.Millisecond {
		t.Errorf("P50 = %v, want 3ms", s.P50)
	}
	if s.P95 != 4800*time.Microsecond {
		t.Errorf("P95 = %v, want 4.8ms", s.P95)
	}
	if s.Max != 5*time.Millisecond {
		t.Errorf("Max = %v, want 5ms", s.Max)
	}
}

func TestHistogram_Empty(t *testing.T) {
	if s := NewHistogram(0).Summary(); s != (Summary{}) {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestHistogram_BoundedWindow(t *testing.T) {
	h := NewHistogram(10)
	for i := 0; i < 25; i++ {
		h.Record(time.Duration(i) * time.Second)
	}

	s := h.Summary()
	if s.Count != 25 {
		t.Errorf("Count = %d, want 25", s.Count)
	}
	if s.Max != 24*time.Second {
		t.Errorf("Max = %v, want 24s", s.Max)
	}

	h.mu.RLock()
	retained := len(h.samples)
	h.mu.RUnlock()
	if retained > 10 {
		t.Errorf("retained %d samples, want at most 10", retained)
	}

	h.Reset()
	if s := h.Summary(); s.Count != 0 {
		t.Errorf("Count after Reset = %d", s.Count)
	}
}
