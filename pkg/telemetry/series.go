package telemetry

import "sync"

// Sample is one point of the session time series.
type Sample struct {
	Iteration            int
	Epoch                float64
	CollisionProbability float64
	FuelConsumption      float64
	Reward               float64
}

// Series is a capacity-bounded buffer of samples. When full, the oldest
// sample is dropped. A capacity <= 0 means unbounded.
type Series struct {
	samples  []Sample
	capacity int
	mu       sync.RWMutex
}

func NewSeries(capacity int) *Series {
	initial := capacity
	if initial <= 0 {
		initial = 64
	}
	return &Series{
		samples:  make([]Sample, 0, initial),
		capacity: capacity,
	}
}

// Samples returns a copy of all stored samples
func (s *Series) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *Series) Store(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	if s.capacity > 0 && len(s.samples) > s.capacity {
		s.samples = s.samples[1:]
	}
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
