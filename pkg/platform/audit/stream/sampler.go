package stream

import (
	"math/rand"
	"sync"

	audit "cradle/pkg/platform/audit"
)

// Sampler thins high-volume actions before they reach the stream. Rates are
// per action with a configurable default; 1.0 keeps everything, 0.0 drops
// everything. The durable store is written before sampling, so thinning here
// never loses the authoritative record.
type Sampler struct {
	mu           sync.RWMutex
	defaultRate  float64
	rateByAction map[audit.Action]float64
}

// NewSampler creates a sampler with the given default rate, clamped to [0, 1].
func NewSampler(defaultRate float64) *Sampler {
	return &Sampler{
		defaultRate:  clampRate(defaultRate),
		rateByAction: make(map[audit.Action]float64),
	}
}

// Keep reports whether an entry with this action should be published.
func (s *Sampler) Keep(action audit.Action) bool {
	rate := s.rateFor(action)
	if rate >= 1 {
		return true
	}
	return rand.Float64() < rate //nolint:gosec // sampling doesn't need crypto rand
}

// SetRate overrides the rate for one action. Use this to thin high-volume
// actions like read below the default.
func (s *Sampler) SetRate(action audit.Action, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateByAction[action] = clampRate(rate)
}

func (s *Sampler) rateFor(action audit.Action) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rate, ok := s.rateByAction[action]; ok {
		return rate
	}
	return s.defaultRate
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
