package sensor

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Sim produces plausible barn readings with an injected failure rate.
type Sim struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	tempC       float64
	humidity    float64
	failed      bool

	// Reinits counts Reinitialize calls.
	Reinits int
}

// NewSim returns a simulated sensor. seed makes the sequence reproducible.
func NewSim(failureRate float64, seed uint64) *Sim {
	return &Sim{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		failureRate: failureRate,
		tempC:       22.5,
		humidity:    41,
	}
}

// step advances the random walk once per conversion. It is driven by
// ReadHumidity, the first read of every sample.
func (s *Sim) step() {
	s.failed = s.rng.Float64() < s.failureRate
	s.tempC = clamp(s.tempC+s.rng.NormFloat64()*0.2, -10, 45)
	s.humidity = clamp(s.humidity+s.rng.NormFloat64()*0.5, 5, 95)
}

func (s *Sim) ReadHumidity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step()
	if s.failed {
		return math.NaN()
	}
	return math.Round(s.humidity*10) / 10
}

func (s *Sim) ReadTemperatureC() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed {
		return math.NaN()
	}
	return math.Round(s.tempC*10) / 10
}

func (s *Sim) ReadTemperatureF() float64 {
	return CToF(s.ReadTemperatureC())
}

func (s *Sim) Reinitialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reinits++
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
