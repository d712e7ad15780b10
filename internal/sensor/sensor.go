package sensor

import (
	"errors"
	"math"

	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// ErrInvalidReading marks a measurement that produced NaN or infinite values.
var ErrInvalidReading = errors.New("sensor returned a non-finite value")

// Peripheral is a combined temperature and humidity sensor. Failed reads are
// reported as NaN, the way DHT class drivers do.
type Peripheral interface {
	ReadHumidity() float64
	ReadTemperatureC() float64
	ReadTemperatureF() float64
	// Reinitialize restarts the peripheral after a failed read.
	Reinitialize() error
}

// Reading is one sample. Only TemperatureF and Humidity are reported.
type Reading struct {
	TemperatureF float64
	TemperatureC float64
	Humidity     float64
	Valid        bool
}

// Err returns ErrInvalidReading for an invalid reading and nil otherwise.
func (r Reading) Err() error {
	if r.Valid {
		return nil
	}
	return ErrInvalidReading
}

// Sampler takes validated readings from a Peripheral.
type Sampler struct {
	p Peripheral
}

// NewSampler returns a Sampler over p.
func NewSampler(p Peripheral) *Sampler {
	return &Sampler{p: p}
}

// Sample performs exactly one read of each quantity. A reading is valid only
// when both humidity and Fahrenheit temperature are finite. There is no retry.
func (s *Sampler) Sample() Reading {
	r := Reading{
		Humidity:     s.p.ReadHumidity(),
		TemperatureC: s.p.ReadTemperatureC(),
		TemperatureF: s.p.ReadTemperatureF(),
	}
	r.Valid = finite(r.Humidity) && finite(r.TemperatureF)

	if r.Valid {
		logging.Debug("Sensor sampled",
			zap.Float64("temp_f", r.TemperatureF),
			zap.Float64("temp_c", r.TemperatureC),
			zap.Float64("humidity", r.Humidity),
		)
	} else {
		logging.Warn("Sensor read failed", zap.Error(ErrInvalidReading))
	}
	return r
}

// Reinitialize forwards to the peripheral.
func (s *Sampler) Reinitialize() error {
	return s.p.Reinitialize()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CToF converts Celsius to Fahrenheit. NaN propagates.
func CToF(c float64) float64 {
	return c*9/5 + 32
}
