package collector

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/muurk/tempnode/internal/config"
)

var (
	// ErrNoSuchSensor is returned for an unregistered sensor ID.
	ErrNoSuchSensor = errors.New("No such sensor")
	// ErrUnauthorized is returned when the password does not match.
	ErrUnauthorized = errors.New("unauthorized")
)

// historySize is the number of readings kept per sensor.
const historySize = 100

// Reading is one accepted temperature report.
type Reading struct {
	TempF     float64   `json:"temp_f"`
	Humidity  float64   `json:"humidity"`
	TimeStamp time.Time `json:"timestamp"`
}

// Sensor is the collector's view of one registered node.
type Sensor struct {
	ID            int        `json:"sensor_id"`
	Name          string     `json:"name"`
	CalibrationF  float64    `json:"calibration_f"`
	MinTempF      *float64   `json:"min_temp_f,omitempty"`
	MaxTempF      *float64   `json:"max_temp_f,omitempty"`
	LastTempF     *float64   `json:"last_temp_f,omitempty"`
	DisplayTempF  *float64   `json:"display_temp_f,omitempty"`
	LastHumidity  *float64   `json:"last_humidity,omitempty"`
	LastTimeStamp *time.Time `json:"last_timestamp,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	OutOfRange    bool       `json:"out_of_range"`
	Readings      []Reading  `json:"readings,omitempty"`
}

type sensorState struct {
	Sensor
	password string
}

// Store holds registered sensors and their latest readings in memory.
type Store struct {
	mu      sync.RWMutex
	sensors map[int]*sensorState
}

// NewStore registers the configured sensors.
func NewStore(sensors []config.CollectorSensor) *Store {
	s := &Store{sensors: make(map[int]*sensorState, len(sensors))}
	for _, cs := range sensors {
		s.sensors[cs.ID] = &sensorState{
			Sensor: Sensor{
				ID:           cs.ID,
				Name:         cs.Name,
				CalibrationF: cs.CalibrationF,
				MinTempF:     cs.MinTempF,
				MaxTempF:     cs.MaxTempF,
			},
			password: cs.Password,
		}
	}
	return s
}

// Authenticate checks a report's credentials.
func (s *Store) Authenticate(id int, password string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sensors[id]
	if !ok {
		return ErrNoSuchSensor
	}
	if st.password != password {
		return ErrUnauthorized
	}
	return nil
}

// RecordReading stores a reading and returns the updated sensor.
func (s *Store) RecordReading(id int, r Reading) (Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sensors[id]
	if !ok {
		return Sensor{}, ErrNoSuchSensor
	}

	temp, hum, ts := r.TempF, r.Humidity, r.TimeStamp
	display := temp + st.CalibrationF
	st.LastTempF = &temp
	st.DisplayTempF = &display
	st.LastHumidity = &hum
	st.LastTimeStamp = &ts
	st.OutOfRange = outOfRange(display, st.MinTempF, st.MaxTempF)

	st.Readings = append(st.Readings, r)
	if len(st.Readings) > historySize {
		st.Readings = st.Readings[len(st.Readings)-historySize:]
	}
	return st.snapshot(true), nil
}

// RecordHeartbeat marks the sensor alive at the given time.
func (s *Store) RecordHeartbeat(id int, at time.Time) (Sensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sensors[id]
	if !ok {
		return Sensor{}, ErrNoSuchSensor
	}
	st.LastHeartbeat = &at
	return st.snapshot(false), nil
}

// List returns every sensor without reading history, ordered by ID.
func (s *Store) List() []Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sensor, 0, len(s.sensors))
	for _, st := range s.sensors {
		out = append(out, st.snapshot(false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one sensor with its reading history.
func (s *Store) Get(id int) (Sensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sensors[id]
	if !ok {
		return Sensor{}, false
	}
	return st.snapshot(true), true
}

// snapshot copies the sensor so callers never alias store memory.
func (st *sensorState) snapshot(history bool) Sensor {
	out := st.Sensor
	out.Readings = nil
	if history {
		out.Readings = append([]Reading(nil), st.Readings...)
	}
	return out
}

func outOfRange(tempF float64, lo, hi *float64) bool {
	if lo != nil && tempF < *lo {
		return true
	}
	if hi != nil && tempF > *hi {
		return true
	}
	return false
}
