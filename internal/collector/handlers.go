package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// maxBodyBytes bounds a report body.
const maxBodyBytes = 4096

// Report kinds, as used in metrics labels and live feed events.
const (
	KindReading   = "reading"
	KindHeartbeat = "heartbeat"
)

// number accepts a JSON number or a string holding one. Nodes send every
// value as a string.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a finite number: %q", raw)
	}
	*n = number(f)
	return nil
}

// reportBody covers both report shapes. Field matching is case-insensitive.
type reportBody struct {
	SensorID  *number `json:"SensorID"`
	Password  string  `json:"Password"`
	TempF     *number `json:"TempF"`
	Humidity  *number `json:"Humidity"`
	TimeStamp string  `json:"TimeStamp"`
}

func (b reportBody) sensorID() (int, error) {
	if b.SensorID == nil {
		return 0, errors.New("missing SensorID")
	}
	f := float64(*b.SensorID)
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("SensorID %v is not an integer", f)
	}
	return int(f), nil
}

func decodeReport(w http.ResponseWriter, r *http.Request) (reportBody, error) {
	var body reportBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return body, fmt.Errorf("malformed report: %w", err)
	}
	return body, nil
}

// authenticate decodes and checks credentials, writing the failure response
// itself. ok is false when the request has been answered.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, kind string) (reportBody, int, bool) {
	body, err := decodeReport(w, r)
	if err != nil {
		s.reject(w, kind, "invalid", http.StatusBadRequest, err.Error())
		return body, 0, false
	}
	id, err := body.sensorID()
	if err != nil {
		s.reject(w, kind, "invalid", http.StatusBadRequest, err.Error())
		return body, 0, false
	}

	switch err := s.store.Authenticate(id, body.Password); {
	case errors.Is(err, ErrNoSuchSensor):
		s.reject(w, kind, "rejected", http.StatusBadRequest, ErrNoSuchSensor.Error())
		return body, id, false
	case errors.Is(err, ErrUnauthorized):
		s.reject(w, kind, "rejected", http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return body, id, false
	}
	return body, id, true
}

func (s *Server) reject(w http.ResponseWriter, kind, result string, status int, msg string) {
	s.metrics.Report(kind, result)
	logging.Warn("Report refused",
		zap.String("kind", kind),
		zap.Int("status_code", status),
		zap.String("reason", msg),
	)
	http.Error(w, msg, status)
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	body, id, ok := s.authenticate(w, r, KindReading)
	if !ok {
		return
	}

	if body.TempF == nil || body.Humidity == nil {
		s.reject(w, KindReading, "invalid", http.StatusBadRequest, "TempF and Humidity are required")
		return
	}

	ts := s.now().UTC()
	if body.TimeStamp != "" {
		parsed, err := time.Parse(time.RFC3339, body.TimeStamp)
		if err != nil {
			s.reject(w, KindReading, "invalid", http.StatusBadRequest, fmt.Sprintf("bad TimeStamp %q", body.TimeStamp))
			return
		}
		ts = parsed
	}

	sensor, err := s.store.RecordReading(id, Reading{
		TempF:     float64(*body.TempF),
		Humidity:  float64(*body.Humidity),
		TimeStamp: ts,
	})
	if err != nil {
		s.reject(w, KindReading, "rejected", http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.Report(KindReading, "accepted")
	s.metrics.ObserveReading(sensor)
	s.hub.Broadcast(Event{Kind: KindReading, At: s.now().UTC(), Sensor: sensor})

	fields := []zap.Field{
		zap.Int("sensor_id", id),
		zap.Float64("temp_f", float64(*body.TempF)),
		zap.Float64("humidity", float64(*body.Humidity)),
		zap.Time("timestamp", ts),
	}
	if sensor.OutOfRange {
		logging.Warn("Reading out of range", fields...)
	} else {
		logging.Info("Reading accepted", fields...)
	}

	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.authenticate(w, r, KindHeartbeat)
	if !ok {
		return
	}

	at := s.now().UTC()
	sensor, err := s.store.RecordHeartbeat(id, at)
	if err != nil {
		s.reject(w, KindHeartbeat, "rejected", http.StatusBadRequest, err.Error())
		return
	}

	s.metrics.Report(KindHeartbeat, "accepted")
	s.metrics.ObserveHeartbeat(id)
	s.hub.Broadcast(Event{Kind: KindHeartbeat, At: at, Sensor: sensor})
	logging.Info("Heartbeat accepted", zap.Int("sensor_id", id))

	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "sensor id must be an integer", http.StatusBadRequest)
		return
	}
	sensor, ok := s.store.Get(id)
	if !ok {
		http.Error(w, ErrNoSuchSensor.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"sensors":     len(s.store.List()),
		"subscribers": s.hub.Count(),
	})
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", zap.Error(err))
	}
}
