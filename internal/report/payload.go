package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/sensor"
)

// TimestampLayout is the ISO-8601 UTC form the collector parses.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Kind distinguishes the two report types.
type Kind string

const (
	KindReading   Kind = "reading"
	KindHeartbeat Kind = "heartbeat"
)

// Payload is a report body. Every value is encoded as a JSON string and
// fields keep their declaration order.
type Payload interface {
	Kind() Kind
	MarshalJSON() ([]byte, error)
}

// HeartbeatPayload tells the collector the node is alive but has no reading.
type HeartbeatPayload struct {
	SensorID int
	Password string
}

// DataPayload carries one valid reading.
type DataPayload struct {
	SensorID  int
	Password  string
	TempF     float64
	Humidity  float64
	TimeStamp string
}

// NewHeartbeat builds a heartbeat for the given identity.
func NewHeartbeat(id config.Identity) HeartbeatPayload {
	return HeartbeatPayload{SensorID: id.SensorID, Password: id.Password}
}

// NewData builds a data payload stamped with epoch (Unix seconds, UTC).
func NewData(id config.Identity, r sensor.Reading, epoch int64) DataPayload {
	return DataPayload{
		SensorID:  id.SensorID,
		Password:  id.Password,
		TempF:     r.TemperatureF,
		Humidity:  r.Humidity,
		TimeStamp: FormatTimestamp(epoch),
	}
}

// FormatTimestamp renders Unix seconds as YYYY-MM-DDTHH:MM:SSZ.
func FormatTimestamp(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(TimestampLayout)
}

func (HeartbeatPayload) Kind() Kind { return KindHeartbeat }

func (p HeartbeatPayload) MarshalJSON() ([]byte, error) {
	return encodeObject([]field{
		{"SensorID", strconv.Itoa(p.SensorID)},
		{"Password", p.Password},
	})
}

func (DataPayload) Kind() Kind { return KindReading }

func (p DataPayload) MarshalJSON() ([]byte, error) {
	return encodeObject([]field{
		{"SensorID", strconv.Itoa(p.SensorID)},
		{"Password", p.Password},
		{"TempF", formatFloat(p.TempF)},
		{"Humidity", formatFloat(p.Humidity)},
		{"TimeStamp", p.TimeStamp},
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type field struct {
	key, value string
}

// encodeObject writes a flat object of string values with ", " and ": "
// separators, the layout the deployed collectors were written against.
func encodeObject(fields []field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := writeString(&buf, f.key); err != nil {
			return nil, err
		}
		buf.WriteString(": ")
		if err := writeString(&buf, f.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
