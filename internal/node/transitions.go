package node

import (
	"time"

	"github.com/muurk/tempnode/internal/config"
)

// Path identifies which of the four iteration shapes ran.
type Path int

const (
	// PathReport: valid reading, link up. The reading is posted.
	PathReport Path = iota
	// PathHeartbeat: invalid reading, link up. A heartbeat is posted.
	PathHeartbeat
	// PathSensorReset: invalid reading, link down. The sensor is restarted
	// and the link re-established.
	PathSensorReset
	// PathReconnect: valid reading, link down. The link is re-established
	// and the reading dropped.
	PathReconnect
)

func (p Path) String() string {
	switch p {
	case PathReport:
		return "report"
	case PathHeartbeat:
		return "heartbeat"
	case PathSensorReset:
		return "sensor_reset"
	case PathReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// Endpoint selects the collector URL a transition posts to.
type Endpoint int

const (
	EndpointNone Endpoint = iota
	EndpointReading
	EndpointHeartbeat
)

// Delay selects which configured pause follows a transition.
type Delay int

const (
	DelaySuccess Delay = iota
	DelayError
)

// Duration resolves the delay against the configured timing.
func (d Delay) Duration(t config.Timing) time.Duration {
	if d == DelayError {
		return t.ErrorDelay
	}
	return t.SuccessDelay
}

// Condition is the input of one iteration.
type Condition struct {
	Valid     bool
	Connected bool
}

// Transition describes the actions of one iteration, executed in field order:
// indicator on, post, indicator off, sensor restart, reconnect.
type Transition struct {
	Path         Path
	Indicate     bool
	Post         Endpoint
	ReinitSensor bool
	Reconnect    bool
	Delay        Delay
}

// Transitions is the complete iteration table.
var Transitions = map[Condition]Transition{
	{Valid: true, Connected: true}: {
		Path:     PathReport,
		Indicate: true,
		Post:     EndpointReading,
		Delay:    DelaySuccess,
	},
	{Valid: false, Connected: true}: {
		Path:  PathHeartbeat,
		Post:  EndpointHeartbeat,
		Delay: DelaySuccess,
	},
	{Valid: false, Connected: false}: {
		Path:         PathSensorReset,
		ReinitSensor: true,
		Reconnect:    true,
		Delay:        DelayError,
	},
	{Valid: true, Connected: false}: {
		Path:      PathReconnect,
		Indicate:  true,
		Reconnect: true,
		Delay:     DelayError,
	},
}
