package node

import (
	"context"
	"time"

	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/ntptime"
	"github.com/muurk/tempnode/internal/report"
	"github.com/muurk/tempnode/internal/sensor"
	"github.com/muurk/tempnode/internal/wifi"
	"go.uber.org/zap"
)

// Associator keeps the wireless link up.
type Associator interface {
	EnsureAssociated(ctx context.Context) error
	LinkState() wifi.LinkState
	Current() string
}

// Sampler takes one reading per call.
type Sampler interface {
	Sample() sensor.Reading
	Reinitialize() error
}

// Poster delivers one report.
type Poster interface {
	Post(ctx context.Context, endpoint string, p report.Payload) report.Response
}

// Outcome records what one iteration did.
type Outcome struct {
	Iteration uint64
	Condition Condition
	Path      Path
	Reading   sensor.Reading
	Payload   report.Payload   // nil when nothing was posted
	Response  *report.Response // nil when nothing was posted
	Delay     time.Duration
	Err       error // set only when ctx was cancelled mid-iteration
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Associator Associator
	Sampler    Sampler
	Poster     Poster
	Time       ntptime.Source
	Indicator  Indicator
	Clock      clock.Clock

	// OnReconnect, if set, runs after the link was re-established.
	OnReconnect func(ctx context.Context, ssid string)
	// OnOutcome, if set, receives every iteration's outcome.
	OnOutcome func(Outcome)
}

// Loop is the node's control loop: sample, branch on link state, report or
// recover, pause.
type Loop struct {
	identity  config.Identity
	endpoints config.Endpoints
	timing    config.Timing
	policy    config.Policy
	deps      Deps

	iteration uint64
}

// NewLoop builds a loop from a validated configuration.
func NewLoop(cfg *config.Config, deps Deps) *Loop {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Indicator == nil {
		deps.Indicator = &LogIndicator{}
	}
	return &Loop{
		identity:  cfg.Identity,
		endpoints: cfg.Endpoints,
		timing:    cfg.Timing,
		policy:    cfg.Policy,
		deps:      deps,
	}
}

// Setup associates, synchronizes time, starts the sensor and waits for it to
// settle.
func (l *Loop) Setup(ctx context.Context) error {
	logging.Info("Node starting",
		zap.Int("sensor_id", l.identity.SensorID),
		zap.String("reading_endpoint", l.endpoints.Reading),
		zap.Bool("legacy_link_check", l.policy.LegacyLinkCheck),
	)

	if err := l.deps.Associator.EnsureAssociated(ctx); err != nil {
		return err
	}
	l.deps.Time.Update()
	if s, ok := l.deps.Time.(interface{ Synced() bool }); ok && !s.Synced() {
		logging.Warn("Time not synchronized, timestamps use the host clock until the next successful update")
	}

	if err := l.deps.Sampler.Reinitialize(); err != nil {
		logging.Warn("Sensor start failed", zap.Error(err))
	}
	l.deps.Indicator.Set(false)

	return l.deps.Clock.Sleep(ctx, l.timing.SensorWarmup)
}

// Run executes iterations until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := l.Step(ctx)
		if o.Err != nil {
			return o.Err
		}
		if err := l.deps.Clock.Sleep(ctx, o.Delay); err != nil {
			return err
		}
	}
}

// Step runs one iteration without the trailing delay.
func (l *Loop) Step(ctx context.Context) Outcome {
	l.iteration++
	logging.LogLoopStart(l.iteration)

	reading := l.deps.Sampler.Sample()

	cond := Condition{Valid: reading.Valid}
	if l.policy.LegacyLinkCheck && reading.Valid {
		cond.Connected = true
	} else {
		cond.Connected = l.deps.Associator.LinkState() == wifi.Connected
	}

	t := Transitions[cond]
	o := Outcome{
		Iteration: l.iteration,
		Condition: cond,
		Path:      t.Path,
		Reading:   reading,
		Delay:     t.Delay.Duration(l.timing),
	}

	if t.Indicate {
		l.deps.Indicator.Set(true)
	}

	switch t.Post {
	case EndpointReading:
		l.deps.Time.Update()
		o.Payload = report.NewData(l.identity, reading, l.deps.Time.CurrentEpochSeconds())
		resp := l.deps.Poster.Post(ctx, l.endpoints.Reading, o.Payload)
		o.Response = &resp
	case EndpointHeartbeat:
		o.Payload = report.NewHeartbeat(l.identity)
		resp := l.deps.Poster.Post(ctx, l.endpoints.Heartbeat, o.Payload)
		o.Response = &resp
	}

	if t.Indicate {
		l.deps.Indicator.Set(false)
	}

	if t.ReinitSensor {
		if err := l.deps.Sampler.Reinitialize(); err != nil {
			logging.Warn("Sensor restart failed", zap.Error(err))
		}
	}

	if t.Reconnect {
		logging.Warn("Link down, reconnecting", zap.String("path", t.Path.String()))
		if err := l.deps.Associator.EnsureAssociated(ctx); err != nil {
			o.Err = err
		} else if l.deps.OnReconnect != nil {
			l.deps.OnReconnect(ctx, l.deps.Associator.Current())
		}
	}

	logging.LogLoopEnd(l.iteration, t.Path.String(), o.Delay)
	if l.deps.OnOutcome != nil {
		l.deps.OnOutcome(o)
	}
	return o
}
