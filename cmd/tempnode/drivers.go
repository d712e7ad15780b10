package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muurk/tempnode/internal/announce"
	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/mqttmirror"
	"github.com/muurk/tempnode/internal/node"
	"github.com/muurk/tempnode/internal/ntptime"
	"github.com/muurk/tempnode/internal/report"
	"github.com/muurk/tempnode/internal/sensor"
	"github.com/muurk/tempnode/internal/version"
	"github.com/muurk/tempnode/internal/wifi"
	"go.uber.org/zap"
)

// stack is a fully wired node and the resources to release with it.
type stack struct {
	loop       *node.Loop
	associator *wifi.Associator
	announcer  *announce.Announcer
	closers    []func()
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// announce publishes the node over mDNS on the current network.
func (s *stack) announce(ctx context.Context) {
	if s.announcer != nil {
		s.announcer.Announce(ctx, s.associator.Current())
	}
}

// buildStack wires drivers from cfg. onOutcome may be nil.
func buildStack(ctx context.Context, cfg *config.Config, onOutcome func(node.Outcome)) (*stack, error) {
	clk := clock.Real{}
	st := &stack{}

	radio, err := newRadio(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st.associator = wifi.NewAssociator(radio, cfg.Networks, cfg.Timing, clk)

	peripheral, err := newPeripheral(cfg, clk)
	if err != nil {
		return nil, err
	}
	if c, ok := peripheral.(interface{ Close() error }); ok {
		st.closers = append(st.closers, func() { _ = c.Close() })
	}

	client := report.NewClient(cfg.Timing.HTTPTimeout)
	mirror, err := mqttmirror.Connect(cfg.MQTT, cfg.Identity.SensorID)
	switch {
	case errors.Is(err, mqttmirror.ErrDisabled):
	case err != nil:
		// The mirror is optional; the node reports without it.
		logging.Warn("MQTT mirror unavailable", zap.Error(err))
	default:
		client.Mirror = mirror
		st.closers = append(st.closers, mirror.Close)
	}

	if cfg.Announce.Enabled {
		st.announcer = announce.NewAnnouncer(cfg.Identity.SensorID, version.Version, cfg.Announce.Port)
		st.closers = append(st.closers, st.announcer.Shutdown)
	}

	deps := node.Deps{
		Associator: st.associator,
		Sampler:    sensor.NewSampler(peripheral),
		Poster:     client,
		Time:       newTimeSource(cfg, clk),
		Indicator:  newIndicator(cfg),
		Clock:      clk,
		OnOutcome:  onOutcome,
	}
	if st.announcer != nil {
		deps.OnReconnect = st.announcer.Announce
	}

	st.loop = node.NewLoop(cfg, deps)
	return st, nil
}

func newRadio(ctx context.Context, cfg *config.Config) (wifi.Radio, error) {
	switch cfg.Radio.Driver {
	case config.RadioDriverSim:
		return wifi.NewSimRadio(cfg.Radio.SimReachable), nil
	case config.RadioDriverNMCLI:
		r := wifi.NewNMCLI(cfg.Radio.Interface)
		check := wifi.CheckPrerequisites(ctx, r.Binary)
		if !check.Available {
			return nil, fmt.Errorf("%s: %s", check.Name, check.Message)
		}
		logging.Info("Radio driver ready",
			zap.String("binary", check.Path),
			zap.String("version", check.Version),
			zap.String("interface", cfg.Radio.Interface),
		)
		return r, nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q", cfg.Radio.Driver)
	}
}

func newPeripheral(cfg *config.Config, clk clock.Clock) (sensor.Peripheral, error) {
	switch cfg.Sensor.Driver {
	case config.SensorDriverSerial:
		return sensor.NewSerialBridge(cfg.Sensor.Port, cfg.Sensor.BaudRate, clk), nil
	case config.SensorDriverIIO:
		return sensor.NewIIO(cfg.Sensor.IIODir), nil
	case config.SensorDriverSim:
		return sensor.NewSim(cfg.Sensor.SimFailureRate, uint64(time.Now().UnixNano())), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
	}
}

// newTimeSource uses NTP unless simulating, where the host clock is trusted.
func newTimeSource(cfg *config.Config, clk clock.Clock) ntptime.Source {
	if simulate {
		return ntptime.System{Clock: clk}
	}
	return ntptime.NewNTP(cfg.Time.NTPServer, cfg.Time.UpdateInterval, cfg.Time.QueryTimeout, clk)
}

func newIndicator(cfg *config.Config) node.Indicator {
	if cfg.Indicator.Driver == config.IndicatorDriverGPIO {
		return node.NewGPIOIndicator(cfg.Indicator.GPIOValue)
	}
	return &node.LogIndicator{}
}
