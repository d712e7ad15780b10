package config

import (
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/multierr"
)

// ErrNoNetworks is returned when the credential list is empty.
var ErrNoNetworks = errors.New("at least one network must be configured")

// Validate reports every problem with the configuration, not just the first.
func (c *Config) Validate() error {
	var err error

	if c.Identity.SensorID <= 0 {
		err = multierr.Append(err, fmt.Errorf("identity.sensor_id must be positive, got %d", c.Identity.SensorID))
	}
	if c.Identity.Password == "" {
		err = multierr.Append(err, errors.New("identity.password must not be empty"))
	}

	if len(c.Networks) == 0 {
		err = multierr.Append(err, ErrNoNetworks)
	}
	for i, n := range c.Networks {
		if n.SSID == "" {
			err = multierr.Append(err, fmt.Errorf("networks[%d].ssid must not be empty", i))
		}
	}

	err = multierr.Append(err, validateEndpoint("endpoints.reading", c.Endpoints.Reading))
	err = multierr.Append(err, validateEndpoint("endpoints.heartbeat", c.Endpoints.Heartbeat))

	t := c.Timing
	if t.AssociationTimeout <= 0 {
		err = multierr.Append(err, errors.New("timing.association_timeout must be positive"))
	}
	if t.PollInterval <= 0 || t.PollInterval > t.AssociationTimeout {
		err = multierr.Append(err, errors.New("timing.poll_interval must be positive and not exceed association_timeout"))
	}
	if t.SuccessDelay <= 0 {
		err = multierr.Append(err, errors.New("timing.success_delay must be positive"))
	}
	if t.ErrorDelay <= 0 {
		err = multierr.Append(err, errors.New("timing.error_delay must be positive"))
	}
	if t.SensorWarmup < 0 {
		err = multierr.Append(err, errors.New("timing.sensor_warmup must not be negative"))
	}
	if t.HTTPTimeout <= 0 {
		err = multierr.Append(err, errors.New("timing.http_timeout must be positive"))
	}

	switch c.Sensor.Driver {
	case SensorDriverSerial:
		if c.Sensor.Port == "" {
			err = multierr.Append(err, errors.New("sensor.port is required for the serial driver"))
		}
	case SensorDriverIIO:
		if c.Sensor.IIODir == "" {
			err = multierr.Append(err, errors.New("sensor.iio_dir is required for the iio driver"))
		}
	case SensorDriverSim:
		if c.Sensor.SimFailureRate < 0 || c.Sensor.SimFailureRate > 1 {
			err = multierr.Append(err, errors.New("sensor.sim_failure_rate must be within [0, 1]"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown sensor.driver %q", c.Sensor.Driver))
	}

	switch c.Radio.Driver {
	case RadioDriverNMCLI, RadioDriverSim:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown radio.driver %q", c.Radio.Driver))
	}

	switch c.Indicator.Driver {
	case IndicatorDriverLog:
	case IndicatorDriverGPIO:
		if c.Indicator.GPIOValue == "" {
			err = multierr.Append(err, errors.New("indicator.gpio_value is required for the gpio driver"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown indicator.driver %q", c.Indicator.Driver))
	}

	return err
}

func validateEndpoint(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http URL, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %q", field, raw)
	}
	return nil
}

// Problems splits a Validate error into its individual messages.
func Problems(err error) []string {
	errs := multierr.Errors(err)
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
