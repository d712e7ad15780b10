package sensor

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

const (
	iioTempFile     = "in_temp_input"
	iioHumidityFile = "in_humidityrelative_input"
)

// IIO reads a DHT11/DHT22 through the Linux dht11 IIO driver, which exposes
// millidegrees Celsius and milli-percent relative humidity as sysfs files.
type IIO struct {
	dir string
}

// NewIIO returns a driver for the IIO device directory, e.g.
// /sys/bus/iio/devices/iio:device0.
func NewIIO(dir string) *IIO {
	return &IIO{dir: dir}
}

func (s *IIO) ReadHumidity() float64 {
	return s.readMilli(iioHumidityFile)
}

func (s *IIO) ReadTemperatureC() float64 {
	return s.readMilli(iioTempFile)
}

func (s *IIO) ReadTemperatureF() float64 {
	return CToF(s.ReadTemperatureC())
}

// Reinitialize checks that the device directory is still present. The
// kernel driver restarts the sensor on every conversion.
func (s *IIO) Reinitialize() error {
	if _, err := os.Stat(filepath.Join(s.dir, iioTempFile)); err != nil {
		return fmt.Errorf("iio device %s unavailable: %w", s.dir, err)
	}
	return nil
}

func (s *IIO) readMilli(name string) float64 {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		// The driver returns EIO on a checksum or timing failure.
		logging.Debug("IIO read failed", zap.String("file", path), zap.Error(err))
		return math.NaN()
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		logging.Debug("IIO value unparseable", zap.String("file", path), zap.Error(err))
		return math.NaN()
	}
	return float64(v) / 1000
}
