package node

import (
	"os"
	"sync"

	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// Indicator is the status LED. It is on only while a valid reading is being
// handled.
type Indicator interface {
	Set(on bool)
}

// LogIndicator logs state changes instead of driving hardware.
type LogIndicator struct {
	mu sync.Mutex
	on bool
}

func (l *LogIndicator) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on == on {
		return
	}
	l.on = on
	logging.Debug("Indicator", zap.Bool("on", on))
}

// On reports the current state.
func (l *LogIndicator) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// GPIOIndicator drives an LED through a sysfs GPIO value file. The pin must
// already be exported and configured as an output.
type GPIOIndicator struct {
	path string
}

// NewGPIOIndicator returns an indicator writing to path, e.g.
// /sys/class/gpio/gpio2/value.
func NewGPIOIndicator(path string) *GPIOIndicator {
	return &GPIOIndicator{path: path}
}

func (g *GPIOIndicator) Set(on bool) {
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	if err := os.WriteFile(g.path, value, 0644); err != nil {
		logging.Warn("Failed to drive indicator", zap.String("path", g.path), zap.Error(err))
	}
}
