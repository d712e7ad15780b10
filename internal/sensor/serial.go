package sensor

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/logging"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

const (
	// DefaultBaudRate matches the bridge firmware.
	DefaultBaudRate = 115200

	// MinInterval is the shortest time between two conversions of a DHT22.
	// Reads within this window reuse the previous measurement.
	MinInterval = 2 * time.Second

	readTimeout = time.Second
	maxLineLen  = 64
)

// serialPort is the subset of serial.Port the bridge uses.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

type openFunc func(name string, baudRate int) (serialPort, error)

func openSerial(name string, baudRate int) (serialPort, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baudRate})
}

// SerialBridge talks to a microcontroller that owns the DHT22. The bridge
// answers the query "R\n" with "<humidity>,<celsius>\n" and reports a failed
// conversion as "nan,nan".
type SerialBridge struct {
	port     string
	baudRate int
	clock    clock.Clock
	open     openFunc

	mu       sync.Mutex
	conn     serialPort
	last     time.Time
	humidity float64
	tempC    float64
}

// NewSerialBridge returns a bridge on the named port. The port is opened
// lazily on the first read or by Reinitialize.
func NewSerialBridge(port string, baudRate int, clk clock.Clock) *SerialBridge {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &SerialBridge{
		port:     port,
		baudRate: baudRate,
		clock:    clk,
		open:     openSerial,
		humidity: math.NaN(),
		tempC:    math.NaN(),
	}
}

func (b *SerialBridge) ReadHumidity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.measure()
	return b.humidity
}

func (b *SerialBridge) ReadTemperatureC() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.measure()
	return b.tempC
}

func (b *SerialBridge) ReadTemperatureF() float64 {
	return CToF(b.ReadTemperatureC())
}

// Reinitialize closes and reopens the port, which resets the bridge MCU on
// boards that wire DTR to reset.
func (b *SerialBridge) Reinitialize() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeLocked()
	b.last = time.Time{}
	return b.connectLocked()
}

// Close releases the serial port.
func (b *SerialBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
	return nil
}

func (b *SerialBridge) connectLocked() error {
	conn, err := b.open(b.port, b.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.port, err)
	}
	if err := conn.SetReadTimeout(readTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", b.port, err)
	}
	b.conn = conn
	return nil
}

func (b *SerialBridge) closeLocked() {
	if b.conn == nil {
		return
	}
	if err := b.conn.Close(); err != nil {
		logging.Debug("Error closing serial port", zap.String("port", b.port), zap.Error(err))
	}
	b.conn = nil
}

// measure refreshes the cached values unless the last conversion is recent.
func (b *SerialBridge) measure() {
	now := b.clock.Now()
	if !b.last.IsZero() && now.Sub(b.last) < MinInterval {
		return
	}
	b.last = now

	h, c, err := b.query()
	if err != nil {
		logging.Warn("Serial sensor query failed", zap.String("port", b.port), zap.Error(err))
		h, c = math.NaN(), math.NaN()
	}
	b.humidity, b.tempC = h, c
}

func (b *SerialBridge) query() (float64, float64, error) {
	if b.conn == nil {
		if err := b.connectLocked(); err != nil {
			return 0, 0, err
		}
	}

	if err := b.conn.ResetInputBuffer(); err != nil {
		b.closeLocked()
		return 0, 0, fmt.Errorf("failed to flush input: %w", err)
	}
	if _, err := b.conn.Write([]byte("R\n")); err != nil {
		b.closeLocked()
		return 0, 0, fmt.Errorf("failed to send query: %w", err)
	}

	line, err := b.readLine()
	if err != nil {
		return 0, 0, err
	}
	return parseLine(line)
}

// readLine reads up to the next newline. A zero-length read means the port
// read timeout expired.
func (b *SerialBridge) readLine() (string, error) {
	var line bytes.Buffer
	buf := make([]byte, 16)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			b.closeLocked()
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		if n == 0 {
			return "", fmt.Errorf("no response within %s", readTimeout)
		}
		chunk := buf[:n]
		if i := bytes.IndexByte(chunk, '\n'); i >= 0 {
			line.Write(chunk[:i])
			return line.String(), nil
		}
		line.Write(chunk)
		if line.Len() > maxLineLen {
			return "", fmt.Errorf("response exceeds %d bytes", maxLineLen)
		}
	}
}

// parseLine parses "<humidity>,<celsius>". The literal "nan" parses to NaN.
func parseLine(line string) (humidity, tempC float64, err error) {
	line = strings.TrimSpace(line)
	hs, cs, ok := strings.Cut(line, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid format, expected '<humidity>,<celsius>', got %q", line)
	}

	humidity, err = strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid humidity %q: %w", hs, err)
	}
	tempC, err = strconv.ParseFloat(strings.TrimSpace(cs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid temperature %q: %w", cs, err)
	}
	return humidity, tempC, nil
}

// Port describes a serial port candidate for the bridge.
type Port struct {
	Name         string
	Description  string
	VID          string
	PID          string
	SerialNumber string
	USB          bool
}

// Ports lists the serial ports on this host.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", listErr)
		}
		result := make([]Port, 0, len(names))
		for _, name := range names {
			result = append(result, Port{Name: name, Description: name})
		}
		return result, nil
	}

	result := make([]Port, 0, len(details))
	for _, d := range details {
		desc := d.Product
		if desc == "" {
			desc = d.Name
		}
		result = append(result, Port{
			Name:         d.Name,
			Description:  desc,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			USB:          d.IsUSB,
		})
	}
	return result, nil
}
