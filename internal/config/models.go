package config

import "time"

// Config is the complete node configuration. It is built once at startup
// (Default, then file, then environment) and treated as immutable afterwards.
type Config struct {
	Version   int             `yaml:"version"`
	Identity  Identity        `yaml:"identity"`
	Networks  []Network       `yaml:"networks"` // Tried in order, cyclically
	Endpoints Endpoints       `yaml:"endpoints"`
	Timing    Timing          `yaml:"timing"`
	Policy    Policy          `yaml:"policy"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Radio     RadioConfig     `yaml:"radio"`
	Time      TimeConfig      `yaml:"time"`
	Indicator IndicatorConfig `yaml:"indicator"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Announce  AnnounceConfig  `yaml:"announce"`
	Collector CollectorConfig `yaml:"collector,omitempty"`
}

// Identity is how the collector recognises this node.
type Identity struct {
	SensorID int    `yaml:"sensor_id"`
	Password string `yaml:"password"` // Shared farm secret, sent in every payload
}

// Network is one credential candidate for association.
// An empty passphrase means an open network.
type Network struct {
	SSID       string `yaml:"ssid"`
	Passphrase string `yaml:"passphrase"`
}

// Endpoints are the collector URLs. Plain HTTP is expected.
type Endpoints struct {
	Reading   string `yaml:"reading"`
	Heartbeat string `yaml:"heartbeat"`
}

// Timing holds the policy durations of the control loop.
type Timing struct {
	AssociationTimeout time.Duration `yaml:"association_timeout"` // Per candidate network
	PollInterval       time.Duration `yaml:"poll_interval"`       // Link state polling while associating
	SuccessDelay       time.Duration `yaml:"success_delay"`       // After a delivered report or heartbeat
	ErrorDelay         time.Duration `yaml:"error_delay"`         // After a link-down iteration
	SensorWarmup       time.Duration `yaml:"sensor_warmup"`       // Settling time after sensor start
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
}

// Policy selects behavioural variants of the control loop.
type Policy struct {
	// LegacyLinkCheck skips the link check when the reading is valid and
	// assumes the link is up, as the first firmware did. A dropped link then
	// surfaces only as a transport failure of the POST.
	LegacyLinkCheck bool `yaml:"legacy_link_check"`
}

// SensorConfig selects and configures the temperature/humidity driver.
type SensorConfig struct {
	Driver   string `yaml:"driver"` // "serial", "iio" or "sim"
	Port     string `yaml:"port"`   // Serial bridge device
	BaudRate int    `yaml:"baud_rate"`
	IIODir   string `yaml:"iio_dir"` // e.g. /sys/bus/iio/devices/iio:device0
	// SimFailureRate is the probability of a NaN read for the sim driver.
	SimFailureRate float64 `yaml:"sim_failure_rate"`
}

// RadioConfig selects and configures the wireless link driver.
type RadioConfig struct {
	Driver    string `yaml:"driver"` // "nmcli" or "sim"
	Interface string `yaml:"interface"`
	// SimReachable lists the SSIDs the sim driver can associate with.
	SimReachable []string `yaml:"sim_reachable,omitempty"`
}

// TimeConfig configures the network time source.
type TimeConfig struct {
	NTPServer      string        `yaml:"ntp_server"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

// IndicatorConfig configures the status LED.
type IndicatorConfig struct {
	Driver    string `yaml:"driver"`     // "log" or "gpio"
	GPIOValue string `yaml:"gpio_value"` // e.g. /sys/class/gpio/gpio2/value
}

// MQTTConfig enables an optional mirror of every report to a broker.
// Empty Broker disables it.
type MQTTConfig struct {
	Broker      string        `yaml:"broker,omitempty"`
	TopicPrefix string        `yaml:"topic_prefix,omitempty"`
	ClientID    string        `yaml:"client_id,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// AnnounceConfig controls the mDNS announcement of the node.
type AnnounceConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// CollectorConfig configures the development collection service.
type CollectorConfig struct {
	Listen  string            `yaml:"listen,omitempty"`
	TLSCert string            `yaml:"tls_cert,omitempty"` // Serve HTTPS when both are set
	TLSKey  string            `yaml:"tls_key,omitempty"`
	Sensors []CollectorSensor `yaml:"sensors,omitempty"`
}

// CollectorSensor registers one sensor with the collector.
type CollectorSensor struct {
	ID           int      `yaml:"id"`
	Name         string   `yaml:"name"`
	Password     string   `yaml:"password"`
	CalibrationF float64  `yaml:"calibration_f"` // Added to TempF for display
	MinTempF     *float64 `yaml:"min_temp_f,omitempty"`
	MaxTempF     *float64 `yaml:"max_temp_f,omitempty"`
}

// Sensor drivers
const (
	SensorDriverSerial = "serial"
	SensorDriverIIO    = "iio"
	SensorDriverSim    = "sim"
)

// Radio drivers
const (
	RadioDriverNMCLI = "nmcli"
	RadioDriverSim   = "sim"
)

// Indicator drivers
const (
	IndicatorDriverLog  = "log"
	IndicatorDriverGPIO = "gpio"
)

// Default returns the compiled-in configuration of a field node.
func Default() *Config {
	return &Config{
		Version: 1,
		Identity: Identity{
			SensorID: 14,
			Password: "foobar",
		},
		Networks: []Network{
			{SSID: "EssexFarmNew", Passphrase: ""},
			{SSID: "Eskilstark", Passphrase: "essexcounty?"},
			{SSID: "Echo_Farm_5G", Passphrase: "litzington"},
			{SSID: "Echo _Farm", Passphrase: "litzington"},
			{SSID: "Echo Farm", Passphrase: "litzington"},
			{SSID: "Farmhouse_5G", Passphrase: "litzington"},
			{SSID: "Farmhouse 5G", Passphrase: "litzington"},
		},
		Endpoints: Endpoints{
			Reading:   "http://temperatures.chickenkiller.com/api/v1/reading",
			Heartbeat: "http://temperatures.chickenkiller.com/api/v1/heartbeat",
		},
		Timing: Timing{
			AssociationTimeout: 10 * time.Second,
			PollInterval:       500 * time.Millisecond,
			SuccessDelay:       60 * time.Second,
			ErrorDelay:         5 * time.Second,
			SensorWarmup:       2 * time.Second,
			HTTPTimeout:        5 * time.Second,
		},
		Sensor: SensorConfig{
			Driver:         SensorDriverSerial,
			Port:           "/dev/ttyUSB0",
			BaudRate:       115200,
			IIODir:         "/sys/bus/iio/devices/iio:device0",
			SimFailureRate: 0.1,
		},
		Radio: RadioConfig{
			Driver:    RadioDriverNMCLI,
			Interface: "wlan0",
		},
		Time: TimeConfig{
			NTPServer:      "pool.ntp.org",
			UpdateInterval: 60 * time.Second,
			QueryTimeout:   5 * time.Second,
		},
		Indicator: IndicatorConfig{
			Driver:    IndicatorDriverLog,
			GPIOValue: "/sys/class/gpio/gpio2/value",
		},
		MQTT: MQTTConfig{
			TopicPrefix: "tempnode",
			Timeout:     5 * time.Second,
		},
		Announce: AnnounceConfig{
			Enabled: true,
			Port:    80,
		},
		Collector: CollectorConfig{
			Listen: ":8000",
		},
	}
}

// Clone returns a deep copy so holders cannot observe later mutation.
func (c *Config) Clone() *Config {
	out := *c
	out.Networks = append([]Network(nil), c.Networks...)
	out.Radio.SimReachable = append([]string(nil), c.Radio.SimReachable...)
	out.Collector.Sensors = append([]CollectorSensor(nil), c.Collector.Sensors...)
	return &out
}

// Simulate switches every hardware driver to its simulated variant. All
// configured networks are reachable unless the file narrowed them.
func (c *Config) Simulate() {
	c.Sensor.Driver = SensorDriverSim
	c.Radio.Driver = RadioDriverSim
	c.Indicator.Driver = IndicatorDriverLog
	if len(c.Radio.SimReachable) == 0 {
		for _, n := range c.Networks {
			c.Radio.SimReachable = append(c.Radio.SimReachable, n.SSID)
		}
	}
}
