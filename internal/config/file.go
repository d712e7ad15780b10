package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "tempnode"
	configFile = "config.yaml"
)

// GetConfigDir returns the OS-appropriate configuration directory for the application.
//   - Linux: $XDG_CONFIG_HOME/tempnode or $HOME/.config/tempnode
//   - macOS: $HOME/.config/tempnode
//   - Windows: %LOCALAPPDATA%\tempnode
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the YAML file at path over the compiled-in defaults. A missing
// file is not an error: the node runs on defaults alone. Fields absent from
// the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d (expected 1)", cfg.Version)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// ensureDefaults restores defaults for fields a file explicitly zeroed.
func (c *Config) ensureDefaults() {
	def := Default()

	if len(c.Networks) == 0 {
		c.Networks = def.Networks
	}
	if c.Endpoints.Reading == "" {
		c.Endpoints.Reading = def.Endpoints.Reading
	}
	if c.Endpoints.Heartbeat == "" {
		c.Endpoints.Heartbeat = def.Endpoints.Heartbeat
	}

	if c.Timing.AssociationTimeout == 0 {
		c.Timing.AssociationTimeout = def.Timing.AssociationTimeout
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = def.Timing.PollInterval
	}
	if c.Timing.SuccessDelay == 0 {
		c.Timing.SuccessDelay = def.Timing.SuccessDelay
	}
	if c.Timing.ErrorDelay == 0 {
		c.Timing.ErrorDelay = def.Timing.ErrorDelay
	}
	if c.Timing.HTTPTimeout == 0 {
		c.Timing.HTTPTimeout = def.Timing.HTTPTimeout
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Radio.Driver == "" {
		c.Radio.Driver = def.Radio.Driver
	}
	if c.Indicator.Driver == "" {
		c.Indicator.Driver = def.Indicator.Driver
	}

	if c.Time.NTPServer == "" {
		c.Time.NTPServer = def.Time.NTPServer
	}
	if c.Time.UpdateInterval == 0 {
		c.Time.UpdateInterval = def.Time.UpdateInterval
	}
	if c.Time.QueryTimeout == 0 {
		c.Time.QueryTimeout = def.Time.QueryTimeout
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.Timeout == 0 {
		c.MQTT.Timeout = def.MQTT.Timeout
	}
	if c.Announce.Port == 0 {
		c.Announce.Port = def.Announce.Port
	}
	if c.Collector.Listen == "" {
		c.Collector.Listen = def.Collector.Listen
	}
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# tempnode configuration
# Network passphrases and the farm password are stored in clear text.
# Keep this file readable by the node user only.

`)
	data = append(header, data...)

	// Write to a temporary file first so a crash never leaves a torn config.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
