package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. List values are separated by ListSeparator and are
// index-aligned: the n-th passphrase belongs to the n-th SSID.
const (
	EnvSensorID     = "TEMPNODE_SENSOR_ID"
	EnvPassword     = "TEMPNODE_PASSWORD"
	EnvReadingURL   = "TEMPNODE_READING_URL"
	EnvHeartbeatURL = "TEMPNODE_HEARTBEAT_URL"
	EnvSSIDs        = "TEMPNODE_SSIDS"
	EnvPassphrases  = "TEMPNODE_PASSPHRASES"
	EnvMQTTBroker   = "TEMPNODE_MQTT_BROKER"

	ListSeparator = ";"
)

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped; variables already set in the environment win.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays TEMPNODE_* variables from the process environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSensorID); ok && v != "" {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSensorID, err)
		}
		c.Identity.SensorID = id
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Identity.Password = v
	}
	if v, ok := lookup(EnvReadingURL); ok && v != "" {
		c.Endpoints.Reading = v
	}
	if v, ok := lookup(EnvHeartbeatURL); ok && v != "" {
		c.Endpoints.Heartbeat = v
	}
	if v, ok := lookup(EnvMQTTBroker); ok && v != "" {
		c.MQTT.Broker = v
	}

	ssids, haveSSIDs := lookup(EnvSSIDs)
	passphrases, havePass := lookup(EnvPassphrases)
	if haveSSIDs && ssids != "" {
		names := strings.Split(ssids, ListSeparator)
		var secrets []string
		if havePass {
			secrets = strings.Split(passphrases, ListSeparator)
		}
		if len(secrets) != len(names) {
			return fmt.Errorf("%s has %d entries but %s has %d", EnvSSIDs, len(names), EnvPassphrases, len(secrets))
		}
		networks := make([]Network, len(names))
		for i := range names {
			networks[i] = Network{SSID: names[i], Passphrase: secrets[i]}
		}
		c.Networks = networks
	}

	return nil
}
