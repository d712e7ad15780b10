// Package mqttmirror republishes every report the node sends to an MQTT
// broker, so a farm can consume readings without polling the collector.
//
// The mirror is best effort: a slow or absent broker is logged and never
// delays the control loop beyond the configured publish timeout.
package mqttmirror

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/report"
	"go.uber.org/zap"
)

// ErrDisabled is returned by Connect when no broker is configured.
var ErrDisabled = errors.New("mqtt mirror disabled: no broker configured")

// publisher is the part of mqtt.Client the mirror uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Mirror publishes report bodies to <prefix>/<sensor id>/<kind>.
type Mirror struct {
	client   publisher
	prefix   string
	sensorID int
	timeout  time.Duration
}

// Connect dials the configured broker.
func Connect(cfg config.MQTTConfig, sensorID int) (*Mirror, error) {
	if cfg.Broker == "" {
		return nil, ErrDisabled
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tempnode-" + strconv.Itoa(sensorID)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logging.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connecting to %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}

	logging.Info("MQTT mirror connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
	return newMirror(client, cfg.TopicPrefix, sensorID, cfg.Timeout), nil
}

func newMirror(client publisher, prefix string, sensorID int, timeout time.Duration) *Mirror {
	return &Mirror{client: client, prefix: prefix, sensorID: sensorID, timeout: timeout}
}

// Topic returns the topic a report kind is published on.
func Topic(prefix string, sensorID int, kind report.Kind) string {
	return fmt.Sprintf("%s/%d/%s", prefix, sensorID, kind)
}

// Mirror publishes body at QoS 0 and waits at most the publish timeout.
func (m *Mirror) Mirror(kind report.Kind, body []byte) {
	topic := Topic(m.prefix, m.sensorID, kind)
	token := m.client.Publish(topic, 0, false, body)

	if !token.WaitTimeout(m.timeout) {
		logging.Warn("MQTT publish timed out", zap.String("topic", topic), zap.Duration("timeout", m.timeout))
		return
	}
	if err := token.Error(); err != nil {
		logging.Warn("MQTT publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	logging.Debug("Report mirrored", zap.String("topic", topic))
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	m.client.Disconnect(250)
}
