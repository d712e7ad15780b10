package mqttmirror

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/report"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(complete bool, err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	token        mqtt.Token
	published    []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = true }

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		id     int
		kind   report.Kind
		want   string
	}{
		{"tempnode", 14, report.KindReading, "tempnode/14/reading"},
		{"farm/barn", 3, report.KindHeartbeat, "farm/barn/3/heartbeat"},
	}
	for _, tt := range tests {
		if got := Topic(tt.prefix, tt.id, tt.kind); got != tt.want {
			t.Errorf("Topic(%q, %d, %s) = %q, want %q", tt.prefix, tt.id, tt.kind, got, tt.want)
		}
	}
}

func TestMirrorPublishes(t *testing.T) {
	client := &fakeClient{token: newToken(true, nil)}
	m := newMirror(client, "tempnode", 14, time.Second)

	body := []byte(`{"SensorID": "14", "Password": "foobar"}`)
	m.Mirror(report.KindHeartbeat, body)

	if len(client.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.published))
	}
	p := client.published[0]
	if p.topic != "tempnode/14/heartbeat" || p.qos != 0 || string(p.payload) != string(body) {
		t.Errorf("published %+v", p)
	}

	m.Close()
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
}

func TestMirrorToleratesBrokerFailures(t *testing.T) {
	tests := []struct {
		name  string
		token mqtt.Token
	}{
		{name: "error", token: newToken(true, errors.New("not connected"))},
		{name: "timeout", token: newToken(false, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{token: tt.token}
			m := newMirror(client, "tempnode", 14, 10*time.Millisecond)

			start := time.Now()
			m.Mirror(report.KindReading, []byte("{}"))
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Mirror() blocked for %v", elapsed)
			}
		})
	}
}

func TestConnectDisabled(t *testing.T) {
	if _, err := Connect(config.MQTTConfig{}, 14); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}
