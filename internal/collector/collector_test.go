package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/tempnode/internal/config"
)

var fixedNow = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(config.CollectorConfig{
		Sensors: []config.CollectorSensor{
			{ID: 14, Name: "Brooder", Password: "foobar", CalibrationF: -1.5, MaxTempF: ptr(75)},
			{ID: 21, Name: "Barn", Password: "hay", MinTempF: ptr(40)},
		},
	})
	s.now = func() time.Time { return fixedNow }
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(data))
}

func TestReadingAccepted(t *testing.T) {
	s, ts := newTestServer(t)

	body := `{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00", "TimeStamp": "2023-11-14T22:13:20Z"}`
	code, text := post(t, ts.URL+PathReading, body)
	if code != http.StatusOK || text != "OK" {
		t.Fatalf("POST reading = %d %q, want 200 OK", code, text)
	}

	got, ok := s.Store().Get(14)
	if !ok {
		t.Fatal("sensor 14 missing")
	}
	if got.LastTempF == nil || *got.LastTempF != 72.5 {
		t.Errorf("LastTempF = %v, want 72.5", got.LastTempF)
	}
	if got.DisplayTempF == nil || *got.DisplayTempF != 71 {
		t.Errorf("DisplayTempF = %v, want 71 after calibration", got.DisplayTempF)
	}
	if got.LastTimeStamp == nil || !got.LastTimeStamp.Equal(fixedNow) {
		t.Errorf("LastTimeStamp = %v, want %v", got.LastTimeStamp, fixedNow)
	}
	if got.OutOfRange {
		t.Error("71°F should be within range")
	}
	if len(got.Readings) != 1 {
		t.Errorf("history has %d readings, want 1", len(got.Readings))
	}
}

func TestReportRejections(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantText string
	}{
		{
			name:     "unknown sensor",
			path:     PathReading,
			body:     `{"SensorID": "99", "Password": "foobar", "TempF": "70", "Humidity": "40"}`,
			wantCode: http.StatusBadRequest,
			wantText: "No such sensor",
		},
		{
			name:     "wrong password",
			path:     PathReading,
			body:     `{"SensorID": "14", "Password": "nope", "TempF": "70", "Humidity": "40"}`,
			wantCode: http.StatusUnauthorized,
			wantText: "Unauthorized",
		},
		{
			name:     "heartbeat wrong password",
			path:     PathHeartbeat,
			body:     `{"SensorID": "14", "Password": "nope"}`,
			wantCode: http.StatusUnauthorized,
			wantText: "Unauthorized",
		},
		{
			name:     "malformed json",
			path:     PathReading,
			body:     `{"SensorID": `,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non numeric temperature",
			path:     PathReading,
			body:     `{"SensorID": "14", "Password": "foobar", "TempF": "nan", "Humidity": "40"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing humidity",
			path:     PathReading,
			body:     `{"SensorID": 14, "Password": "foobar", "TempF": 70}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad timestamp",
			path:     PathReading,
			body:     `{"SensorID": 14, "Password": "foobar", "TempF": 70, "Humidity": 40, "TimeStamp": "yesterday"}`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ts := newTestServer(t)
			code, text := post(t, ts.URL+tt.path, tt.body)
			if code != tt.wantCode {
				t.Errorf("status = %d, want %d (%s)", code, tt.wantCode, text)
			}
			if tt.wantText != "" && text != tt.wantText {
				t.Errorf("body = %q, want %q", text, tt.wantText)
			}
			if got, _ := s.Store().Get(14); got.LastTempF != nil || got.LastHeartbeat != nil {
				t.Error("rejected report changed sensor state")
			}
		})
	}
}

func TestReadingOutOfRange(t *testing.T) {
	s, ts := newTestServer(t)

	code, _ := post(t, ts.URL+PathReading, `{"SensorID": 21, "Password": "hay", "TempF": 35.2, "Humidity": 80}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	got, _ := s.Store().Get(21)
	if !got.OutOfRange {
		t.Error("35.2°F below min 40 should be out of range")
	}
	if got.LastTimeStamp == nil || !got.LastTimeStamp.Equal(fixedNow) {
		t.Errorf("missing TimeStamp should default to receive time, got %v", got.LastTimeStamp)
	}
}

func TestHeartbeat(t *testing.T) {
	s, ts := newTestServer(t)

	code, text := post(t, ts.URL+PathHeartbeat, `{"SensorID": "14", "Password": "foobar"}`)
	if code != http.StatusOK || text != "OK" {
		t.Fatalf("POST heartbeat = %d %q", code, text)
	}
	got, _ := s.Store().Get(14)
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(fixedNow) {
		t.Errorf("LastHeartbeat = %v, want %v", got.LastHeartbeat, fixedNow)
	}
	if got.LastTempF != nil {
		t.Error("heartbeat must not record a reading")
	}
}

func TestSensorsAPI(t *testing.T) {
	_, ts := newTestServer(t)
	post(t, ts.URL+PathReading, `{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00"}`)

	resp, err := http.Get(ts.URL + PathSensors)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []Sensor
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 || list[0].ID != 14 || list[1].ID != 21 {
		t.Fatalf("list = %+v, want sensors 14 and 21", list)
	}
	if list[0].Readings != nil {
		t.Error("list should not include reading history")
	}

	tests := []struct {
		path string
		want int
	}{
		{PathSensors + "/14", http.StatusOK},
		{PathSensors + "/99", http.StatusNotFound},
		{PathSensors + "/abc", http.StatusBadRequest},
		{PathHealth, http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + PathReading)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET reading = %d, want 405", resp.StatusCode)
	}
}

func TestMetricsExposed(t *testing.T) {
	_, ts := newTestServer(t)
	post(t, ts.URL+PathReading, `{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00"}`)
	post(t, ts.URL+PathReading, `{"SensorID": "99", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00"}`)

	resp, err := http.Get(ts.URL + PathMetrics)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	text := string(data)

	for _, want := range []string{
		`tempnode_reports_total{kind="reading",result="accepted"} 1`,
		`tempnode_reports_total{kind="reading",result="rejected"} 1`,
		`tempnode_sensor_temperature_fahrenheit{sensor="14"} 71`,
		`tempnode_sensor_humidity_percent{sensor="14"} 41`,
		`tempnode_http_requests_total{route="reading",status="400"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestLiveFeed(t *testing.T) {
	s, ts := newTestServer(t)

	feed, err := FeedURL(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan error, 1)
	go func() { done <- Subscribe(ctx, feed, func(ev Event) { events <- ev }) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	post(t, ts.URL+PathHeartbeat, `{"SensorID": "14", "Password": "foobar"}`)

	select {
	case ev := <-events:
		if ev.Kind != KindHeartbeat || ev.Sensor.ID != 14 {
			t.Errorf("event = %+v, want heartbeat from 14", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe() = %v, want nil after cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestSubscribeCollectorShutdown(t *testing.T) {
	s, ts := newTestServer(t)

	feed, err := FeedURL(ts.URL)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := runtime.NumGoroutine()
	done := make(chan error, 1)
	go func() { done <- Subscribe(ctx, feed, func(Event) {}) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.hub.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Subscribe() = %v, want nil on a normal close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after the collector closed the feed")
	}

	// ctx is still live: nothing Subscribe started may outlive it.
	deadline = time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines = %d after Subscribe returned, want <= %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`"72.50"`, 72.5, false},
		{`" 41 "`, 41, false},
		{`72.5`, 72.5, false},
		{`"-3"`, -3, false},
		{`"abc"`, 0, true},
		{`"NaN"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var n number
		err := n.UnmarshalJSON([]byte(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("UnmarshalJSON(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && float64(n) != tt.want {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tt.in, float64(n), tt.want)
		}
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8000", "ws://127.0.0.1:8000/ws", false},
		{"https://collector.local/", "wss://collector.local/ws", false},
		{"ws://host:1/base", "ws://host:1/base/ws", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := FeedURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("FeedURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FeedURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStoreHistoryBounded(t *testing.T) {
	st := NewStore([]config.CollectorSensor{{ID: 1, Password: "p"}})
	for i := 0; i < historySize+10; i++ {
		if _, err := st.RecordReading(1, Reading{TempF: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := st.Get(1)
	if len(got.Readings) != historySize {
		t.Fatalf("history = %d, want %d", len(got.Readings), historySize)
	}
	if got.Readings[0].TempF != 10 {
		t.Errorf("oldest reading = %v, want 10", got.Readings[0].TempF)
	}
	if _, err := st.RecordHeartbeat(2, fixedNow); err != ErrNoSuchSensor {
		t.Errorf("RecordHeartbeat(unknown) = %v, want ErrNoSuchSensor", err)
	}
}
