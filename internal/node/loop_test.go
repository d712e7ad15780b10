package node

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/report"
	"github.com/muurk/tempnode/internal/sensor"
	"github.com/muurk/tempnode/internal/wifi"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// events is a shared call log so tests can assert ordering across fakes.
type events []string

func (e *events) add(s string) { *e = append(*e, s) }

type fakeAssociator struct {
	log        *events
	link       wifi.LinkState
	linkReads  int
	ensures    int
	ensureErr  error
	reconnects bool // EnsureAssociated brings the link up
}

func (a *fakeAssociator) EnsureAssociated(ctx context.Context) error {
	a.ensures++
	a.log.add("ensure")
	if a.ensureErr != nil {
		return a.ensureErr
	}
	if a.reconnects {
		a.link = wifi.Connected
	}
	return nil
}

func (a *fakeAssociator) LinkState() wifi.LinkState {
	a.linkReads++
	a.log.add("link")
	return a.link
}

func (a *fakeAssociator) Current() string { return "EssexFarmNew" }

type fakeSampler struct {
	log     *events
	reading sensor.Reading
	reinits int
}

func (s *fakeSampler) Sample() sensor.Reading {
	s.log.add("sample")
	return s.reading
}

func (s *fakeSampler) Reinitialize() error {
	s.reinits++
	s.log.add("reinit")
	return nil
}

type postCall struct {
	endpoint string
	body     string
}

type fakePoster struct {
	log    *events
	calls  []postCall
	status int
}

func (p *fakePoster) Post(ctx context.Context, endpoint string, payload report.Payload) report.Response {
	body, _ := payload.MarshalJSON()
	p.calls = append(p.calls, postCall{endpoint: endpoint, body: string(body)})
	p.log.add("post")
	return report.Response{StatusCode: p.status}
}

type fakeTime struct {
	log     *events
	epoch   int64
	updates int
	synced  bool
}

func (f *fakeTime) Update() {
	f.updates++
	f.log.add("time_update")
}

func (f *fakeTime) Synced() bool               { return f.synced }
func (f *fakeTime) CurrentEpochSeconds() int64 { return f.epoch }

type recordingIndicator struct {
	log *events
}

func (r *recordingIndicator) Set(on bool) {
	if on {
		r.log.add("led_on")
	} else {
		r.log.add("led_off")
	}
}

type harness struct {
	log       *events
	assoc     *fakeAssociator
	sampler   *fakeSampler
	poster    *fakePoster
	time      *fakeTime
	clock     *clock.Fake
	loop      *Loop
	cfg       *config.Config
	outcomes  []Outcome
	reconnect []string
}

var (
	validReading   = sensor.Reading{TemperatureF: 72.5, TemperatureC: 22.5, Humidity: 41.0, Valid: true}
	invalidReading = sensor.Reading{TemperatureF: math.NaN(), TemperatureC: math.NaN(), Humidity: math.NaN()}
)

func newHarness(reading sensor.Reading, link wifi.LinkState) *harness {
	log := &events{}
	h := &harness{
		log:     log,
		assoc:   &fakeAssociator{log: log, link: link, reconnects: true},
		sampler: &fakeSampler{log: log, reading: reading},
		poster:  &fakePoster{log: log, status: http.StatusOK},
		time:    &fakeTime{log: log, epoch: 1700000000, synced: true},
		clock:   clock.NewFake(time.Unix(1700000000, 0)),
		cfg:     config.Default(),
	}
	h.loop = h.build()
	return h
}

func (h *harness) build() *Loop {
	return NewLoop(h.cfg, Deps{
		Associator: h.assoc,
		Sampler:    h.sampler,
		Poster:     h.poster,
		Time:       h.time,
		Indicator:  &recordingIndicator{log: h.log},
		Clock:      h.clock,
		OnReconnect: func(ctx context.Context, ssid string) {
			h.reconnect = append(h.reconnect, ssid)
		},
		OnOutcome: func(o Outcome) { h.outcomes = append(h.outcomes, o) },
	})
}

func TestStepPaths(t *testing.T) {
	const (
		readingURL   = "http://temperatures.chickenkiller.com/api/v1/reading"
		heartbeatURL = "http://temperatures.chickenkiller.com/api/v1/heartbeat"
	)

	tests := []struct {
		name       string
		reading    sensor.Reading
		link       wifi.LinkState
		wantPath   Path
		wantEvents []string
		wantPosts  []postCall
		wantDelay  time.Duration
		wantReinit int
		wantEnsure int
		wantUpdate int
	}{
		{
			name:       "valid and connected posts the reading",
			reading:    validReading,
			link:       wifi.Connected,
			wantPath:   PathReport,
			wantEvents: []string{"sample", "link", "led_on", "time_update", "post", "led_off"},
			wantPosts: []postCall{{
				endpoint: readingURL,
				body:     `{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00", "TimeStamp": "2023-11-14T22:13:20Z"}`,
			}},
			wantDelay:  60 * time.Second,
			wantUpdate: 1,
		},
		{
			name:       "invalid and connected posts a heartbeat",
			reading:    invalidReading,
			link:       wifi.Connected,
			wantPath:   PathHeartbeat,
			wantEvents: []string{"sample", "link", "post"},
			wantPosts: []postCall{{
				endpoint: heartbeatURL,
				body:     `{"SensorID": "14", "Password": "foobar"}`,
			}},
			wantDelay: 60 * time.Second,
		},
		{
			name:       "invalid and disconnected restarts the sensor and reconnects",
			reading:    invalidReading,
			link:       wifi.Disconnected,
			wantPath:   PathSensorReset,
			wantEvents: []string{"sample", "link", "reinit", "ensure"},
			wantDelay:  5 * time.Second,
			wantReinit: 1,
			wantEnsure: 1,
		},
		{
			name:       "valid and disconnected blinks and reconnects",
			reading:    validReading,
			link:       wifi.Disconnected,
			wantPath:   PathReconnect,
			wantEvents: []string{"sample", "link", "led_on", "led_off", "ensure"},
			wantDelay:  5 * time.Second,
			wantEnsure: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.reading, tt.link)
			o := h.loop.Step(context.Background())

			if o.Path != tt.wantPath {
				t.Errorf("Path = %v, want %v", o.Path, tt.wantPath)
			}
			if !reflect.DeepEqual([]string(*h.log), tt.wantEvents) {
				t.Errorf("events = %v, want %v", *h.log, tt.wantEvents)
			}
			if !reflect.DeepEqual(h.poster.calls, tt.wantPosts) {
				t.Errorf("posts = %+v, want %+v", h.poster.calls, tt.wantPosts)
			}
			if o.Delay != tt.wantDelay {
				t.Errorf("Delay = %v, want %v", o.Delay, tt.wantDelay)
			}
			if h.sampler.reinits != tt.wantReinit {
				t.Errorf("reinits = %d, want %d", h.sampler.reinits, tt.wantReinit)
			}
			if h.assoc.ensures != tt.wantEnsure {
				t.Errorf("ensures = %d, want %d", h.assoc.ensures, tt.wantEnsure)
			}
			if (o.Response != nil) != (len(tt.wantPosts) > 0) {
				t.Errorf("Response = %+v", o.Response)
			}
			if tt.wantEnsure > 0 && !reflect.DeepEqual(h.reconnect, []string{"EssexFarmNew"}) {
				t.Errorf("OnReconnect calls = %v", h.reconnect)
			}
			if h.time.updates != tt.wantUpdate {
				t.Errorf("time updates = %d, want %d", h.time.updates, tt.wantUpdate)
			}
			if len(h.clock.Sleeps()) != 0 {
				t.Errorf("Step slept: %v", h.clock.Sleeps())
			}
			if len(h.outcomes) != 1 || h.outcomes[0].Iteration != 1 {
				t.Errorf("outcomes = %+v", h.outcomes)
			}
		})
	}
}

func TestTransitionsComplete(t *testing.T) {
	for _, valid := range []bool{true, false} {
		for _, connected := range []bool{true, false} {
			tr, ok := Transitions[Condition{Valid: valid, Connected: connected}]
			if !ok {
				t.Fatalf("no transition for valid=%v connected=%v", valid, connected)
			}
			if !connected && tr.Post != EndpointNone {
				t.Errorf("%v posts while disconnected", tr.Path)
			}
			if !connected != tr.Reconnect {
				t.Errorf("%v: Reconnect = %v with connected=%v", tr.Path, tr.Reconnect, connected)
			}
			if tr.Indicate != valid {
				t.Errorf("%v: Indicate = %v with valid=%v", tr.Path, tr.Indicate, valid)
			}
		}
	}
}

func TestStepLegacyLinkCheck(t *testing.T) {
	h := newHarness(validReading, wifi.Disconnected)
	h.cfg.Policy.LegacyLinkCheck = true
	h.loop = h.build()

	o := h.loop.Step(context.Background())

	if o.Path != PathReport {
		t.Errorf("Path = %v, want report", o.Path)
	}
	if h.assoc.linkReads != 0 {
		t.Errorf("link read %d times, want 0 for a valid reading", h.assoc.linkReads)
	}

	// Invalid readings still consult the link.
	h.sampler.reading = invalidReading
	if o := h.loop.Step(context.Background()); o.Path != PathSensorReset {
		t.Errorf("Path = %v, want sensor_reset", o.Path)
	}
	if h.assoc.linkReads != 1 {
		t.Errorf("link read %d times, want 1", h.assoc.linkReads)
	}
}

func TestStepCancelledDuringReconnect(t *testing.T) {
	h := newHarness(invalidReading, wifi.Disconnected)
	h.assoc.ensureErr = context.Canceled

	o := h.loop.Step(context.Background())
	if !errors.Is(o.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", o.Err)
	}
	if len(h.reconnect) != 0 {
		t.Error("OnReconnect ran although reconnect failed")
	}
}

func TestSetup(t *testing.T) {
	h := newHarness(validReading, wifi.Disconnected)

	if err := h.loop.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if want := []string{"ensure", "time_update", "reinit", "led_off"}; !reflect.DeepEqual([]string(*h.log), want) {
		t.Errorf("events = %v, want %v", *h.log, want)
	}
	if h.time.updates != 1 {
		t.Errorf("time updates = %d, want 1", h.time.updates)
	}
	if got := h.clock.Sleeps(); !reflect.DeepEqual(got, []time.Duration{2 * time.Second}) {
		t.Errorf("sleeps = %v, want sensor warmup", got)
	}
}

func TestSetupUnsyncedTime(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	prev := logging.GetLogger()
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(prev) })

	h := newHarness(validReading, wifi.Connected)
	h.time.synced = false

	if err := h.loop.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if n := logs.FilterMessageSnippet("Time not synchronized").Len(); n != 1 {
		t.Errorf("unsynced warnings = %d, want 1", n)
	}

	h = newHarness(validReading, wifi.Connected)
	if err := h.loop.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if n := logs.FilterMessageSnippet("Time not synchronized").Len(); n != 1 {
		t.Errorf("synced source logged a warning")
	}
}

func TestRunPacesIterations(t *testing.T) {
	h := newHarness(validReading, wifi.Connected)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Link drops after the first report, then the sensor fails.
	h.loop.deps.OnOutcome = func(o Outcome) {
		h.outcomes = append(h.outcomes, o)
		switch o.Iteration {
		case 1:
			h.assoc.link = wifi.Disconnected
		case 2:
			h.sampler.reading = invalidReading
		case 3:
			cancel()
		}
	}

	err := h.loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	var paths []Path
	for _, o := range h.outcomes {
		paths = append(paths, o.Path)
	}
	if want := []Path{PathReport, PathReconnect, PathHeartbeat}; !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if got, want := h.clock.Sleeps(), []time.Duration{60 * time.Second, 5 * time.Second}; !reflect.DeepEqual(got, want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}
}

// End-to-end through the real reporting client.
func TestStepEndToEnd(t *testing.T) {
	tests := []struct {
		name     string
		reading  sensor.Reading
		wantPath string
		wantBody string
	}{
		{
			name:     "reading",
			reading:  validReading,
			wantPath: "/api/v1/reading",
			wantBody: `{"SensorID": "14", "Password": "foobar", "TempF": "72.50", "Humidity": "41.00", "TimeStamp": "2023-11-14T22:13:20Z"}`,
		},
		{
			name:     "heartbeat",
			reading:  invalidReading,
			wantPath: "/api/v1/heartbeat",
			wantBody: `{"SensorID": "14", "Password": "foobar"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotBody string
			requests := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests++
				gotPath = r.URL.Path
				b, _ := io.ReadAll(r.Body)
				gotBody = string(b)
				_, _ = w.Write([]byte("OK"))
			}))
			defer server.Close()

			h := newHarness(tt.reading, wifi.Connected)
			h.cfg.Endpoints.Reading = server.URL + "/api/v1/reading"
			h.cfg.Endpoints.Heartbeat = server.URL + "/api/v1/heartbeat"
			h.loop = NewLoop(h.cfg, Deps{
				Associator: h.assoc,
				Sampler:    h.sampler,
				Poster:     report.NewClient(time.Second),
				Time:       h.time,
				Clock:      h.clock,
			})

			o := h.loop.Step(context.Background())

			if requests != 1 {
				t.Fatalf("requests = %d, want 1", requests)
			}
			if gotPath != tt.wantPath {
				t.Errorf("path = %s, want %s", gotPath, tt.wantPath)
			}
			if gotBody != tt.wantBody {
				t.Errorf("body = %s, want %s", gotBody, tt.wantBody)
			}
			if o.Response == nil || o.Response.StatusCode != http.StatusOK || !strings.HasPrefix(o.Response.Body, "OK") {
				t.Errorf("Response = %+v", o.Response)
			}
		})
	}
}

func TestGPIOIndicator(t *testing.T) {
	path := t.TempDir() + "/value"
	g := NewGPIOIndicator(path)

	g.Set(true)
	if b, _ := readFile(path); b != "1" {
		t.Errorf("value = %q, want 1", b)
	}
	g.Set(false)
	if b, _ := readFile(path); b != "0" {
		t.Errorf("value = %q, want 0", b)
	}
}

func TestLogIndicator(t *testing.T) {
	l := &LogIndicator{}
	l.Set(true)
	if !l.On() {
		t.Error("On() = false after Set(true)")
	}
}

func TestPathString(t *testing.T) {
	for p, want := range map[Path]string{
		PathReport:      "report",
		PathHeartbeat:   "heartbeat",
		PathSensorReset: "sensor_reset",
		PathReconnect:   "reconnect",
	} {
		if p.String() != want {
			t.Errorf("%d.String() = %s, want %s", p, p.String(), want)
		}
	}
}
