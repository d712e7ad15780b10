package collector

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collector's Prometheus instrumentation. Each instance owns
// its registry so tests and multiple servers do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	reportsTotal  *prometheus.CounterVec
	temperature   *prometheus.GaugeVec
	humidity      *prometheus.GaugeVec
	lastSeen      *prometheus.GaugeVec
	subscribers   prometheus.Gauge
}

// NewMetrics creates and registers the collector metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempnode_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tempnode_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tempnode_reports_total",
			Help: "Reports received by kind and result.",
		}, []string{"kind", "result"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tempnode_sensor_temperature_fahrenheit",
			Help: "Last calibrated temperature per sensor.",
		}, []string{"sensor"}),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tempnode_sensor_humidity_percent",
			Help: "Last relative humidity per sensor.",
		}, []string{"sensor"}),
		lastSeen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tempnode_sensor_last_seen_timestamp_seconds",
			Help: "Unix time of the last accepted report per sensor.",
		}, []string{"sensor"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tempnode_websocket_subscribers",
			Help: "Connected live feed subscribers.",
		}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.duration,
		m.reportsTotal,
		m.temperature,
		m.humidity,
		m.lastSeen,
		m.subscribers,
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Report counts one report. result is "accepted", "rejected" or "invalid".
func (m *Metrics) Report(kind, result string) {
	m.reportsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveReading updates the per-sensor gauges.
func (m *Metrics) ObserveReading(s Sensor) {
	label := strconv.Itoa(s.ID)
	if s.DisplayTempF != nil {
		m.temperature.WithLabelValues(label).Set(*s.DisplayTempF)
	}
	if s.LastHumidity != nil {
		m.humidity.WithLabelValues(label).Set(*s.LastHumidity)
	}
	m.lastSeen.WithLabelValues(label).SetToCurrentTime()
}

// ObserveHeartbeat marks the sensor as seen.
func (m *Metrics) ObserveHeartbeat(id int) {
	m.lastSeen.WithLabelValues(strconv.Itoa(id)).SetToCurrentTime()
}

// Subscribers sets the live feed subscriber gauge.
func (m *Metrics) Subscribers(n int) {
	m.subscribers.Set(float64(n))
}
