package collector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// Route paths served by the collector.
const (
	PathReading   = "/api/v1/reading"
	PathHeartbeat = "/api/v1/heartbeat"
	PathSensors   = "/api/v1/sensors"
	PathWebSocket = "/ws"
	PathMetrics   = "/metrics"
	PathHealth    = "/health"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the development collection service nodes report to.
type Server struct {
	config  config.CollectorConfig
	store   *Store
	hub     *Hub
	metrics *Metrics
	handler http.Handler
	now     func() time.Time
}

// New creates a Server for the registered sensors in cfg.
func New(cfg config.CollectorConfig) *Server {
	metrics := NewMetrics()
	s := &Server{
		config:  cfg,
		store:   NewStore(cfg.Sensors),
		hub:     NewHub(metrics),
		metrics: metrics,
		now:     time.Now,
	}
	s.handler = s.routes()
	return s
}

// Store exposes the sensor store.
func (s *Server) Store() *Store { return s.store }

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.Handle(PathReading, s.metrics.WrapHandler("reading", http.HandlerFunc(s.handleReading))).Methods(http.MethodPost)
	r.Handle(PathHeartbeat, s.metrics.WrapHandler("heartbeat", http.HandlerFunc(s.handleHeartbeat))).Methods(http.MethodPost)
	r.Handle(PathSensors, s.metrics.WrapHandler("sensors", http.HandlerFunc(s.handleListSensors))).Methods(http.MethodGet)
	r.Handle(PathSensors+"/{id}", s.metrics.WrapHandler("sensor", http.HandlerFunc(s.handleGetSensor))).Methods(http.MethodGet)
	r.HandleFunc(PathHealth, s.handleHealth).Methods(http.MethodGet)
	r.Handle(PathMetrics, s.metrics.Handler()).Methods(http.MethodGet)
	// The hub hijacks the connection, so it is not wrapped by the status recorder.
	r.Handle(PathWebSocket, s.hub).Methods(http.MethodGet)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)
	return handlers.CustomLoggingHandler(io.Discard, recovery(r), logRequest)
}

// logRequest routes gorilla access logs into zap.
func logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	remote := p.Request.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	logging.LogHTTPRequest(remote, p.Request.Method, p.URL.Path, p.StatusCode, p.Size, time.Since(p.TimeStamp))
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	logging.Error("Handler panic recovered", zap.String("panic", fmt.Sprint(v...)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// HTTPS is used when both TLS paths are configured.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	useTLS := s.config.TLSCert != "" && s.config.TLSKey != ""
	if useTLS {
		tlsConfig, err := NewTLSConfig(s.config.TLSCert, s.config.TLSKey)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
	}

	logging.Info("Starting collector",
		zap.String("addr", s.config.Listen),
		zap.Bool("tls", useTLS),
		zap.Int("sensors", len(s.config.Sensors)),
	)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("collector stopped: %w", err)
	case <-ctx.Done():
	}

	logging.Info("Shutting down collector...")
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
	}
	logging.Sync()
	return nil
}

// NewTLSConfig loads a certificate pair for the collector listener.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
