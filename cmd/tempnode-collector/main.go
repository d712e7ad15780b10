// Tempnode-collector is a development collection service for tempnode
// sensors.
//
// It accepts reading and heartbeat reports, keeps the latest state per
// registered sensor in memory and serves it over a JSON API, a websocket
// live feed and Prometheus metrics.
//
// Usage:
//
//	tempnode-collector serve [flags]
//	tempnode-collector watch [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/tempnode/internal/collector"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/ui"
	"github.com/muurk/tempnode/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tempnode-collector",
	Short: "Development collector for tempnode sensors",
	Long: `A development collection service for tempnode sensor nodes.

Sensors are registered in the collector section of the config file or with
--sensor flags. Reports from unregistered sensors are refused with 400, a
wrong password with 401.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sensorsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tempnode-collector %s\n", version.Full())
	},
}

// Serve command and flags
var (
	configPath string
	listen     string
	certPath   string
	keyPath    string
	sensorArgs []string
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collector",
	Long: `Start the collector HTTP server.

Routes:
  POST /api/v1/reading       reading reports
  POST /api/v1/heartbeat     heartbeat reports
  GET  /api/v1/sensors[/id]  latest sensor state
  GET  /ws                   live feed
  GET  /metrics              Prometheus metrics
  GET  /health               liveness`,
	Example: `  # Register sensor 14 with password foobar on the default port
  tempnode-collector serve --sensor 14:foobar:Brooder

  # Use the collector section of a config file
  tempnode-collector serve --config ./farm.yaml --log-level debug

  # Serve HTTPS
  tempnode-collector serve --cert cert.pem --key key.pem`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Config file with a collector section")
	serveCmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8000)")
	serveCmd.Flags().StringVar(&certPath, "cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&keyPath, "key", "", "TLS private key file")
	serveCmd.Flags().StringArrayVar(&sensorArgs, "sensor", nil, "Register a sensor as id:password[:name] (repeatable)")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	defer logging.Sync()

	if (certPath == "") != (keyPath == "") {
		return fmt.Errorf("both --cert and --key must be provided together, or neither")
	}

	cc, err := collectorConfig()
	if err != nil {
		return err
	}
	if len(cc.Sensors) == 0 {
		logging.Warn("No sensors registered; every report will be refused")
	}

	return collector.New(cc).ListenAndServe(cmd.Context())
}

// collectorConfig merges the config file's collector section with flags.
func collectorConfig() (config.CollectorConfig, error) {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return config.CollectorConfig{}, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.CollectorConfig{}, err
	}
	cc := cfg.Collector

	if listen != "" {
		cc.Listen = listen
	}
	if certPath != "" {
		cc.TLSCert, cc.TLSKey = certPath, keyPath
	}
	for _, arg := range sensorArgs {
		s, err := parseSensorArg(arg)
		if err != nil {
			return config.CollectorConfig{}, err
		}
		cc.Sensors = append(cc.Sensors, s)
	}
	return cc, nil
}

// parseSensorArg parses "id:password[:name]".
func parseSensorArg(arg string) (config.CollectorSensor, error) {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return config.CollectorSensor{}, fmt.Errorf("--sensor %q: want id:password[:name]", arg)
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id <= 0 {
		return config.CollectorSensor{}, fmt.Errorf("--sensor %q: id must be a positive integer", arg)
	}
	s := config.CollectorSensor{ID: id, Password: parts[1], Name: "sensor-" + parts[0]}
	if len(parts) == 3 && parts[2] != "" {
		s.Name = parts[2]
	}
	return s, nil
}

var (
	collectorURL string
	httpClient   = &http.Client{Timeout: 10 * time.Second}
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running collector's live feed",
	Example: `  tempnode-collector watch
  tempnode-collector watch --url http://barn-pi.local:8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ui.RunWatch(cmd.Context(), collectorURL)
	},
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "Print a running collector's sensor table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		sensors, err := collector.FetchSensors(ctx, httpClient, collectorURL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSensorTable(sensors, time.Now()))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{watchCmd, sensorsCmd} {
		c.Flags().StringVar(&collectorURL, "url", "http://127.0.0.1:8000", "Collector base URL")
	}
}
