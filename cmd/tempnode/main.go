// Tempnode is the sensor node: it samples a temperature/humidity sensor and
// reports to a collector over the local wireless network.
//
// It joins the first reachable network from an ordered credential list,
// posts a reading on every healthy iteration, falls back to a heartbeat when
// the sensor misbehaves, and recovers the link or the sensor when either
// fails.
//
// Usage:
//
//	tempnode [command] [flags]
//
// See 'tempnode --help' for available commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"github.com/muurk/tempnode/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	envFiles   []string
	simulate   bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tempnode",
	Short: "Temperature/humidity sensor node",
	Long: `A sensor node that samples temperature and humidity and reports to a
collector over the local wireless network.

Configuration is read from the config file, then overridden by TEMPNODE_*
environment variables (optionally loaded from .env files).

Use --simulate to run without hardware: the sensor, radio and status LED are
replaced by in-process simulations.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: OS config dir/tempnode/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load before applying TEMPNODE_* overrides")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Use simulated sensor, radio and LED drivers")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default from "+logging.LogLevelEnvVar)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tempnode %s\n", version.Full())
	},
}

// resolveConfigPath returns --config or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// loadConfig assembles the effective configuration: file, environment,
// --simulate, then validation.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if simulate {
		cfg.Simulate()
	}

	if err := cfg.Validate(); err != nil {
		for _, p := range config.Problems(err) {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		return nil, fmt.Errorf("invalid configuration (%s)", path)
	}
	return cfg, nil
}
