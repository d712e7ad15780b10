package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/ui"
)

const redacted = "********"

var (
	initForce  bool
	showReveal bool
)

func init() {
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file without asking")
	configShowCmd.Flags().BoolVar(&showReveal, "reveal", false, "Show passphrases and passwords")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the node configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			ok := ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Config file exists",
				[]string{path, "It will be replaced with the defaults"}, "overwrite")
			if !ok {
				return nil
			}
		}

		if err := config.Default().Save(path); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Configuration written",
			ui.Detail{Key: "Path", Value: path},
			ui.Detail{Key: "Next", Value: "Edit identity and networks, then run 'tempnode once'"},
		)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the file, environment overrides and
--simulate have been applied. Secrets are redacted unless --reveal is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !showReveal {
			cfg = redact(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

// redact returns a copy with every secret masked. Open networks stay empty.
func redact(cfg *config.Config) *config.Config {
	out := cfg.Clone()
	if out.Identity.Password != "" {
		out.Identity.Password = redacted
	}
	for i := range out.Networks {
		if out.Networks[i].Passphrase != "" {
			out.Networks[i].Passphrase = redacted
		}
	}
	for i := range out.Collector.Sensors {
		out.Collector.Sensors[i].Password = redacted
	}
	return out
}
