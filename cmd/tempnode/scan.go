package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/tempnode/internal/announce"
	"github.com/muurk/tempnode/internal/sensor"
	"github.com/muurk/tempnode/internal/ui"
)

var (
	scanTimeout time.Duration
	scanSensor  int
)

func init() {
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", announce.DefaultScanTimeout, "How long to listen for announcements")
	scanCmd.Flags().IntVar(&scanSensor, "sensor", 0, "Stop as soon as this sensor ID is found")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(portsCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find sensor nodes on the local network",
	Long: `Listen for mDNS announcements from running nodes and list them with
their sensor ID, address, joined network and firmware version.`,
	Example: `  tempnode scan
  tempnode scan --timeout 15s
  tempnode scan --sensor 14`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := announce.NewScanner()
		scanner.Timeout = scanTimeout
		out := cmd.OutOrStdout()

		if scanSensor > 0 {
			n, err := scanner.WaitForSensor(cmd.Context(), scanSensor)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, ui.RenderNodeTable([]*announce.Node{n}))
			return nil
		}

		fmt.Fprintf(out, "Scanning for sensor nodes (timeout: %s)...\n\n", scanTimeout)
		nodes, err := scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if len(nodes) == 0 {
			ui.NewPrinter(out).PrintWarning("No sensor nodes found",
				ui.Detail{Key: "Hint", Value: "Nodes announce only after joining a network"},
				ui.Detail{Key: "Hint", Value: "Try a longer --timeout"},
			)
			return nil
		}

		fmt.Fprintf(out, "Found %d node(s):\n", len(nodes))
		fmt.Fprintln(out, ui.RenderNodeTable(nodes))
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports for the sensor bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := sensor.Ports()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderPortTable(ports))
		return nil
	},
}
