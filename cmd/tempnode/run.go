package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/node"
	"github.com/muurk/tempnode/internal/ui"
)

var verbose bool

var driverTips = []string{
	"Check the network credentials in the config file",
	"Run with --simulate to rule out hardware",
	"Run with --log-level debug for driver output",
}

func init() {
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every iteration's outcome, payload and response")
	onceCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the payload and response bodies")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reporting loop until interrupted",
	Long: `Join a network, synchronize time, start the sensor and report forever.

Every iteration samples the sensor and checks the link, then either posts a
reading, posts a heartbeat, restarts the sensor or reconnects. The loop pauses
for the success delay after a report and for the error delay after recovery.`,
	Example: `  # Run on hardware with the default config file
  tempnode run

  # Run without hardware, printing each iteration
  tempnode run --simulate --verbose

  # Point at a local collector
  TEMPNODE_READING_URL=http://127.0.0.1:8000/api/v1/reading tempnode run --simulate`,
	RunE: runLoop,
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printer := ui.NewPrinter(cmd.OutOrStdout())
	var onOutcome func(node.Outcome)
	if verbose {
		onOutcome = func(o node.Outcome) { printer.PrintOutcome(o, true) }
	}

	ctx := cmd.Context()
	st, err := buildStack(ctx, cfg, onOutcome)
	if err != nil {
		printer.PrintError("Failed to start drivers", err, driverTips)
		return err
	}
	defer st.Close()

	printer.PrintHeader("Sensor Node", "tempnode run", nodeParams(cfg)...)

	if err := st.loop.Setup(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			printer.Println("  Stopped.")
			return nil
		}
		printer.PrintError("Setup failed", err, driverTips)
		return err
	}
	st.announce(ctx)

	err = st.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		printer.Println("  Stopped.")
		return nil
	}
	return err
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run setup and a single iteration",
	Long: `Run the node's setup and exactly one loop iteration, then print what
happened. Useful to check wiring, credentials and the collector.`,
	Example: `  tempnode once --simulate
  tempnode once --verbose`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:     "Single iteration",
		Command:   "tempnode once",
		Params:    nodeParams(cfg),
		StepNames: []string{"Join network and start sensor", "Sample and report"},
		Troubleshooting: driverTips,
		Output: cmd.OutOrStdout(),
	})

	var outcome node.Outcome
	err = runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Detail, error) {
		onStep(1, ui.StepRunning, "")
		if err := st.loop.Setup(ctx); err != nil {
			onStep(1, ui.StepFailed, "")
			return nil, err
		}
		onStep(1, ui.StepComplete, st.associator.Current())

		onStep(2, ui.StepRunning, "")
		outcome = st.loop.Step(ctx)
		if outcome.Err != nil {
			onStep(2, ui.StepFailed, outcome.Path.String())
			return nil, outcome.Err
		}
		onStep(2, ui.StepComplete, outcome.Path.String())

		return []ui.Detail{{Key: "Network", Value: st.associator.Current()}}, nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), ui.RenderOutcome(outcome, ui.GetTerminalWidth(), verbose))
	return nil
}

func nodeParams(cfg *config.Config) []ui.Param {
	ssids := make([]string, len(cfg.Networks))
	for i, n := range cfg.Networks {
		ssids[i] = n.SSID
	}
	return []ui.Param{
		{Key: "Sensor ID", Value: strconv.Itoa(cfg.Identity.SensorID)},
		{Key: "Networks", Value: strings.Join(ssids, ", ")},
		{Key: "Reading", Value: cfg.Endpoints.Reading},
		{Key: "Heartbeat", Value: cfg.Endpoints.Heartbeat},
		{Key: "Drivers", Value: fmt.Sprintf("sensor=%s radio=%s led=%s", cfg.Sensor.Driver, cfg.Radio.Driver, cfg.Indicator.Driver)},
	}
}
