package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a multi-step command.
type RunnerConfig struct {
	Title           string
	Command         string
	Params          []Param
	StepNames       []string
	Troubleshooting []string // Shown when the operation fails
	Output          io.Writer
}

// Runner prints a header, then one line per finished step, then a result box.
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	output   io.Writer
	width    int
}

// NewRunner creates a runner. Output defaults to stdout.
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()
	return &Runner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params...).SetWidth(width),
		progress: NewProgress(config.StepNames...).SetWidth(width),
		output:   config.Output,
		width:    width,
	}
}

// SetWidth overrides the terminal width.
func (r *Runner) SetWidth(width int) *Runner {
	r.width = width
	r.header.SetWidth(width)
	r.progress.SetWidth(width)
	return r
}

// Operation does the work, reporting through onStep, and returns the details
// for the success box.
type Operation func(ctx context.Context, onStep StepCallback) ([]Detail, error)

// Run executes op with UI updates and returns its error.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := time.Now()

	fmt.Fprintln(r.output, r.header.Render())
	fmt.Fprintln(r.output)

	details, err := op(ctx, r.onStep)
	duration := time.Since(start).Round(time.Millisecond)

	fmt.Fprintln(r.output)
	if err != nil {
		res := NewFailureResult(r.config.Title+" failed", err, r.config.Troubleshooting)
		fmt.Fprintln(r.output, res.SetWidth(r.width).Render())
		return err
	}

	res := NewSuccessResult(r.config.Title+" complete", details...)
	res.AddDetail("Duration", duration.String())
	fmt.Fprintln(r.output, res.SetWidth(r.width).Render())
	return nil
}

func (r *Runner) onStep(number int, status StepStatus, message string) {
	r.progress.UpdateStep(number, status, message)
	if number < 1 || number > len(r.progress.Steps) {
		return
	}
	line := r.progress.renderStepLine(r.progress.Steps[number-1])
	if status == StepRunning {
		// Overwritten by the finished line.
		fmt.Fprint(r.output, line+"\r")
		return
	}
	fmt.Fprintln(r.output, line)
}
