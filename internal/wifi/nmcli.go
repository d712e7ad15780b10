package wifi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// stateActivated is NetworkManager's NM_DEVICE_STATE_ACTIVATED.
const stateActivated = 100

// runFunc executes a command and returns its captured output.
type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)

// NMCLI drives a NetworkManager managed interface through nmcli.
type NMCLI struct {
	// Interface is the wireless device name, e.g. wlan0.
	Interface string

	// Binary is the nmcli executable. Default: "nmcli" (searches PATH)
	Binary string

	// Timeout bounds each nmcli invocation.
	// Default: 5 seconds
	Timeout time.Duration

	run runFunc
}

// NewNMCLI returns an NMCLI driver for iface.
func NewNMCLI(iface string) *NMCLI {
	return &NMCLI{
		Interface: iface,
		Binary:    "nmcli",
		Timeout:   5 * time.Second,
		run:       runCommand,
	}
}

// BeginAssociation asks NetworkManager to join ssid without waiting for the
// activation to finish.
func (n *NMCLI) BeginAssociation(ssid, passphrase string) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", ssid}
	if passphrase != "" {
		args = append(args, "password", passphrase)
	}
	args = append(args, "ifname", n.Interface)

	_, err := n.exec("connect", args...)
	return err
}

// LinkState reports Connected only when the device is fully activated.
func (n *NMCLI) LinkState() LinkState {
	out, err := n.exec("state", "-t", "-f", "GENERAL.STATE", "device", "show", n.Interface)
	if err != nil {
		logging.Debug("Reading link state failed", zap.String("interface", n.Interface), zap.Error(err))
		return Disconnected
	}

	state, err := parseDeviceState(out)
	if err != nil {
		logging.Debug("Unparseable link state", zap.String("output", out), zap.Error(err))
		return Disconnected
	}
	if state == stateActivated {
		return Connected
	}
	return Disconnected
}

// Disconnect deactivates the interface.
func (n *NMCLI) Disconnect() error {
	_, err := n.exec("disconnect", "device", "disconnect", n.Interface)
	return err
}

func (n *NMCLI) exec(op string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	stdout, stderr, exitCode, err := n.run(ctx, n.Binary, args...)
	if err != nil || exitCode != 0 {
		cmdErr := &CommandError{
			Op:       op,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr),
			Err:      err,
		}
		if ctx.Err() == context.DeadlineExceeded {
			cmdErr.Err = fmt.Errorf("timed out after %s", n.Timeout)
		}
		return stdout, cmdErr
	}
	return stdout, nil
}

// parseDeviceState extracts the numeric state from terse output such as
// "GENERAL.STATE:100 (connected)".
func parseDeviceState(out string) (int, error) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	_, value, ok := strings.Cut(line, ":")
	if !ok {
		return 0, fmt.Errorf("missing field separator in %q", line)
	}
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, ' '); i >= 0 {
		value = value[:i]
	}
	return strconv.Atoi(value)
}

func runCommand(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdoutBuf.String(), stderrBuf.String(), exitErr.ExitCode(), nil
		}
		return stdoutBuf.String(), stderrBuf.String(), -1, err
	}
	return stdoutBuf.String(), stderrBuf.String(), 0, nil
}

// CommandError is a failed nmcli invocation.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nmcli %s failed (exit code %d): %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("nmcli %s failed (exit code %d): %s", e.Op, e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// PrerequisiteCheck is the result of probing for the nmcli binary.
type PrerequisiteCheck struct {
	Name      string
	Available bool
	Path      string
	Version   string
	Message   string
	Error     error
}

// CheckPrerequisites verifies that nmcli is installed and runnable.
func CheckPrerequisites(ctx context.Context, binary string) PrerequisiteCheck {
	check := PrerequisiteCheck{Name: binary}

	path, err := exec.LookPath(binary)
	if err != nil {
		check.Error = err
		check.Message = binary + " not found in PATH\n" +
			"Install NetworkManager or run with --simulate"
		return check
	}
	check.Path = path

	versionCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	output, err := exec.CommandContext(versionCtx, path, "--version").Output()
	if err != nil {
		check.Error = err
		check.Message = fmt.Sprintf("%s found at %s but failed to execute: %v", binary, path, err)
		return check
	}

	check.Version = strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	check.Available = true
	check.Message = fmt.Sprintf("Found at %s", path)
	return check
}
