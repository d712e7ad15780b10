package wifi

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/config"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// Associator brings the radio up on one of the configured networks.
type Associator struct {
	radio    Radio
	networks []config.Network
	timeout  time.Duration
	poll     time.Duration
	clock    clock.Clock

	cursor int
}

// NewAssociator returns an Associator over a private copy of networks.
// networks must not be empty; config.Validate guarantees that.
func NewAssociator(radio Radio, networks []config.Network, timing config.Timing, clk clock.Clock) *Associator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Associator{
		radio:    radio,
		networks: append([]config.Network(nil), networks...),
		timeout:  timing.AssociationTimeout,
		poll:     timing.PollInterval,
		clock:    clk,
	}
}

// Cursor is the index of the candidate that will be tried next, or that
// produced the current association.
func (a *Associator) Cursor() int {
	return a.cursor
}

// Current returns the SSID at the cursor.
func (a *Associator) Current() string {
	return a.networks[a.cursor].SSID
}

// LinkState reads the radio's live link state.
func (a *Associator) LinkState() LinkState {
	return a.radio.LinkState()
}

// EnsureAssociated blocks until the radio reports Connected. Candidates are
// tried from the cursor onwards, wrapping around, each for at most the
// association timeout. It returns an error only when ctx is cancelled.
func (a *Associator) EnsureAssociated(ctx context.Context) error {
	if a.radio.LinkState() == Connected {
		return nil
	}

	for {
		n := a.networks[a.cursor]
		logging.LogAssociation("begin", n.SSID, a.cursor)

		if err := a.radio.BeginAssociation(n.SSID, n.Passphrase); err != nil {
			logging.Warn("Radio refused association request",
				zap.String("ssid", n.SSID),
				zap.Error(err),
			)
			// Pace the retry so a radio that rejects every request does not spin.
			if err := a.clock.Sleep(ctx, a.poll); err != nil {
				return err
			}
		} else {
			connected, err := a.waitConnected(ctx)
			if err != nil {
				return err
			}
			if connected {
				logging.LogAssociation("connected", n.SSID, a.cursor)
				return nil
			}
			logging.Warn("Candidate network failed",
				zap.String("ssid", n.SSID),
				zap.Int("candidate", a.cursor),
				zap.Error(fmt.Errorf("%w after %s", ErrAssociationTimeout, a.timeout)),
			)
		}

		if err := a.radio.Disconnect(); err != nil {
			logging.Debug("Disconnect after failed candidate", zap.Error(err))
		}
		a.cursor = (a.cursor + 1) % len(a.networks)
	}
}

// waitConnected polls the link until it is up or the timeout elapses.
func (a *Associator) waitConnected(ctx context.Context) (bool, error) {
	deadline := a.clock.Now().Add(a.timeout)
	for {
		if a.radio.LinkState() == Connected {
			return true, nil
		}
		if !a.clock.Now().Before(deadline) {
			return false, nil
		}
		if err := a.clock.Sleep(ctx, a.poll); err != nil {
			return false, err
		}
	}
}
