// Package ntptime provides the network-synchronized clock used to stamp
// readings.
package ntptime

import (
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/muurk/tempnode/internal/clock"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

// Source is a wall clock that may need periodic synchronization.
type Source interface {
	// Update synchronizes the clock if it is due. Failures are logged and
	// the previous offset is kept.
	Update()
	// CurrentEpochSeconds is the current UTC time in Unix seconds.
	CurrentEpochSeconds() int64
}

type queryFunc func(host string, timeout time.Duration) (time.Duration, error)

func queryOffset(host string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(host, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("invalid response from %s: %w", host, err)
	}
	return resp.ClockOffset, nil
}

// NTP corrects the local clock by the offset measured against an NTP server.
// The server is queried at most once per update interval.
type NTP struct {
	server   string
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	query    queryFunc

	mu       sync.Mutex
	offset   time.Duration
	lastSync time.Time
	synced   bool
}

// NewNTP returns an unsynchronized NTP source. Until the first successful
// Update it reports the local clock.
func NewNTP(server string, interval, timeout time.Duration, clk clock.Clock) *NTP {
	if clk == nil {
		clk = clock.Real{}
	}
	return &NTP{
		server:   server,
		interval: interval,
		timeout:  timeout,
		clock:    clk,
		query:    queryOffset,
	}
}

func (n *NTP) Update() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock.Now()
	if n.synced && now.Sub(n.lastSync) < n.interval {
		return
	}

	offset, err := n.query(n.server, n.timeout)
	if err != nil {
		logging.Warn("Time synchronization failed",
			zap.String("server", n.server),
			zap.Bool("previously_synced", n.synced),
			zap.Error(err),
		)
		return
	}

	n.offset = offset
	n.lastSync = now
	n.synced = true
	logging.Debug("Time synchronized",
		zap.String("server", n.server),
		zap.Duration("offset", offset),
	)
}

func (n *NTP) CurrentEpochSeconds() int64 {
	n.mu.Lock()
	offset := n.offset
	n.mu.Unlock()
	return n.clock.Now().Add(offset).Unix()
}

// Synced reports whether at least one query has succeeded.
func (n *NTP) Synced() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.synced
}

// System trusts the host clock. It is used when no NTP server is configured.
type System struct {
	Clock clock.Clock
}

func (System) Update() {}

func (s System) CurrentEpochSeconds() int64 {
	if s.Clock == nil {
		return time.Now().Unix()
	}
	return s.Clock.Now().Unix()
}
