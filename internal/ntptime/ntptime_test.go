package ntptime

import (
	"errors"
	"testing"
	"time"

	"github.com/muurk/tempnode/internal/clock"
)

func TestNTPUpdateRateLimited(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	n := NewNTP("pool.ntp.org", time.Minute, time.Second, clk)

	queries := 0
	n.query = func(host string, timeout time.Duration) (time.Duration, error) {
		queries++
		if host != "pool.ntp.org" || timeout != time.Second {
			t.Errorf("query(%q, %v)", host, timeout)
		}
		return 5 * time.Second, nil
	}

	n.Update()
	n.Update()
	if queries != 1 {
		t.Errorf("queries = %d, want 1 within the update interval", queries)
	}
	if got := n.CurrentEpochSeconds(); got != 1700000005 {
		t.Errorf("CurrentEpochSeconds() = %d, want 1700000005", got)
	}

	clk.Advance(time.Minute)
	n.Update()
	if queries != 2 {
		t.Errorf("queries = %d, want 2 after the interval", queries)
	}
}

func TestNTPFailureKeepsOffset(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	n := NewNTP("pool.ntp.org", time.Minute, time.Second, clk)

	n.query = func(string, time.Duration) (time.Duration, error) {
		return 0, errors.New("i/o timeout")
	}
	n.Update()
	if n.Synced() {
		t.Fatal("Synced() after a failed query")
	}
	if got := n.CurrentEpochSeconds(); got != 1700000000 {
		t.Errorf("unsynced CurrentEpochSeconds() = %d, want local clock", got)
	}

	n.query = func(string, time.Duration) (time.Duration, error) { return -2 * time.Second, nil }
	n.Update()

	failures := 0
	n.query = func(string, time.Duration) (time.Duration, error) {
		failures++
		return 0, errors.New("i/o timeout")
	}
	clk.Advance(2 * time.Minute)
	n.Update()

	if failures != 1 {
		t.Errorf("failing query ran %d times, want 1", failures)
	}
	if got := n.CurrentEpochSeconds(); got != 1700000000+120-2 {
		t.Errorf("CurrentEpochSeconds() = %d, want offset kept", got)
	}
}

func TestSystem(t *testing.T) {
	clk := clock.NewFake(time.Unix(1700000000, 0))
	s := System{Clock: clk}
	s.Update()
	if got := s.CurrentEpochSeconds(); got != 1700000000 {
		t.Errorf("CurrentEpochSeconds() = %d", got)
	}
}
