package wifi

import "sync"

// SimRadio is an in-process radio for development hosts without a wireless
// interface. Association with a reachable SSID completes after
// PollsToConnect link state reads.
type SimRadio struct {
	mu             sync.Mutex
	reachable      map[string]bool
	pending        string
	polls          int
	connected      bool
	PollsToConnect int

	// Calls counts BeginAssociation invocations.
	Calls int
}

// NewSimRadio returns a SimRadio that can associate with the given SSIDs.
func NewSimRadio(reachable []string) *SimRadio {
	r := &SimRadio{reachable: make(map[string]bool, len(reachable))}
	for _, ssid := range reachable {
		r.reachable[ssid] = true
	}
	return r
}

func (r *SimRadio) BeginAssociation(ssid, passphrase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.pending = ssid
	r.polls = 0
	r.connected = false
	return nil
}

func (r *SimRadio) LinkState() LinkState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		return Connected
	}
	if r.pending == "" || !r.reachable[r.pending] {
		return Disconnected
	}
	r.polls++
	if r.polls > r.PollsToConnect {
		r.connected = true
		return Connected
	}
	return Disconnected
}

func (r *SimRadio) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = ""
	r.connected = false
	return nil
}

// SetReachable changes whether ssid can be joined. Making the associated
// network unreachable drops the link.
func (r *SimRadio) SetReachable(ssid string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reachable[ssid] = ok
	if !ok && r.pending == ssid {
		r.connected = false
		r.pending = ""
	}
}
