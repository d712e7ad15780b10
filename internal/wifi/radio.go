package wifi

import "errors"

// LinkState is the association state reported by the radio.
type LinkState int

const (
	Disconnected LinkState = iota
	Connected
)

func (s LinkState) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Radio is the wireless link driver. BeginAssociation only starts an
// association; completion is observed through LinkState.
type Radio interface {
	BeginAssociation(ssid, passphrase string) error
	LinkState() LinkState
	Disconnect() error
}

// ErrAssociationTimeout is logged when a candidate network does not come up
// within the association timeout. It never leaves EnsureAssociated.
var ErrAssociationTimeout = errors.New("association timed out")
