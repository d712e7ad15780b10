package announce

import (
	"fmt"
	"time"
)

// Node is a sensor node found on the local network.
type Node struct {
	// SensorID is the collector identity from the sensor_id TXT record
	SensorID int

	// Instance is the mDNS instance name (e.g., "tempnode-14")
	Instance string

	// Hostname is the mDNS hostname
	Hostname string

	// IP is the first advertised address, IPv4 preferred
	IP string

	// Port is the advertised port
	Port int

	// Version is the firmware version from the version TXT record
	Version string

	// SSID is the network the node joined, from the ssid TXT record
	SSID string

	// Metadata contains every TXT record
	Metadata map[string]string

	// DiscoveredAt is when the node was discovered
	DiscoveredAt time.Time
}

func (n *Node) String() string {
	return fmt.Sprintf("Sensor %d (%s) at %s:%d", n.SensorID, n.Instance, n.IP, n.Port)
}

// Address returns host:port for the node.
func (n *Node) Address() string {
	return fmt.Sprintf("%s:%d", n.IP, n.Port)
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (n *Node) GetMetadata(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return n.Metadata[key]
}
