package announce

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/tempnode/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type sensor nodes register
	ServiceType = "_tempnode._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for node discovery
	DefaultScanTimeout = 5 * time.Second

	// TXT record keys
	KeySensorID = "sensor_id"
	KeyVersion  = "version"
	KeySSID     = "ssid"
)

type responder interface {
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string) (responder, error)

func registerZeroconf(instance, service, domain string, port int, text []string) (responder, error) {
	var ifaces []net.Interface // all multicast interfaces
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Announcer advertises this node over mDNS.
type Announcer struct {
	sensorID int
	version  string
	port     int
	register registerFunc

	mu     sync.Mutex
	server responder
}

// NewAnnouncer returns an announcer for the given node identity.
func NewAnnouncer(sensorID int, version string, port int) *Announcer {
	return &Announcer{
		sensorID: sensorID,
		version:  version,
		port:     port,
		register: registerZeroconf,
	}
}

// InstanceName is the mDNS instance name for a sensor ID.
func InstanceName(sensorID int) string {
	return "tempnode-" + strconv.Itoa(sensorID)
}

// Text returns the TXT records for the current state.
func (a *Announcer) Text(ssid string) []string {
	text := []string{
		KeySensorID + "=" + strconv.Itoa(a.sensorID),
		KeyVersion + "=" + a.version,
	}
	if ssid != "" {
		text = append(text, KeySSID+"="+ssid)
	}
	return text
}

// Announce (re)registers the service. It is called after every successful
// association because the responder binds to the interfaces present at
// registration time.
func (a *Announcer) Announce(ctx context.Context, ssid string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := a.register(InstanceName(a.sensorID), ServiceType, ServiceDomain, a.port, a.Text(ssid))
	if err != nil {
		logging.Warn("mDNS announcement failed", zap.Error(err))
		return
	}
	a.server = server
	logging.Info("Announced on mDNS",
		zap.String("instance", InstanceName(a.sensorID)),
		zap.String("service", ServiceType),
		zap.String("ssid", ssid),
	)
}

// Shutdown withdraws the announcement.
func (a *Announcer) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Scanner handles mDNS node discovery
type Scanner struct {
	// Timeout is the maximum time to wait for node discovery
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for nodes until the timeout and returns them ordered by
// sensor ID.
func (s *Scanner) Scan(ctx context.Context) ([]*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		nodes = make(map[string]*Node)
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			if n := parseServiceEntry(entry); n != nil {
				mu.Lock()
				nodes[n.Instance] = n
				mu.Unlock()
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	result := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SensorID < result[j].SensorID })
	return result, nil
}

// WaitForSensor returns as soon as the node with sensorID is seen.
func (s *Scanner) WaitForSensor(ctx context.Context, sensorID int) (*Node, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Node, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		for entry := range entries {
			n := parseServiceEntry(entry)
			if n != nil && n.SensorID == sensorID {
				select {
				case found <- n:
				default:
				}
				cancel()
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case n := <-found:
		return n, nil
	case <-ctx.Done():
		select {
		case n := <-found:
			return n, nil
		default:
		}
		return nil, fmt.Errorf("sensor %d not found within timeout", sensorID)
	}
}

// parseServiceEntry converts a zeroconf service entry to a Node.
// Returns nil if the entry carries no usable sensor ID or address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Node {
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	id, err := strconv.Atoi(metadata[KeySensorID])
	if err != nil || id <= 0 {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	return &Node{
		SensorID:     id,
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Version:      metadata[KeyVersion],
		SSID:         metadata[KeySSID],
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
