package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge is an easyfire server found on the local network
type Bridge struct {
	// Instance is the advertised instance name (e.g., "easyfire-boilerroom")
	Instance string

	// Hostname is the mDNS hostname (e.g., "pi.local.")
	Hostname string

	// IP is the first IPv4 address, or the first IPv6 one when there is none
	IP string

	// Port is the HTTP port of the bridge
	Port int

	// Version, Transport and Path come from the TXT record
	Version   string
	Transport string
	Path      string

	// Metadata holds every TXT key, including the ones above
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("easyfire bridge %s (%s) at %s", b.Instance, b.Transport, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// URL returns the WebSocket URL of the bridge's snapshot stream
func (b *Bridge) URL() string {
	path := b.Path
	if path == "" {
		path = DefaultPath
	}
	return "ws://" + net.JoinHostPort(b.IP, strconv.Itoa(b.Port)) + path
}

// BaseURL returns the HTTP base URL of the bridge
func (b *Bridge) BaseURL() string {
	return "http://" + net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
