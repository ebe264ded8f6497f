// Package discovery advertises easyfire bridges over mDNS and finds them.
//
// A bridge registers the "_easyfire._tcp" service in the "local." domain
// with a TXT record carrying its version, the device transport (tcp or
// serial) and the WebSocket path:
//
//	version=v1.2.0 transport=tcp path=/ws
//
// # Usage Example
//
//	ad, err := discovery.Advertise("boilerroom", 8080,
//	    discovery.TXTRecords(version.Version, "tcp", "/ws"))
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	bridges, err := discovery.NewScanner().Scan(ctx)
//	for _, b := range bridges {
//	    fmt.Println(b, b.URL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridge and client must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
