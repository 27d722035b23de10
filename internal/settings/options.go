package settings

import (
	"fmt"
	"net"
	"time"
)

// ConnectionOptions is the flat option set handed to a backend before each
// command.
type ConnectionOptions struct {
	Host        string
	Port        int
	RemoteNetID string
	RemotePort  int
	LocalNetID  string
	LocalPort   int
	Timeout     time.Duration
	Verbose     int
	Debug       bool
}

// LibraryOptions builds the options for the low-level library backend.
func (c Config) LibraryOptions(localNetID string) ConnectionOptions {
	return ConnectionOptions{
		Host:        c.PLCHost,
		Port:        c.PLCPort,
		RemoteNetID: c.RemoteNetID,
		RemotePort:  c.RemotePort,
		LocalNetID:  localNetID,
		LocalPort:   c.LocalPort,
		Timeout:     c.LibraryTimeout,
		Verbose:     c.LibraryVerbose,
	}
}

// WrapperOptions builds the options for the persistent wrapper backend.
func (c Config) WrapperOptions(localNetID string) ConnectionOptions {
	verbose := 0
	if c.WrapperVerbose {
		verbose = 1
	}
	return ConnectionOptions{
		Host:        c.PLCHost,
		Port:        c.PLCPort,
		RemoteNetID: c.RemoteNetID,
		RemotePort:  c.RemotePort,
		LocalNetID:  localNetID,
		LocalPort:   c.LocalPort,
		Timeout:     c.WrapperTimeout,
		Verbose:     verbose,
		Debug:       c.WrapperDebug,
	}
}

// ResolveLocalNetID returns the configured local net-id, or derives one
// from the first non-loopback IPv4 address of this host.
func (c Config) ResolveLocalNetID() (string, error) {
	if c.LocalNetID != "" {
		return c.LocalNetID, nil
	}
	ip, err := HostIPv4()
	if err != nil {
		return "", err
	}
	return DeriveNetID(ip), nil
}

// DeriveNetID appends ".1.1" to an IPv4 address, the TwinCAT convention for
// a host's default AMS net-id.
func DeriveNetID(ip net.IP) string {
	return ip.To4().String() + ".1.1"
}

// HostIPv4 returns the first non-loopback IPv4 address of this host.
func HostIPv4() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("list interface addresses: %w", err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("no non-loopback IPv4 address found; set local.netid")
}
