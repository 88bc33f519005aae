package relay

import (
	"net"
	"os"
	"strings"
)

// Environment variables that pin the advertised host.
const (
	EnvHostname = "VIZ_HOSTNAME"
	EnvIP       = "VIZ_IP"
)

// determineHost returns the host advertised in topic endpoints and whether
// it is only reachable from this machine.
func determineHost() (string, bool) {
	// If the user set VIZ_HOSTNAME, use it as is
	if hostname, ok := os.LookupEnv(EnvHostname); ok {
		return hostname, (hostname == "localhost")
	}

	// If the user set VIZ_IP, use it as is
	if ip, ok := os.LookupEnv(EnvIP); ok {
		return ip, isLoopbackIP(ip)
	}

	// Try using the hostname
	if osHostname, err := os.Hostname(); err == nil && osHostname != "localhost" {
		return osHostname, false
	}

	// Fall back on the interface IP
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				return ipnet.IP.String(), false
			}
		}
	}
	// Fall back to the loopback IP
	return "127.0.0.1", true
}

func isLoopbackIP(ip string) bool {
	return ip == "::1" || strings.HasPrefix(ip, "127.")
}

// listenIP is the address data channels listen on for an advertised host.
func listenIP(host string, localOnly bool) string {
	if !localOnly {
		return "0.0.0.0"
	}
	if host == "localhost" {
		return "127.0.0.1"
	}
	return host
}
