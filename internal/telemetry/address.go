package telemetry

import (
	"fmt"
	"net"
	"strings"
)

const (
	DefaultMulticastAddress = "224.1.1.43"
	DefaultTelemetryPort    = 9001
	DefaultVideoPort        = 9000
)

func parseEndpoint(address string, port int) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("%w: %q is not a multicast group", ErrInvalidAddress, address)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidAddress, port)
	}
	return ip.To4(), nil
}
