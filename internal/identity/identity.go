// Package identity derives this device's canonical identifier from its
// hardware MAC and serial port.
package identity

import (
	"fmt"
	"net"
	"strings"
)

// DeviceID formats the canonical device identifier: mmd-rv1-{last six hex
// digits of mac}-{trailing digits of portPath}.
func DeviceID(mac net.HardwareAddr, portPath string) string {
	return fmt.Sprintf("mmd-rv1-%s-%s", lastSixHex(mac), portSuffix(portPath))
}

func lastSixHex(mac net.HardwareAddr) string {
	hex := strings.ReplaceAll(mac.String(), ":", "")
	if len(hex) <= 6 {
		return hex
	}
	return hex[len(hex)-6:]
}

// portSuffix extracts the trailing run of digits from a serial device path,
// e.g. "/dev/ttyUSB1" -> "1". Returns "0" if the path has no trailing
// digits, keeping DeviceID's output stable rather than empty.
func portSuffix(portPath string) string {
	i := len(portPath)
	for i > 0 && portPath[i-1] >= '0' && portPath[i-1] <= '9' {
		i--
	}
	if i == len(portPath) {
		return "0"
	}
	return portPath[i:]
}

// ResolveMAC returns the hardware address of the first non-loopback
// network interface with a MAC address, sufficient for the core pipeline's
// needs. Interfaces with no hardware address (virtual/tunnel devices) are
// skipped.
func ResolveMAC() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("identity: failed to list network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr, nil
	}

	return nil, fmt.Errorf("identity: no non-loopback interface with a hardware address found")
}
