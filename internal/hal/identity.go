package hal

import (
	"fmt"
	"net"
	"strings"
)

// DeviceIDFromMAC builds the short id from MAC bytes 2..5: each byte in hex
// without zero padding, concatenated, keeping the last four characters.
func DeviceIDFromMAC(mac net.HardwareAddr) string {
	if len(mac) < 6 {
		return ""
	}
	var b strings.Builder
	for _, octet := range mac[2:6] {
		fmt.Fprintf(&b, "%x", octet)
	}
	s := b.String()
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return s
}

// PrimaryMAC returns the hardware address of the first non-loopback interface.
func PrimaryMAC() (net.HardwareAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) < 6 {
			continue
		}
		return ifc.HardwareAddr, nil
	}
	return nil, fmt.Errorf("no interface with a hardware address")
}

// DeviceID resolves the node id: an explicit override wins, then the MAC
// derivation, then fallback (a persisted uuid).
func DeviceID(override string, fallback func() string) string {
	if override != "" {
		return override
	}
	if mac, err := PrimaryMAC(); err == nil {
		if id := DeviceIDFromMAC(mac); id != "" {
			return id
		}
	}
	return fallback()
}
