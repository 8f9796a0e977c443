package serialio

import (
	"os"

	"go.bug.st/serial"
)

// Well-known device paths probed by the reconnect supervisor when the
// OS enumeration yields nothing.
var candidatePorts = []string{
	"/dev/ttyACM0",
	"/dev/ttyACM1",
	"/dev/ttyUSB0",
	"/dev/ttyUSB1",
}

// ListPorts returns the serial ports visible on this host. The OS
// enumeration is preferred; on failure the fixed candidate list is
// filtered by presence.
func ListPorts() []string {
	if ports, err := serial.GetPortsList(); err == nil && len(ports) > 0 {
		return ports
	}
	var out []string
	for _, p := range candidatePorts {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// FirstCandidate returns the first well-known port present on this
// host, or "" when none exists.
func FirstCandidate() string {
	for _, p := range candidatePorts {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
