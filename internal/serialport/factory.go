package serialport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/ALU-panda/production-tests/internal/monitoring"
)

// PollInterval is the read timeout applied to real ports so that blocked
// reads can notice context cancellation.
const PollInterval = 100 * time.Millisecond

// Open opens a real serial port at path using opts. The returned port has a
// read timeout of PollInterval.
func Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(PollInterval); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	monitoring.Logf("opened serial port %s (%s)", path, opts)
	return port, nil
}

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Enumerator lists the serial ports attached to the host.
type Enumerator func() ([]PortInfo, error)

// SystemPorts enumerates the host's serial ports with go.bug.st/serial.
func SystemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// Discover returns the name of the first USB port whose vendor ID matches
// vid (case-insensitive), or whose product string mentions mbed. It returns
// ErrDeviceNotFound when nothing matches.
func Discover(list Enumerator, vid string) (string, error) {
	if list == nil {
		list = SystemPorts
	}
	ports, err := list()
	if err != nil {
		return "", err
	}

	vid = strings.ToUpper(strings.TrimSpace(vid))
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if (vid != "" && strings.ToUpper(p.VID) == vid) ||
			strings.Contains(strings.ToLower(p.Product), "mbed") {
			monitoring.Logf("found evaluation board on %s (VID %s PID %s SN %s)", p.Name, p.VID, p.PID, p.SerialNumber)
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w (looked for USB VID %s among %d ports)", ErrDeviceNotFound, vid, len(ports))
}
