// Package detect finds programming bridges on the host's serial ports.
package detect

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/bridge"
	"github.com/bigbag/azinc-flasher/internal/serial"
)

// ErrNotFound is returned when no port answers the SYNC handshake.
var ErrNotFound = errors.New("no programming bridge found")

// Result represents a detected bridge.
type Result struct {
	Port    serial.PortInfo
	Version uint32
}

// probeFunc syncs with whatever is on the named port.
type probeFunc func(portName string) (uint32, error)

// FindBridge returns the first port with a responding bridge.
func FindBridge(baudRate int) (*Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return first(ports, prober(baudRate))
}

// OnPort checks for a bridge on a specific port.
func OnPort(portName string, baudRate int) (*Result, error) {
	return onPort(portName, prober(baudRate))
}

func onPort(portName string, probe probeFunc) (*Result, error) {
	version, err := probe(portName)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %v", ErrNotFound, portName, err)
	}
	return &Result{Port: serial.PortInfo{Name: portName}, Version: version}, nil
}

// ListBridges scans all ports and returns every responding bridge.
func ListBridges(baudRate int) ([]Result, error) {
	ports, err := serial.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	return all(ports, prober(baudRate)), nil
}

func first(ports []serial.PortInfo, probe probeFunc) (*Result, error) {
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, p := range ports {
		version, err := probe(p.Name)
		if err != nil {
			glog.V(1).Infof("detect: %s: %v", p.Name, err)
			lastErr = err
			continue
		}
		return &Result{Port: p, Version: version}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (last error: %v)", ErrNotFound, lastErr)
	}
	return nil, ErrNotFound
}

func all(ports []serial.PortInfo, probe probeFunc) []Result {
	var results []Result
	for _, p := range ports {
		version, err := probe(p.Name)
		if err != nil {
			glog.V(1).Infof("detect: %s: %v", p.Name, err)
			continue
		}
		results = append(results, Result{Port: p, Version: version})
	}
	return results
}

func prober(baudRate int) probeFunc {
	return func(portName string) (uint32, error) {
		port, err := serial.Open(portName, baudRate)
		if err != nil {
			return 0, err
		}
		defer port.Close()

		if err := port.ResetBridge(); err != nil {
			return 0, fmt.Errorf("failed to reset: %w", err)
		}

		version, err := bridge.NewClient(port).Sync()
		if err != nil {
			return 0, fmt.Errorf("failed to sync: %w", err)
		}
		return version, nil
	}
}
