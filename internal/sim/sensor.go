package sim

import (
	"errors"
	"io"
)

// Sensor simulates the sensor's register bus.
type Sensor struct {
	// Address is the bus address the sensor answers on.
	Address uint16

	// Sample is the data returned after a sample command.
	Sample []byte

	// Available limits how many bytes a read request yields. A negative
	// value means no limit.
	Available int

	// Written records every byte transmitted to the sensor.
	Written []byte

	// Releases counts how often the bus lines were released.
	Releases int

	active bool
	rx     []byte
}

// NewSensor returns a sensor at addr that answers with sample.
func NewSensor(addr uint16, sample []byte) *Sensor {
	return &Sensor{
		Address:   addr,
		Sample:    sample,
		Available: -1,
	}
}

// Active reports whether the bus has been started and not released.
func (s *Sensor) Active() bool {
	return s.active
}

// Begin implements sensor.Bus.
func (s *Sensor) Begin() error {
	s.active = true
	return nil
}

// Release implements sensor.Bus.
func (s *Sensor) Release() error {
	s.active = false
	s.rx = nil
	s.Releases++
	return nil
}

// Transmit implements sensor.Bus.
func (s *Sensor) Transmit(addr uint16, data []byte) error {
	if !s.active {
		return errors.New("sim: sensor bus not started")
	}
	if addr == s.Address {
		s.Written = append(s.Written, data...)
	}
	return nil
}

// RequestFrom implements sensor.Bus.
func (s *Sensor) RequestFrom(addr uint16, n int) (int, error) {
	if !s.active {
		return 0, errors.New("sim: sensor bus not started")
	}
	if addr != s.Address {
		s.rx = nil
		return 0, nil
	}

	avail := min(n, len(s.Sample))
	if s.Available >= 0 {
		avail = min(avail, s.Available)
	}
	s.rx = append([]byte(nil), s.Sample[:avail]...)
	return avail, nil
}

// ReadByte implements sensor.Bus.
func (s *Sensor) ReadByte() (byte, error) {
	if len(s.rx) == 0 {
		return 0, io.EOF
	}
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b, nil
}
