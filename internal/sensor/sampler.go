package sensor

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// Sensor bus constants.
const (
	Address       = 0x20
	SampleCommand = 'A'
	SampleSize    = 6
)

// Bus is the sensor's register bus.
type Bus interface {
	// Begin takes control of the bus lines.
	Begin() error

	// Release returns the bus lines to high impedance.
	Release() error

	// Transmit writes data to the device at addr in one transaction.
	Transmit(addr uint16, data []byte) error

	// RequestFrom asks the device at addr for n bytes and returns how many
	// are available to ReadByte.
	RequestFrom(addr uint16, n int) (int, error)

	// ReadByte returns the next available byte.
	ReadByte() (byte, error)
}

// Sampler reads raw samples from the sensor. It shares no state with the
// programmer, but must not be used while the programming bus is active.
type Sampler struct {
	bus    Bus
	settle time.Duration
	sleep  func(time.Duration)
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithSettle sets the delay between the sample command and the read.
func WithSettle(d time.Duration) Option {
	return func(s *Sampler) {
		s.settle = d
	}
}

// WithSleep replaces the function used to wait out the settle delay.
func WithSleep(sleep func(time.Duration)) Option {
	return func(s *Sampler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewSampler creates a Sampler on bus.
func NewSampler(bus Bus, opts ...Option) *Sampler {
	s := &Sampler{
		bus:    bus,
		settle: protocol.DefaultTiming.SensorRead,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start takes control of the sensor bus.
func (s *Sampler) Start() error {
	return s.bus.Begin()
}

// Stop releases the sensor bus lines so other bus users are not disturbed.
func (s *Sampler) Stop() error {
	return s.bus.Release()
}

// Read sends the sample command and reads back up to SampleSize bytes. A slow
// or absent sensor yields fewer bytes; the caller must check the length.
func (s *Sampler) Read() ([]byte, error) {
	if err := s.bus.Transmit(Address, []byte{SampleCommand}); err != nil {
		return nil, fmt.Errorf("send sample command: %w", err)
	}

	s.sleep(s.settle)

	n, err := s.bus.RequestFrom(Address, SampleSize)
	if err != nil {
		return nil, fmt.Errorf("request sample: %w", err)
	}
	n = min(n, SampleSize)

	sample := make([]byte, 0, SampleSize)
	for i := 0; i < n; i++ {
		b, err := s.bus.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read sample byte %d: %w", i, err)
		}
		sample = append(sample, b)
	}

	if n < SampleSize {
		glog.V(1).Infof("sensor: short sample, %d of %d bytes", n, SampleSize)
	}
	return sample, nil
}
