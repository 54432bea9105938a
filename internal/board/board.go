// Package board coordinates the two buses of the sensor board. The
// programming bus and the sensor bus share physical lines, so only one of
// them may be active at a time.
package board

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/sensor"
)

// ErrBusBusy is returned when one bus is requested while the other is active.
var ErrBusBusy = errors.New("board bus in use")

// Mode is the bus currently driven by the host.
type Mode int

const (
	ModeNone Mode = iota
	ModeProgramming
	ModeSampling
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeProgramming:
		return "programming"
	case ModeSampling:
		return "sampling"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Board owns the programmer and the sampler of one sensor board.
type Board struct {
	prog    *isp.Programmer
	sampler *sensor.Sampler
	bus     isp.Bus
	session *isp.Session
	mode    Mode
}

type options struct {
	isp    []isp.Option
	sensor []sensor.Option
}

// Option configures a Board.
type Option func(*options)

// WithISPOptions passes options to the board's programmer.
func WithISPOptions(opts ...isp.Option) Option {
	return func(o *options) {
		o.isp = append(o.isp, opts...)
	}
}

// WithSensorOptions passes options to the board's sampler.
func WithSensorOptions(opts ...sensor.Option) Option {
	return func(o *options) {
		o.sensor = append(o.sensor, opts...)
	}
}

// New creates a Board over the given programming and sensor buses.
func New(progBus isp.Bus, sensorBus sensor.Bus, opts ...Option) *Board {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Board{
		prog:    isp.New(progBus, o.isp...),
		sampler: sensor.NewSampler(sensorBus, o.sensor...),
		bus:     progBus,
	}
}

// SetPageCallback sets the callback invoked after every page commit.
func (b *Board) SetPageCallback(cb isp.PageCallback) {
	b.prog.SetPageCallback(cb)
}

// Mode returns the active bus.
func (b *Board) Mode() Mode {
	return b.mode
}

// Init puts the board in a known state: programming bus off, sensor lines
// released and the target freshly reset.
func (b *Board) Init() error {
	if b.mode != ModeNone {
		return fmt.Errorf("%w: %s", ErrBusBusy, b.mode)
	}
	if err := b.bus.Disable(); err != nil {
		return fmt.Errorf("disable programming bus: %w", err)
	}
	if err := b.sampler.Stop(); err != nil {
		return fmt.Errorf("release sensor bus: %w", err)
	}
	return b.prog.Reset()
}

// EnterProgramming puts the target in programming mode. It fails with
// ErrBusBusy while sampling.
func (b *Board) EnterProgramming() (*isp.Session, error) {
	if b.mode != ModeNone {
		return nil, fmt.Errorf("%w: %s", ErrBusBusy, b.mode)
	}

	s, err := b.prog.Enter()
	if err != nil {
		return nil, err
	}
	b.session = s
	b.mode = ModeProgramming
	return s, nil
}

// ExitProgramming releases the target from programming mode.
func (b *Board) ExitProgramming() error {
	if b.mode != ModeProgramming {
		return nil
	}
	err := b.session.Exit()
	b.session = nil
	b.mode = ModeNone
	return err
}

// Program runs fn inside a programming session and always exits afterwards.
func (b *Board) Program(fn func(s *isp.Session) error) error {
	s, err := b.EnterProgramming()
	if err != nil {
		return err
	}

	fnErr := fn(s)
	exitErr := b.ExitProgramming()
	if fnErr != nil {
		return fnErr
	}
	return exitErr
}

// StartSampling takes control of the sensor bus. It fails with ErrBusBusy
// while programming.
func (b *Board) StartSampling() error {
	switch b.mode {
	case ModeSampling:
		return nil
	case ModeProgramming:
		return fmt.Errorf("%w: %s", ErrBusBusy, b.mode)
	}

	if err := b.sampler.Start(); err != nil {
		return err
	}
	b.mode = ModeSampling
	glog.V(1).Info("board: sampling started")
	return nil
}

// ReadSample reads one raw sample. Sampling must have been started.
func (b *Board) ReadSample() ([]byte, error) {
	if b.mode != ModeSampling {
		return nil, fmt.Errorf("sampling not started (mode %s)", b.mode)
	}
	return b.sampler.Read()
}

// StopSampling releases the sensor bus.
func (b *Board) StopSampling() error {
	if b.mode != ModeSampling {
		return nil
	}
	b.mode = ModeNone
	glog.V(1).Info("board: sampling stopped")
	return b.sampler.Stop()
}
