// Package periph drives the target directly from host SPI, GPIO and I2C
// lines through periph.io.
package periph

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// DefaultSpeed is slow enough for a target on its 1MHz internal clock.
const DefaultSpeed = 100 * physic.KiloHertz

var errDisabled = errors.New("periph: programming bus disabled")

// Transport implements isp.Bus, isp.FrameExchanger and sensor.Bus over
// host peripherals.
type Transport struct {
	port  spi.Port
	clock physic.Frequency
	conn  spi.Conn
	reset gpio.PinOut
	bus   i2c.Bus

	enabled bool
	begun   bool
	rx      []byte
}

// New assembles a Transport. The SPI port is connected on first Enable.
func New(port spi.Port, clock physic.Frequency, reset gpio.PinOut, bus i2c.Bus) *Transport {
	if clock == 0 {
		clock = DefaultSpeed
	}
	return &Transport{
		port:  port,
		clock: clock,
		reset: reset,
		bus:   bus,
	}
}

// Enable connects the SPI port and opens the bus for exchanges.
func (t *Transport) Enable() error {
	if t.conn == nil {
		conn, err := t.port.Connect(t.clock, spi.Mode0, 8)
		if err != nil {
			return fmt.Errorf("failed to connect SPI: %w", err)
		}
		t.conn = conn
		glog.V(1).Infof("periph: SPI connected at %s", t.clock)
	}
	t.enabled = true
	return nil
}

// Disable stops exchanges. The spidev keeps its pins; the target ignores
// them once reset is released.
func (t *Transport) Disable() error {
	t.enabled = false
	return nil
}

// SetReset drives the reset pin.
func (t *Transport) SetReset(l protocol.Level) error {
	return t.reset.Out(gpio.Level(l))
}

// Exchange clocks one byte.
func (t *Transport) Exchange(b byte) (byte, error) {
	if !t.enabled {
		return 0, errDisabled
	}
	buf := []byte{b}
	if err := t.conn.Tx(buf, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ExchangeFrame clocks a whole frame in one transaction.
func (t *Transport) ExchangeFrame(f protocol.Frame) (protocol.Response, error) {
	var r protocol.Response
	if !t.enabled {
		return r, errDisabled
	}
	if err := t.conn.Tx(f[:], r[:]); err != nil {
		return r, err
	}
	return r, nil
}

// Begin claims the I2C bus.
func (t *Transport) Begin() error {
	t.begun = true
	return nil
}

// Release floats SCL and SDA when the bus exposes its pins.
func (t *Transport) Release() error {
	t.begun = false
	t.rx = nil

	pins, ok := t.bus.(i2c.Pins)
	if !ok {
		return nil
	}
	for _, p := range []gpio.PinIO{pins.SCL(), pins.SDA()} {
		if p == nil || p == gpio.INVALID {
			continue
		}
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			return fmt.Errorf("failed to release %s: %w", p, err)
		}
	}
	return nil
}

// Transmit writes data to addr. A failed transaction is logged only.
func (t *Transport) Transmit(addr uint16, data []byte) error {
	if !t.begun {
		return errors.New("periph: I2C bus not started")
	}
	if err := t.bus.Tx(addr, data, nil); err != nil {
		glog.V(1).Infof("periph: I2C write to 0x%02X: %v", addr, err)
	}
	return nil
}

// RequestFrom reads n bytes from addr. A failed transaction yields zero
// bytes.
func (t *Transport) RequestFrom(addr uint16, n int) (int, error) {
	if !t.begun {
		return 0, errors.New("periph: I2C bus not started")
	}
	buf := make([]byte, n)
	if err := t.bus.Tx(addr, nil, buf); err != nil {
		glog.V(1).Infof("periph: I2C read from 0x%02X: %v", addr, err)
		t.rx = nil
		return 0, nil
	}
	t.rx = buf
	return n, nil
}

// ReadByte returns the next received byte.
func (t *Transport) ReadByte() (byte, error) {
	if len(t.rx) == 0 {
		return 0, io.EOF
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

// Config names the host peripherals to open.
type Config struct {
	SPI      string
	Speed    physic.Frequency
	ResetPin string
	I2C      string
}

// Board is a Transport over opened host peripherals.
type Board struct {
	*Transport
	spiPort spi.PortCloser
	i2cBus  i2c.BusCloser
}

// Open opens the configured peripherals. host.Init must have run.
func Open(cfg Config) (*Board, error) {
	reset := gpioreg.ByName(cfg.ResetPin)
	if reset == nil {
		return nil, fmt.Errorf("unknown reset pin %q", cfg.ResetPin)
	}

	port, err := spireg.Open(cfg.SPI)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI %q: %w", cfg.SPI, err)
	}

	bus, err := i2creg.Open(cfg.I2C)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to open I2C %q: %w", cfg.I2C, err)
	}

	return &Board{
		Transport: New(port, cfg.Speed, reset, bus),
		spiPort:   port,
		i2cBus:    bus,
	}, nil
}

// Close closes the SPI port and I2C bus.
func (b *Board) Close() error {
	return errors.Join(b.spiPort.Close(), b.i2cBus.Close())
}
