// Package bridge drives a USB-serial bridge MCU that clocks ISP bytes,
// drives the target reset line and runs I2C transactions on the host's
// behalf. Packets are SLIP framed.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
	"github.com/bigbag/azinc-flasher/internal/slip"
)

// ErrTimeout is returned when no response frame arrives in time.
var ErrTimeout = errors.New("timeout waiting for response")

// Port is the byte stream to the bridge.
type Port interface {
	Write(data []byte) (int, error)
	ReadWithTimeout(buf []byte, timeout time.Duration) (int, error)
	Flush() error
}

// Client speaks the bridge protocol. It implements isp.Bus,
// isp.FrameExchanger and sensor.Bus.
type Client struct {
	port    Port
	dec     slip.Decoder
	timeout time.Duration
	rx      []byte
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds how long a command waits for its response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Client over port.
func NewClient(port Port, opts ...Option) *Client {
	c := &Client{port: port, timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sync performs the SYNC handshake and returns the firmware version.
func (c *Client) Sync() (uint32, error) {
	req := NewRequest(CmdSync, SyncData())

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		c.port.Flush()
		c.dec.Reset()

		resp, err := c.roundTrip(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("sync rejected: %s", resp.ErrorString())
			continue
		}
		glog.V(1).Infof("bridge: synced, firmware version %d", resp.Value)
		return resp.Value, nil
	}

	return 0, fmt.Errorf("sync failed after 5 attempts: %w", lastErr)
}

// Enable powers up the ISP lines.
func (c *Client) Enable() error {
	_, err := c.command(CmdISPEnable, nil)
	return err
}

// Disable releases the ISP lines.
func (c *Client) Disable() error {
	_, err := c.command(CmdISPDisable, nil)
	return err
}

// SetReset drives the target reset line.
func (c *Client) SetReset(l protocol.Level) error {
	_, err := c.command(CmdReset, ResetData(bool(l)))
	return err
}

// Exchange clocks one byte through the bridge.
func (c *Client) Exchange(b byte) (byte, error) {
	in, err := c.Transfer([]byte{b})
	if err != nil {
		return 0, err
	}
	return in[0], nil
}

// ExchangeFrame clocks a whole frame in one bridge round trip.
func (c *Client) ExchangeFrame(f protocol.Frame) (protocol.Response, error) {
	var r protocol.Response
	in, err := c.Transfer(f[:])
	if err != nil {
		return r, err
	}
	copy(r[:], in)
	return r, nil
}

// Transfer clocks out and returns the bytes clocked in, one for one.
func (c *Client) Transfer(out []byte) ([]byte, error) {
	if len(out) == 0 || len(out) > MaxTransfer {
		return nil, fmt.Errorf("transfer of %d bytes out of range", len(out))
	}
	resp, err := c.command(CmdISPTransfer, out)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(out) {
		return nil, fmt.Errorf("transfer returned %d bytes, sent %d", len(resp.Data), len(out))
	}
	return resp.Data, nil
}

// Begin joins the I2C bus as controller.
func (c *Client) Begin() error {
	_, err := c.command(CmdI2CBegin, nil)
	return err
}

// Release leaves the I2C lines floating.
func (c *Client) Release() error {
	c.rx = nil
	_, err := c.command(CmdI2CRelease, nil)
	return err
}

// Transmit writes data to the device at addr. A non-zero transmission
// status from the bridge is logged and not treated as a failure.
func (c *Client) Transmit(addr uint16, data []byte) error {
	resp, err := c.roundTrip(NewRequest(CmdI2CWrite, I2CWriteData(addr, data)))
	if err != nil {
		return fmt.Errorf("I2C_WRITE: %w", err)
	}
	if !resp.IsSuccess() {
		glog.V(1).Infof("bridge: I2C write to 0x%02X: %s", addr, resp.ErrorString())
	}
	return nil
}

// RequestFrom asks the device at addr for n bytes and returns how many
// arrived. They are then available through ReadByte.
func (c *Client) RequestFrom(addr uint16, n int) (int, error) {
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("request of %d bytes out of range", n)
	}
	resp, err := c.command(CmdI2CRequest, I2CRequestData(addr, n))
	if err != nil {
		return 0, err
	}
	c.rx = append(c.rx[:0], resp.Data...)
	return len(resp.Data), nil
}

// ReadByte returns the next received I2C byte, or io.EOF.
func (c *Client) ReadByte() (byte, error) {
	if len(c.rx) == 0 {
		return 0, io.EOF
	}
	b := c.rx[0]
	c.rx = c.rx[1:]
	return b, nil
}

// command sends a request and fails on a non-success response.
func (c *Client) command(cmd byte, data []byte) (*Response, error) {
	resp, err := c.roundTrip(NewRequest(cmd, data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(cmd), err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%s failed: %s", CommandName(cmd), resp.ErrorString())
	}
	return resp, nil
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	frame := slip.Encode(req.Encode())
	if _, err := c.port.Write(frame); err != nil {
		return nil, err
	}
	glog.V(3).Infof("bridge: -> %s %X", CommandName(req.Command), req.Data)
	return c.readResponse(req.Command)
}

// readResponse returns the next response to cmd, skipping stale frames.
func (c *Client) readResponse(cmd byte) (*Response, error) {
	deadline := time.Now().Add(c.timeout)
	chunk := make([]byte, 256)

	for {
		for {
			data, ok := c.dec.Next()
			if !ok {
				break
			}
			resp, err := DecodeResponse(data)
			if err != nil {
				glog.V(3).Infof("bridge: dropping frame: %v", err)
				continue
			}
			if resp.Command != cmd {
				glog.V(3).Infof("bridge: dropping stale %s response", CommandName(resp.Command))
				continue
			}
			glog.V(3).Infof("bridge: <- %s value=%d %X", CommandName(resp.Command), resp.Value, resp.Data)
			return resp, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		n, err := c.port.ReadWithTimeout(chunk, 100*time.Millisecond)
		if n > 0 {
			c.dec.Write(chunk[:n])
		}
		if err != nil && n == 0 {
			if errors.Is(err, io.EOF) {
				continue
			}
			return nil, err
		}
	}
}
