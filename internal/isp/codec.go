package isp

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// Codec sends ISP frames over a Bus and collects the response bytes.
// It performs no validation of the opcode.
type Codec struct {
	bus Bus
}

// NewCodec creates a codec on top of bus.
func NewCodec(bus Bus) *Codec {
	return &Codec{bus: bus}
}

// Exchange sends the frame op, hi, lo, data and returns the response.
func (c *Codec) Exchange(op, hi, lo, data byte) (protocol.Response, error) {
	return c.ExchangeFrame(protocol.NewFrame(op, hi, lo, data))
}

// ExchangeFrame sends f one byte at a time, capturing each returned byte
// at the same position of the response.
func (c *Codec) ExchangeFrame(f protocol.Frame) (protocol.Response, error) {
	var resp protocol.Response

	if fx, ok := c.bus.(FrameExchanger); ok {
		r, err := fx.ExchangeFrame(f)
		if err != nil {
			return resp, fmt.Errorf("exchange %s: %w", f, err)
		}
		resp = r
	} else {
		for i, b := range f {
			r, err := c.bus.Exchange(b)
			if err != nil {
				return resp, fmt.Errorf("exchange byte %d of %s: %w", i, f, err)
			}
			resp[i] = r
		}
	}

	glog.V(3).Infof("isp %s -> %s", f, resp)
	return resp, nil
}
