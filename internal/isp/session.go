package isp

import (
	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// Session is the proof that the target is in programming mode. It is only
// obtainable from Programmer.Enter and becomes unusable after Exit.
type Session struct {
	p      *Programmer
	closed bool
}

// Exit releases the target from programming mode. Calling Exit more than
// once is a no-op.
func (s *Session) Exit() error {
	if s.closed {
		return nil
	}
	return s.p.exit()
}

// Closed reports whether the session has exited.
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) exchange(op, hi, lo, data byte) (protocol.Response, error) {
	if s.closed {
		return protocol.Response{}, ErrSessionClosed
	}
	return s.p.codec.Exchange(op, hi, lo, data)
}

func (s *Session) exchangeAddr(op byte, addr uint16, data byte) (protocol.Response, error) {
	if s.closed {
		return protocol.Response{}, ErrSessionClosed
	}
	return s.p.codec.ExchangeFrame(protocol.AddressFrame(op, addr, data))
}
