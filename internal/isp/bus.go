package isp

import "github.com/bigbag/azinc-flasher/internal/protocol"

// Bus is the programming bus of the target: a full-duplex byte exchange
// plus control of the reset line.
type Bus interface {
	// Enable powers up the programming bus.
	Enable() error

	// Disable releases the programming bus lines.
	Disable() error

	// Exchange clocks one byte out and returns the byte clocked in.
	Exchange(b byte) (byte, error)

	// SetReset drives the target reset line.
	SetReset(l protocol.Level) error
}

// FrameExchanger is implemented by buses that can clock a whole frame in
// a single transaction. The codec prefers it over four Exchange calls.
type FrameExchanger interface {
	ExchangeFrame(f protocol.Frame) (protocol.Response, error)
}
