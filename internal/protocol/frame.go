package protocol

import "fmt"

// Frame is a single 4-byte ISP command: opcode, address high, address low
// and data. The meaning of the three operand bytes depends on the opcode.
type Frame [4]byte

// Response holds the 4 bytes clocked back while a Frame is sent.
type Response [4]byte

// NewFrame builds a frame from its four bytes.
func NewFrame(op, hi, lo, data byte) Frame {
	return Frame{op, hi, lo, data}
}

// AddressFrame builds a frame whose operands are a 16-bit address and a data byte.
// The address is not masked here.
func AddressFrame(op byte, addr uint16, data byte) Frame {
	return Frame{op, byte(addr >> 8), byte(addr), data}
}

// Op returns the opcode byte.
func (f Frame) Op() byte { return f[0] }

// Address returns the 16-bit address carried in bytes 1 and 2.
func (f Frame) Address() uint16 {
	return uint16(f[1])<<8 | uint16(f[2])
}

// Data returns the data byte.
func (f Frame) Data() byte { return f[3] }

func (f Frame) String() string {
	return fmt.Sprintf("[%02X %02X %02X %02X] %s", f[0], f[1], f[2], f[3], CommandName(f[0], f[1]))
}

// Echo returns the byte the target echoes during mode entry.
func (r Response) Echo() byte { return r[EchoIndex] }

// Result returns the byte that carries the read result for most opcodes.
func (r Response) Result() byte { return r[ResultIndex] }

func (r Response) String() string {
	return fmt.Sprintf("[%02X %02X %02X %02X]", r[0], r[1], r[2], r[3])
}

// Level is a logic level on the target reset line.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}
