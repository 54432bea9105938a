// Package slip implements RFC 1055 framing for the bridge link.
package slip

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// Encode wraps data in a SLIP frame with an END byte on both sides.
func Encode(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8+2)
	out = append(out, End)

	for _, b := range data {
		switch b {
		case End:
			out = append(out, Esc, EscEnd)
		case Esc:
			out = append(out, Esc, EscEsc)
		default:
			out = append(out, b)
		}
	}

	return append(out, End)
}

// Decoder assembles frames from a byte stream that may arrive in arbitrary
// chunks. Bytes before the first END are discarded.
type Decoder struct {
	inFrame bool
	escaped bool
	cur     []byte
	frames  [][]byte
}

// Write feeds stream bytes to the decoder. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.feed(b)
	}
	return len(p), nil
}

func (d *Decoder) feed(b byte) {
	if b == End {
		if d.inFrame && len(d.cur) > 0 {
			d.frames = append(d.frames, d.cur)
		}
		d.inFrame = true
		d.escaped = false
		d.cur = nil
		return
	}
	if !d.inFrame {
		return
	}

	if d.escaped {
		d.escaped = false
		switch b {
		case EscEnd:
			b = End
		case EscEsc:
			b = Esc
		}
		d.cur = append(d.cur, b)
		return
	}
	if b == Esc {
		d.escaped = true
		return
	}
	d.cur = append(d.cur, b)
}

// Next returns the payload of the oldest complete frame.
func (d *Decoder) Next() ([]byte, bool) {
	if len(d.frames) == 0 {
		return nil, false
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, true
}

// Reset drops any partial and buffered frames.
func (d *Decoder) Reset() {
	*d = Decoder{}
}

// Decode returns the payload of a single complete frame, or nil.
func Decode(frame []byte) []byte {
	var d Decoder
	d.Write(frame)
	p, _ := d.Next()
	return p
}
