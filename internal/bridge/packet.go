package bridge

import (
	"encoding/binary"
	"fmt"
)

// Request represents a host-to-bridge packet.
type Request struct {
	Command  byte
	Data     []byte
	Checksum uint32
}

// Response represents a bridge-to-host packet.
type Response struct {
	Command byte
	Data    []byte
	Value   uint32
	Status  byte
	Error   byte
}

// NewRequest creates a new request with calculated checksum.
func NewRequest(cmd byte, data []byte) *Request {
	return &Request{
		Command:  cmd,
		Data:     data,
		Checksum: Checksum(data),
	}
}

// Checksum is 0xEF XORed with every data byte.
func Checksum(data []byte) uint32 {
	var sum byte = 0xEF
	for _, b := range data {
		sum ^= b
	}
	return uint32(sum)
}

// Encode serializes the request to bytes (before SLIP encoding).
func (r *Request) Encode() []byte {
	// 0: direction, 1: command, 2-3: size, 4-7: checksum, 8+: data
	packet := make([]byte, 8+len(r.Data))

	packet[0] = DirRequest
	packet[1] = r.Command
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(r.Data)))
	binary.LittleEndian.PutUint32(packet[4:8], r.Checksum)
	copy(packet[8:], r.Data)

	return packet
}

// DecodeRequest parses a request and validates its checksum.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("request too short: %d bytes", len(data))
	}
	if data[0] != DirRequest {
		return nil, fmt.Errorf("invalid direction byte: 0x%02X", data[0])
	}

	size := int(binary.LittleEndian.Uint16(data[2:4]))
	if size != len(data)-8 {
		return nil, fmt.Errorf("data size mismatch: expected %d, have %d", size, len(data)-8)
	}

	req := &Request{
		Command:  data[1],
		Data:     data[8:],
		Checksum: binary.LittleEndian.Uint32(data[4:8]),
	}
	if want := Checksum(req.Data); req.Checksum != want {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, want 0x%02X", req.Checksum, want)
	}

	return req, nil
}

// Encode serializes the response to bytes (before SLIP encoding). Status and
// error trail the data and are counted in the size field.
func (r *Response) Encode() []byte {
	size := len(r.Data) + 2
	packet := make([]byte, 8+size)

	packet[0] = DirResponse
	packet[1] = r.Command
	binary.LittleEndian.PutUint16(packet[2:4], uint16(size))
	binary.LittleEndian.PutUint32(packet[4:8], r.Value)
	copy(packet[8:], r.Data)
	packet[8+len(r.Data)] = r.Status
	packet[9+len(r.Data)] = r.Error

	return packet
}

// DecodeResponse parses a response from raw bytes (after SLIP decoding).
func DecodeResponse(data []byte) (*Response, error) {
	// 8 bytes header + 2 bytes status
	if len(data) < 10 {
		return nil, fmt.Errorf("response too short: %d bytes", len(data))
	}

	if data[0] != DirResponse {
		return nil, fmt.Errorf("invalid direction byte: 0x%02X", data[0])
	}

	resp := &Response{
		Command: data[1],
		Value:   binary.LittleEndian.Uint32(data[4:8]),
	}

	size := int(binary.LittleEndian.Uint16(data[2:4]))
	if size < 2 || size > len(data)-8 {
		return nil, fmt.Errorf("data size mismatch: expected %d, have %d", size, len(data)-8)
	}

	resp.Data = data[8 : 8+size-2]
	resp.Status = data[8+size-2]
	resp.Error = data[8+size-1]

	return resp, nil
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status == 0 && r.Error == 0
}

// ErrorString returns a human-readable error message.
func (r *Response) ErrorString() string {
	if r.IsSuccess() {
		return ""
	}
	return fmt.Sprintf("status=0x%02X error=0x%02X (%s)", r.Status, r.Error, ErrorMessage(r.Error))
}

// SyncMagic is the SYNC payload. The bridge answers only a SYNC carrying it,
// so stray serial devices do not look like a bridge.
const SyncMagic = "AZB1"

// SyncData returns the data payload for a SYNC command.
func SyncData() []byte {
	return []byte(SyncMagic)
}

// ResetData returns the payload for RESET.
func ResetData(high bool) []byte {
	if high {
		return []byte{1}
	}
	return []byte{0}
}

// I2CWriteData returns the payload for I2C_WRITE: address then bytes.
func I2CWriteData(addr uint16, data []byte) []byte {
	out := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(out[0:2], addr)
	copy(out[2:], data)
	return out
}

// I2CRequestData returns the payload for I2C_REQUEST: address then count.
func I2CRequestData(addr uint16, n int) []byte {
	out := make([]byte, 3)
	binary.LittleEndian.PutUint16(out[0:2], addr)
	out[2] = byte(n)
	return out
}
