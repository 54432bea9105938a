// Package image reads and writes flash and EEPROM images as Intel HEX.
//
// Flash images are byte addressed with each word stored little-endian, the
// way AVR toolchains emit them. Gaps between records read as erased memory.
package image

import (
	"errors"
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

const lineLength = 16

// ErrEmpty is returned for a hex file without data records.
var ErrEmpty = errors.New("image has no data")

// Flash is a flash image in words starting at a word address.
type Flash struct {
	Address uint16
	Words   []uint16
}

// EEPROM is an EEPROM image starting at a byte address.
type EEPROM struct {
	Address uint16
	Data    []byte
}

// LoadFlash parses a flash image.
func LoadFlash(r io.Reader) (*Flash, error) {
	start, data, err := load(r, protocol.Flash)
	if err != nil {
		return nil, err
	}
	if start%2 != 0 {
		return nil, fmt.Errorf("flash image starts at odd address 0x%04X", start)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("flash image has odd length %d", len(data))
	}

	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
	}
	return &Flash{Address: uint16(start / 2), Words: words}, nil
}

// LoadEEPROM parses an EEPROM image.
func LoadEEPROM(r io.Reader) (*EEPROM, error) {
	start, data, err := load(r, protocol.EEPROM)
	if err != nil {
		return nil, err
	}
	return &EEPROM{Address: uint16(start), Data: data}, nil
}

// load returns the byte span covered by the records, gaps padded with 0xFF.
func load(r io.Reader, region protocol.Region) (uint32, []byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return 0, nil, fmt.Errorf("failed to parse hex: %w", err)
	}

	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return 0, nil, ErrEmpty
	}

	start, end := segments[0].Address, segments[0].Address
	for _, seg := range segments {
		start = min(start, seg.Address)
		end = max(end, seg.Address+uint32(len(seg.Data)))
	}

	capacity := uint32(region.Units() * region.UnitSize)
	if end > capacity {
		return 0, nil, fmt.Errorf("%s image ends at 0x%04X, beyond 0x%04X", region, end, capacity)
	}

	return start, mem.ToBinary(start, end-start, 0xFF), nil
}

// DumpFlash writes words as a flash image.
func DumpFlash(w io.Writer, f *Flash) error {
	data := make([]byte, 2*len(f.Words))
	for i, word := range f.Words {
		data[2*i] = byte(word)
		data[2*i+1] = byte(word >> 8)
	}
	return dump(w, uint32(f.Address)*2, data)
}

// DumpEEPROM writes bytes as an EEPROM image.
func DumpEEPROM(w io.Writer, e *EEPROM) error {
	return dump(w, uint32(e.Address), e.Data)
}

func dump(w io.Writer, addr uint32, data []byte) error {
	mem := gohex.NewMemory()
	if len(data) > 0 {
		if err := mem.AddBinary(addr, data); err != nil {
			return fmt.Errorf("failed to build hex: %w", err)
		}
	}
	return mem.DumpIntelHex(w, lineLength)
}
