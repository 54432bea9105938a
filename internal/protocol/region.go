package protocol

import "time"

// Kind identifies one of the two non-volatile memories of the target.
type Kind int

const (
	KindFlash Kind = iota
	KindEEPROM
)

func (k Kind) String() string {
	switch k {
	case KindFlash:
		return "flash"
	case KindEEPROM:
		return "eeprom"
	default:
		return "unknown"
	}
}

// Region describes the geometry of a target memory. Addresses are in units:
// words for flash, bytes for EEPROM.
type Region struct {
	Kind         Kind
	UnitSize     int
	UnitsPerPage int
	FullMask     uint16
	PageMask     uint16
	OffsetMask   uint16
}

// Fixed geometries of the sensor board's controller.
var (
	Flash = Region{
		Kind:         KindFlash,
		UnitSize:     2,
		UnitsPerPage: 16,
		FullMask:     0x03FF,
		PageMask:     0x03F0,
		OffsetMask:   0x000F,
	}
	EEPROM = Region{
		Kind:         KindEEPROM,
		UnitSize:     1,
		UnitsPerPage: 4,
		FullMask:     0x007F,
		PageMask:     0x007C,
		OffsetMask:   0x0003,
	}
)

// Flash and EEPROM page-write granularity in bytes.
const (
	FlashPageBytes  = 32
	EEPROMPageBytes = 4
)

// PageBytes returns the page size in bytes.
func (r Region) PageBytes() int {
	return r.UnitSize * r.UnitsPerPage
}

// Units returns the number of addressable units in the region.
func (r Region) Units() int {
	return int(r.FullMask) + 1
}

// Pages returns the number of pages needed to hold n units.
func (r Region) Pages(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + r.UnitsPerPage - 1) / r.UnitsPerPage
}

func (r Region) String() string {
	return r.Kind.String()
}

// Timing holds the fixed settle delays required by the target.
type Timing struct {
	Reset       time.Duration
	FlashWrite  time.Duration
	EEPROMWrite time.Duration
	Erase       time.Duration
	FuseWrite   time.Duration
	SensorRead  time.Duration
}

// DefaultTiming is the worst-case timing of the sensor board.
var DefaultTiming = Timing{
	Reset:       20 * time.Millisecond,
	FlashWrite:  5 * time.Millisecond,
	EEPROMWrite: 4 * time.Millisecond,
	Erase:       9 * time.Millisecond,
	FuseWrite:   5 * time.Millisecond,
	SensorRead:  1 * time.Millisecond,
}

// PageWrite returns the write settle delay for the given region.
func (t Timing) PageWrite(r Region) time.Duration {
	if r.Kind == KindEEPROM {
		return t.EEPROMWrite
	}
	return t.FlashWrite
}
