// Package sim provides in-memory stand-ins for the sensor board: an ISP
// target with flash, EEPROM and configuration bytes, and the sensor's
// register bus.
package sim

import (
	"errors"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

var errBusDisabled = errors.New("sim: programming bus disabled")

// Commit records a page commit seen by the target.
type Commit struct {
	Kind    protocol.Kind
	Address uint16
}

// Target simulates the ISP side of the sensor board's controller.
//
// The target only listens while its bus is enabled and reset is held low,
// and ignores everything but the program enable command until that command
// has been received.
type Target struct {
	Flash       [1024]uint16
	EEPROM      [128]byte
	Signature   [4]byte
	Calibration [2]byte
	Fuses       [3]byte
	Lock        byte

	// Mute makes the target return zeroes for every byte, as an absent or
	// unpowered target would.
	Mute bool

	// NoEcho makes the target answer program enable with a wrong echo.
	NoEcho bool

	// BusyPolls is the number of busy polls answered with "busy" after each
	// write or erase.
	BusyPolls int

	Commits []Commit
	Frames  []protocol.Frame
	Resets  []protocol.Level

	enabled     bool
	reset       protocol.Level
	programming bool

	frame    protocol.Frame
	pos      int
	flashBuf [16]uint16
	eeBuf    [4]byte
	eeLoaded [4]bool
	busy     int
}

// NewTarget returns an erased target with a typical signature, fuses and
// calibration.
func NewTarget() *Target {
	t := &Target{
		Signature:   [4]byte{0x1E, 0x91, 0x0B, 0x00},
		Calibration: [2]byte{0x6A, 0x5C},
		Fuses:       [3]byte{0x62, 0xDF, 0xFF},
		Lock:        0xFF,
		reset:       protocol.High,
	}
	t.erase()
	t.clearFlashBuffer()
	return t
}

// Programming reports whether the target accepted program enable.
func (t *Target) Programming() bool {
	return t.programming
}

// Enabled reports whether the programming bus is enabled.
func (t *Target) Enabled() bool {
	return t.enabled
}

// ResetLevel returns the current level of the reset line.
func (t *Target) ResetLevel() protocol.Level {
	return t.reset
}

// CommitsOf returns the commits recorded for one memory.
func (t *Target) CommitsOf(k protocol.Kind) []Commit {
	var out []Commit
	for _, c := range t.Commits {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Enable implements isp.Bus.
func (t *Target) Enable() error {
	t.enabled = true
	t.pos = 0
	return nil
}

// Disable implements isp.Bus.
func (t *Target) Disable() error {
	t.enabled = false
	t.pos = 0
	return nil
}

// SetReset implements isp.Bus. Releasing reset leaves programming mode.
func (t *Target) SetReset(l protocol.Level) error {
	t.reset = l
	t.Resets = append(t.Resets, l)
	if l == protocol.High {
		t.programming = false
		t.pos = 0
	}
	return nil
}

// Exchange implements isp.Bus.
func (t *Target) Exchange(b byte) (byte, error) {
	if !t.enabled {
		return 0, errBusDisabled
	}
	if t.Mute || t.reset == protocol.High {
		return 0, nil
	}

	t.frame[t.pos] = b
	var out byte
	switch t.pos {
	case 0:
		out = 0x00
	case 1, 2:
		out = t.frame[t.pos-1]
		if t.pos == protocol.EchoIndex && t.NoEcho {
			out = ^out
		}
	case 3:
		out = t.execute(t.frame)
	}

	t.pos++
	if t.pos == len(t.frame) {
		t.Frames = append(t.Frames, t.frame)
		t.pos = 0
	}
	return out, nil
}

func (t *Target) execute(f protocol.Frame) byte {
	op, sub, addr, data := f[0], f[1], f.Address(), f[3]

	if !t.programming {
		if op == protocol.CmdProgramEnable && sub == protocol.SubProgramEnable && !t.NoEcho {
			t.programming = true
		}
		return f[2]
	}

	switch op {
	case 0xAC:
		switch sub {
		case protocol.SubChipErase:
			t.erase()
			t.Lock = 0xFF
			t.busy = t.BusyPolls
		case protocol.SubWriteLock:
			t.Lock = data
		case protocol.SubWriteFuseLow:
			t.Fuses[0] = data
			t.busy = t.BusyPolls
		case protocol.SubWriteFuseHigh:
			t.Fuses[1] = data
			t.busy = t.BusyPolls
		case protocol.SubWriteFuseExt:
			t.Fuses[2] = data
			t.busy = t.BusyPolls
		}
		return f[2]

	case protocol.CmdLoadFlashLow:
		i := addr & protocol.Flash.OffsetMask
		t.flashBuf[i] = t.flashBuf[i]&0xFF00 | uint16(data)
	case protocol.CmdLoadFlashHigh:
		i := addr & protocol.Flash.OffsetMask
		t.flashBuf[i] = t.flashBuf[i]&0x00FF | uint16(data)<<8
	case protocol.CmdWriteFlashPage:
		page := addr & protocol.Flash.PageMask
		// Programming only clears bits; erase sets them.
		for i, w := range t.flashBuf {
			t.Flash[int(page)+i] &= w
		}
		t.clearFlashBuffer()
		t.Commits = append(t.Commits, Commit{Kind: protocol.KindFlash, Address: page})
		t.busy = t.BusyPolls
	case protocol.CmdReadFlashLow:
		return byte(t.Flash[addr&protocol.Flash.FullMask])
	case protocol.CmdReadFlashHigh:
		return byte(t.Flash[addr&protocol.Flash.FullMask] >> 8)

	case protocol.CmdLoadEEPROM:
		i := addr & protocol.EEPROM.OffsetMask
		t.eeBuf[i] = data
		t.eeLoaded[i] = true
	case protocol.CmdWriteEEPROMPage:
		page := addr & protocol.EEPROM.PageMask
		for i, loaded := range t.eeLoaded {
			if loaded {
				t.EEPROM[int(page)+i] = t.eeBuf[i]
			}
		}
		t.eeLoaded = [4]bool{}
		t.Commits = append(t.Commits, Commit{Kind: protocol.KindEEPROM, Address: page})
		t.busy = t.BusyPolls
	case protocol.CmdReadEEPROM:
		return t.EEPROM[addr&protocol.EEPROM.FullMask]
	case protocol.CmdWriteEEPROM:
		t.EEPROM[addr&protocol.EEPROM.FullMask] = data
		t.busy = t.BusyPolls

	case 0x58:
		if sub == protocol.SelFuseHigh {
			return t.Fuses[1]
		}
		return t.Lock
	case 0x50:
		if sub == protocol.SelFuseExt {
			return t.Fuses[2]
		}
		return t.Fuses[0]
	case protocol.CmdReadSignature:
		return t.Signature[f[2]&0x03]
	case protocol.CmdReadCalibration:
		return t.Calibration[f[2]&0x01]
	case protocol.CmdPollBusy:
		if t.busy > 0 {
			t.busy--
			return 0x01
		}
		return 0x00
	}
	return f[2]
}

func (t *Target) erase() {
	for i := range t.Flash {
		t.Flash[i] = 0xFFFF
	}
	for i := range t.EEPROM {
		t.EEPROM[i] = 0xFF
	}
}

func (t *Target) clearFlashBuffer() {
	for i := range t.flashBuf {
		t.flashBuf[i] = 0xFFFF
	}
}
