package isp

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// Fuses holds the three fuse bytes of the target.
type Fuses struct {
	Low      byte
	High     byte
	Extended byte
}

// Packed returns the fuses as low | high<<8 | extended<<16.
func (f Fuses) Packed() uint32 {
	return uint32(f.Low) | uint32(f.High)<<8 | uint32(f.Extended)<<16
}

func (f Fuses) String() string {
	return fmt.Sprintf("low=0x%02X high=0x%02X ext=0x%02X", f.Low, f.High, f.Extended)
}

// EraseChip erases flash and EEPROM and waits for the erase to finish.
func (s *Session) EraseChip() error {
	if _, err := s.exchange(protocol.CmdChipErase, protocol.SubChipErase, 0x00, 0x00); err != nil {
		return err
	}
	glog.V(1).Info("isp: chip erase")
	return s.p.settle(s.p.config.Timing.Erase)
}

// PollBusy reports whether the target is still completing a write.
func (s *Session) PollBusy() (bool, error) {
	resp, err := s.exchange(protocol.CmdPollBusy, 0x00, 0x00, 0x00)
	if err != nil {
		return false, err
	}
	return resp.Result() != 0, nil
}

// ReadLockBits reads the lock byte.
func (s *Session) ReadLockBits() (byte, error) {
	resp, err := s.exchange(protocol.CmdReadLock, protocol.SelLock, 0x00, 0x00)
	if err != nil {
		return 0, err
	}
	return resp.Result(), nil
}

// WriteLockBits writes the lock byte.
func (s *Session) WriteLockBits(lock byte) error {
	_, err := s.exchange(protocol.CmdWriteLock, protocol.SubWriteLock, 0x00, lock)
	return err
}

// ReadSignature reads the four signature bytes at sub-addresses 0 to 3 and
// assembles them little-endian.
func (s *Session) ReadSignature() (uint32, error) {
	var sig uint32
	for i := 0; i < 4; i++ {
		resp, err := s.exchange(protocol.CmdReadSignature, 0x00, byte(i), 0x00)
		if err != nil {
			return 0, err
		}
		sig |= uint32(resp.Result()) << (8 * i)
	}
	return sig, nil
}

// WriteFuses writes the low, high and extended fuse bytes in that order,
// each followed by the fuse write delay.
func (s *Session) WriteFuses(f Fuses) error {
	writes := []struct {
		sub   byte
		value byte
	}{
		{protocol.SubWriteFuseLow, f.Low},
		{protocol.SubWriteFuseHigh, f.High},
		{protocol.SubWriteFuseExt, f.Extended},
	}

	for _, w := range writes {
		if _, err := s.exchange(protocol.CmdWriteFuse, w.sub, 0x00, w.value); err != nil {
			return err
		}
		if err := s.p.settle(s.p.config.Timing.FuseWrite); err != nil {
			return err
		}
	}
	glog.V(1).Infof("isp: fuses written %s", f)
	return nil
}

// ReadFuses reads the low, high and extended fuse bytes.
func (s *Session) ReadFuses() (Fuses, error) {
	var f Fuses

	lo, err := s.exchange(protocol.CmdReadFuseLow, protocol.SelFuseLow, 0x00, 0x00)
	if err != nil {
		return f, err
	}
	hi, err := s.exchange(protocol.CmdReadFuseHigh, protocol.SelFuseHigh, 0x00, 0x00)
	if err != nil {
		return f, err
	}
	ext, err := s.exchange(protocol.CmdReadFuseExt, protocol.SelFuseExt, 0x00, 0x00)
	if err != nil {
		return f, err
	}

	f.Low = lo.Result()
	f.High = hi.Result()
	f.Extended = ext.Result()
	return f, nil
}

// ReadCalibration reads the two oscillator calibration bytes, low byte first.
func (s *Session) ReadCalibration() (uint16, error) {
	lo, err := s.exchange(protocol.CmdReadCalibration, 0x00, 0x00, 0x00)
	if err != nil {
		return 0, err
	}
	hi, err := s.exchange(protocol.CmdReadCalibration, 0x00, 0x01, 0x00)
	if err != nil {
		return 0, err
	}
	return uint16(lo.Result()) | uint16(hi.Result())<<8, nil
}
