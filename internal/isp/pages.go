package isp

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// WriteFlashPages loads words into the flash page buffer and commits one page
// at a time, starting at the word address pageAddr. A partial final page is
// committed with only its supplied words loaded.
func (s *Session) WriteFlashPages(words []uint16, pageAddr uint16) error {
	return s.writePages(protocol.Flash, len(words), pageAddr, func(offset uint16, i int) error {
		return s.LoadFlashWord(offset, words[i])
	}, s.CommitFlashPage)
}

// WriteEEPROMPages loads bytes into the EEPROM page buffer and commits one
// page at a time, starting at the byte address pageAddr.
func (s *Session) WriteEEPROMPages(data []byte, pageAddr uint16) error {
	return s.writePages(protocol.EEPROM, len(data), pageAddr, func(offset uint16, i int) error {
		return s.LoadEEPROMByte(offset, data[i])
	}, s.CommitEEPROMPage)
}

// writePages loads n units page by page. Pages commit in ascending address
// order and units load in ascending in-page offset order.
func (s *Session) writePages(r protocol.Region, n int, pageAddr uint16,
	load func(offset uint16, i int) error, commit func(addr uint16) error) error {
	if s.closed {
		return ErrSessionClosed
	}

	pages := r.Pages(n)
	idx := 0
	for page := 0; page < pages; page++ {
		for offset := 0; offset < r.UnitsPerPage && idx < n; offset++ {
			if err := load(uint16(offset), idx); err != nil {
				return fmt.Errorf("load %s unit %d: %w", r, idx, err)
			}
			idx++
		}

		if err := commit(pageAddr); err != nil {
			return fmt.Errorf("commit %s page 0x%04X: %w", r, pageAddr&r.PageMask, err)
		}
		glog.V(2).Infof("isp: committed %s page 0x%04X (%d/%d)", r, pageAddr&r.PageMask, page+1, pages)

		if cb := s.p.config.PageCallback; cb != nil {
			cb(r, page+1, pages)
		}
		pageAddr += uint16(r.UnitsPerPage)
	}
	return nil
}

// ReadFlashWords reads n words starting at the word address addr. Words are
// read one at a time from the highest address down.
func (s *Session) ReadFlashWords(addr uint16, n int) ([]uint16, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative flash read count %d", n)
	}
	out := make([]uint16, n)
	for ; n > 0; n-- {
		w, err := s.ReadFlashWord(addr + uint16(n-1))
		if err != nil {
			return nil, err
		}
		out[n-1] = w
	}
	return out, nil
}

// ReadEEPROMBytes reads n bytes starting at the byte address addr.
func (s *Session) ReadEEPROMBytes(addr uint16, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative EEPROM read count %d", n)
	}
	out := make([]byte, n)
	for ; n > 0; n-- {
		b, err := s.ReadEEPROMByte(addr + uint16(n-1))
		if err != nil {
			return nil, err
		}
		out[n-1] = b
	}
	return out, nil
}

// ReadFlashWord reads the flash word at addr, low byte first.
func (s *Session) ReadFlashWord(addr uint16) (uint16, error) {
	addr &= protocol.Flash.FullMask

	lo, err := s.exchangeAddr(protocol.CmdReadFlashLow, addr, 0x00)
	if err != nil {
		return 0, err
	}
	hi, err := s.exchangeAddr(protocol.CmdReadFlashHigh, addr, 0x00)
	if err != nil {
		return 0, err
	}
	return uint16(lo.Result()) | uint16(hi.Result())<<8, nil
}

// LoadFlashWord places w in the flash page buffer at the in-page offset.
func (s *Session) LoadFlashWord(offset uint16, w uint16) error {
	offset &= protocol.Flash.OffsetMask

	if _, err := s.exchangeAddr(protocol.CmdLoadFlashLow, offset, byte(w)); err != nil {
		return err
	}
	_, err := s.exchangeAddr(protocol.CmdLoadFlashHigh, offset, byte(w>>8))
	return err
}

// CommitFlashPage writes the flash page buffer to the page containing addr.
func (s *Session) CommitFlashPage(addr uint16) error {
	addr &= protocol.Flash.PageMask

	if _, err := s.exchangeAddr(protocol.CmdWriteFlashPage, addr, 0x00); err != nil {
		return err
	}
	return s.p.settle(s.p.config.Timing.PageWrite(protocol.Flash))
}

// ReadEEPROMByte reads the EEPROM byte at addr.
func (s *Session) ReadEEPROMByte(addr uint16) (byte, error) {
	addr &= protocol.EEPROM.FullMask

	resp, err := s.exchangeAddr(protocol.CmdReadEEPROM, addr, 0x00)
	if err != nil {
		return 0, err
	}
	return resp.Result(), nil
}

// WriteEEPROMByte writes a single EEPROM byte without using the page buffer.
func (s *Session) WriteEEPROMByte(addr uint16, b byte) error {
	addr &= protocol.EEPROM.FullMask

	if _, err := s.exchangeAddr(protocol.CmdWriteEEPROM, addr, b); err != nil {
		return err
	}
	return s.p.settle(s.p.config.Timing.EEPROMWrite)
}

// LoadEEPROMByte places b in the EEPROM page buffer at the in-page offset.
func (s *Session) LoadEEPROMByte(offset uint16, b byte) error {
	offset &= protocol.EEPROM.OffsetMask

	_, err := s.exchangeAddr(protocol.CmdLoadEEPROM, offset, b)
	return err
}

// CommitEEPROMPage writes the EEPROM page buffer to the page containing addr.
func (s *Session) CommitEEPROMPage(addr uint16) error {
	addr &= protocol.EEPROM.PageMask

	if _, err := s.exchangeAddr(protocol.CmdWriteEEPROMPage, addr, 0x00); err != nil {
		return err
	}
	return s.p.settle(s.p.config.Timing.PageWrite(protocol.EEPROM))
}
