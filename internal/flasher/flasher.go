// Package flasher runs complete programming workflows against a sensor
// board: flash and verify images, dump memories, read device information.
package flasher

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/board"
	"github.com/bigbag/azinc-flasher/internal/image"
	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// SignatureATtiny24 is the signature of the sensor board's controller as
// returned by ReadSignature.
const SignatureATtiny24 = 0x000B911E

// ChipName returns human-readable name for a device signature
func ChipName(sig uint32) string {
	switch sig {
	case SignatureATtiny24:
		return "ATtiny24"
	case 0x00000000, 0x00FFFFFF, 0xFFFFFFFF:
		return "no device"
	default:
		return "unknown"
	}
}

// ProgressCallback is called to report progress in pages.
type ProgressCallback func(current, total int)

// SignatureMismatchError is returned when the target is not the expected
// device.
type SignatureMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: expected 0x%06X, got 0x%06X", e.Expected, e.Actual)
}

// VerifyError reports the first unit that read back differently.
type VerifyError struct {
	Region   protocol.Region
	Address  uint16
	Expected uint16
	Actual   uint16
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s verify failed at 0x%04X: expected 0x%02X, got 0x%02X",
		e.Region, e.Address, e.Expected, e.Actual)
}

// Image is everything that can be written in one session. Nil parts are
// skipped.
type Image struct {
	Flash  *image.Flash
	EEPROM *image.EEPROM
	Fuses  *isp.Fuses
	Lock   *byte
}

// Options control the flash workflow.
type Options struct {
	// Erase performs a chip erase before writing flash.
	Erase bool

	// Verify reads back every written region.
	Verify bool

	// Signature is checked before anything is written when non-zero.
	Signature uint32
}

// DeviceInfo holds the identification and configuration of the target.
type DeviceInfo struct {
	Signature   uint32
	Fuses       isp.Fuses
	Lock        byte
	Calibration uint16
}

// Flasher runs workflows on a board.
type Flasher struct {
	board    *board.Board
	progress ProgressCallback
}

// New creates a new Flasher for the given board.
func New(b *board.Board) *Flasher {
	return &Flasher{board: b}
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	f.progress = cb
}

// reportProgress calls the progress callback if set.
func (f *Flasher) reportProgress(current, total int) {
	if f.progress != nil {
		f.progress(current, total)
	}
}

// Flash writes img to the target in a single programming session.
func (f *Flasher) Flash(img Image, opts Options) error {
	total := 0
	if img.Flash != nil {
		total += flashPages(img.Flash)
	}
	if img.EEPROM != nil {
		total += protocol.EEPROM.Pages(len(img.EEPROM.Data))
	}

	done := 0
	f.board.SetPageCallback(func(_ protocol.Region, page, _ int) {
		f.reportProgress(done+page, total)
	})
	defer f.board.SetPageCallback(nil)

	return f.board.Program(func(s *isp.Session) error {
		if opts.Signature != 0 {
			if err := checkSignature(s, opts.Signature); err != nil {
				return err
			}
		}

		if opts.Erase {
			glog.Info("Erasing chip")
			if err := s.EraseChip(); err != nil {
				return fmt.Errorf("erase failed: %w", err)
			}
		}

		if img.Flash != nil {
			glog.Infof("Writing %d flash words at 0x%04X", len(img.Flash.Words), img.Flash.Address)
			if err := writeFlash(s, img.Flash, opts.Verify); err != nil {
				return err
			}
			done += flashPages(img.Flash)
		}

		if img.EEPROM != nil {
			glog.Infof("Writing %d EEPROM bytes at 0x%04X", len(img.EEPROM.Data), img.EEPROM.Address)
			if err := writeEEPROM(s, img.EEPROM, opts.Verify); err != nil {
				return err
			}
			done += protocol.EEPROM.Pages(len(img.EEPROM.Data))
		}

		if img.Fuses != nil {
			glog.Infof("Writing fuses %s", img.Fuses)
			if err := writeFuses(s, *img.Fuses, opts.Verify); err != nil {
				return err
			}
		}

		if img.Lock != nil {
			glog.Infof("Writing lock bits 0x%02X", *img.Lock)
			if err := s.WriteLockBits(*img.Lock); err != nil {
				return fmt.Errorf("lock write failed: %w", err)
			}
		}
		return nil
	})
}

// flashPages counts the pages touched by a page-aligned write of fl.
func flashPages(fl *image.Flash) int {
	lead := int(fl.Address & protocol.Flash.OffsetMask)
	return protocol.Flash.Pages(lead + len(fl.Words))
}

func checkSignature(s *isp.Session, want uint32) error {
	sig, err := s.ReadSignature()
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	if sig != want {
		return &SignatureMismatchError{Expected: want, Actual: sig}
	}
	return nil
}

// writeFlash aligns the image to a page boundary by padding with erased
// words, which leave the cells they land on unchanged.
func writeFlash(s *isp.Session, fl *image.Flash, verify bool) error {
	if int(fl.Address)+len(fl.Words) > protocol.Flash.Units() {
		return fmt.Errorf("flash image of %d words at 0x%04X does not fit", len(fl.Words), fl.Address)
	}
	lead := fl.Address & protocol.Flash.OffsetMask
	start := fl.Address - lead

	words := make([]uint16, int(lead)+len(fl.Words))
	for i := 0; i < int(lead); i++ {
		words[i] = 0xFFFF
	}
	copy(words[lead:], fl.Words)

	if err := s.WriteFlashPages(words, start); err != nil {
		return fmt.Errorf("flash write failed: %w", err)
	}
	if !verify {
		return nil
	}

	got, err := s.ReadFlashWords(fl.Address, len(fl.Words))
	if err != nil {
		return fmt.Errorf("flash read back failed: %w", err)
	}
	for i, w := range fl.Words {
		if got[i] != w {
			return &VerifyError{Region: protocol.Flash, Address: fl.Address + uint16(i), Expected: w, Actual: got[i]}
		}
	}
	return nil
}

// writeEEPROM uses page writes for page-aligned images and single byte
// writes otherwise.
func writeEEPROM(s *isp.Session, ee *image.EEPROM, verify bool) error {
	if int(ee.Address)+len(ee.Data) > protocol.EEPROM.Units() {
		return fmt.Errorf("EEPROM image of %d bytes at 0x%04X does not fit", len(ee.Data), ee.Address)
	}
	if ee.Address&protocol.EEPROM.OffsetMask == 0 {
		if err := s.WriteEEPROMPages(ee.Data, ee.Address); err != nil {
			return fmt.Errorf("EEPROM write failed: %w", err)
		}
	} else {
		for i, b := range ee.Data {
			if err := s.WriteEEPROMByte(ee.Address+uint16(i), b); err != nil {
				return fmt.Errorf("EEPROM write failed: %w", err)
			}
		}
	}
	if !verify {
		return nil
	}

	got, err := s.ReadEEPROMBytes(ee.Address, len(ee.Data))
	if err != nil {
		return fmt.Errorf("EEPROM read back failed: %w", err)
	}
	for i, b := range ee.Data {
		if got[i] != b {
			return &VerifyError{Region: protocol.EEPROM, Address: ee.Address + uint16(i), Expected: uint16(b), Actual: uint16(got[i])}
		}
	}
	return nil
}

func writeFuses(s *isp.Session, fuses isp.Fuses, verify bool) error {
	if err := s.WriteFuses(fuses); err != nil {
		return fmt.Errorf("fuse write failed: %w", err)
	}
	if !verify {
		return nil
	}
	got, err := s.ReadFuses()
	if err != nil {
		return fmt.Errorf("fuse read back failed: %w", err)
	}
	if got != fuses {
		return fmt.Errorf("fuse verify failed: wrote %s, read %s", fuses, got)
	}
	return nil
}

// ReadFlash dumps n words of flash starting at addr.
func (f *Flasher) ReadFlash(addr uint16, n int) (*image.Flash, error) {
	fl := &image.Flash{Address: addr}
	err := f.board.Program(func(s *isp.Session) error {
		words, err := readChunked(protocol.Flash, addr, n, f.reportProgress, s.ReadFlashWords)
		fl.Words = words
		return err
	})
	if err != nil {
		return nil, err
	}
	return fl, nil
}

// ReadEEPROM dumps n bytes of EEPROM starting at addr.
func (f *Flasher) ReadEEPROM(addr uint16, n int) (*image.EEPROM, error) {
	ee := &image.EEPROM{Address: addr}
	err := f.board.Program(func(s *isp.Session) error {
		data, err := readChunked(protocol.EEPROM, addr, n, f.reportProgress, s.ReadEEPROMBytes)
		ee.Data = data
		return err
	})
	if err != nil {
		return nil, err
	}
	return ee, nil
}

// readChunked reads a page's worth of units at a time to report progress.
func readChunked[T any](r protocol.Region, addr uint16, n int, progress ProgressCallback,
	read func(addr uint16, n int) ([]T, error)) ([]T, error) {
	if n < 0 || int(addr)+n > r.Units() {
		return nil, fmt.Errorf("%s read of %d units at 0x%04X out of range", r, n, addr)
	}

	out := make([]T, 0, n)
	chunks := r.Pages(n)
	for i := 0; i < chunks; i++ {
		count := min(r.UnitsPerPage, n-len(out))
		part, err := read(addr+uint16(len(out)), count)
		if err != nil {
			return nil, fmt.Errorf("%s read failed: %w", r, err)
		}
		out = append(out, part...)
		progress(i+1, chunks)
	}
	return out, nil
}

// Erase performs a chip erase.
func (f *Flasher) Erase() error {
	return f.board.Program(func(s *isp.Session) error {
		return s.EraseChip()
	})
}

// Info reads the signature, fuses, lock bits and calibration bytes.
func (f *Flasher) Info() (*DeviceInfo, error) {
	var info DeviceInfo
	err := f.board.Program(func(s *isp.Session) error {
		var err error
		if info.Signature, err = s.ReadSignature(); err != nil {
			return fmt.Errorf("failed to read signature: %w", err)
		}
		if info.Fuses, err = s.ReadFuses(); err != nil {
			return fmt.Errorf("failed to read fuses: %w", err)
		}
		if info.Lock, err = s.ReadLockBits(); err != nil {
			return fmt.Errorf("failed to read lock bits: %w", err)
		}
		if info.Calibration, err = s.ReadCalibration(); err != nil {
			return fmt.Errorf("failed to read calibration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}
