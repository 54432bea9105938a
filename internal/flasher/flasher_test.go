package flasher

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bigbag/azinc-flasher/internal/board"
	"github.com/bigbag/azinc-flasher/internal/image"
	"github.com/bigbag/azinc-flasher/internal/isp"
	"github.com/bigbag/azinc-flasher/internal/protocol"
	"github.com/bigbag/azinc-flasher/internal/sensor"
	"github.com/bigbag/azinc-flasher/internal/sim"
)

func noSleep(time.Duration) {}

func newTestFlasher() (*Flasher, *board.Board, *sim.Target) {
	target := sim.NewTarget()
	b := board.New(target, sim.NewSensor(sensor.Address, nil),
		board.WithISPOptions(isp.WithSleep(noSleep)),
	)
	return New(b), b, target
}

func counting(n int) []uint16 {
	words := make([]uint16, n)
	for i := range words {
		words[i] = uint16(0xA000 + i)
	}
	return words
}

func TestFlash_FullImage(t *testing.T) {
	f, b, target := newTestFlasher()

	fuses := isp.Fuses{Low: 0xE2, High: 0xDF, Extended: 0xFF}
	lock := byte(0xFC)
	img := Image{
		Flash:  &image.Flash{Address: 0, Words: counting(40)},
		EEPROM: &image.EEPROM{Address: 8, Data: []byte{1, 2, 3, 4, 5}},
		Fuses:  &fuses,
		Lock:   &lock,
	}

	var calls [][2]int
	f.SetProgressCallback(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	})

	err := f.Flash(img, Options{Erase: true, Verify: true, Signature: SignatureATtiny24})
	if err != nil {
		t.Fatalf("Flash() error = %v", err)
	}

	for i, w := range img.Flash.Words {
		if target.Flash[i] != w {
			t.Errorf("Flash[%d] = 0x%04X, want 0x%04X", i, target.Flash[i], w)
		}
	}
	if !bytes.Equal(target.EEPROM[8:13], img.EEPROM.Data) {
		t.Errorf("EEPROM[8:13] = %v", target.EEPROM[8:13])
	}
	if target.Fuses != [3]byte{0xE2, 0xDF, 0xFF} {
		t.Errorf("Fuses = %X", target.Fuses)
	}
	if target.Lock != 0xFC {
		t.Errorf("Lock = 0x%02X, want 0xFC", target.Lock)
	}

	// 3 flash pages then 2 EEPROM pages
	if len(calls) != 5 {
		t.Fatalf("progress calls = %v, want 5", calls)
	}
	for i, c := range calls {
		if c[0] != i+1 || c[1] != 5 {
			t.Errorf("progress call %d = %v, want [%d 5]", i, c, i+1)
		}
	}

	if b.Mode() != board.ModeNone || target.Enabled() {
		t.Error("board left in programming mode")
	}
}

func TestFlash_SignatureMismatch(t *testing.T) {
	f, _, target := newTestFlasher()
	target.Signature = [4]byte{0x1E, 0x93, 0x0C, 0x00}

	err := f.Flash(Image{Flash: &image.Flash{Words: counting(4)}}, Options{Signature: SignatureATtiny24})

	var sigErr *SignatureMismatchError
	if !errors.As(err, &sigErr) {
		t.Fatalf("Flash() error = %v, want SignatureMismatchError", err)
	}
	if sigErr.Actual != 0x000C931E {
		t.Errorf("Actual = 0x%08X", sigErr.Actual)
	}
	if len(target.CommitsOf(protocol.KindFlash)) != 0 {
		t.Error("flash written despite signature mismatch")
	}
}

func TestFlash_VerifyFailsWithoutErase(t *testing.T) {
	f, _, target := newTestFlasher()
	target.Flash[2] = 0x0000

	err := f.Flash(Image{Flash: &image.Flash{Words: counting(4)}}, Options{Verify: true})

	var vErr *VerifyError
	if !errors.As(err, &vErr) {
		t.Fatalf("Flash() error = %v, want VerifyError", err)
	}
	if vErr.Region.Kind != protocol.KindFlash || vErr.Address != 2 || vErr.Actual != 0x0000 || vErr.Expected != 0xA002 {
		t.Errorf("VerifyError = %+v", vErr)
	}
}

func TestFlash_UnalignedFlash(t *testing.T) {
	f, _, target := newTestFlasher()
	target.Flash[0x10] = 0x1111

	err := f.Flash(Image{Flash: &image.Flash{Address: 0x13, Words: counting(16)}}, Options{Verify: true})
	if err != nil {
		t.Fatalf("Flash() error = %v", err)
	}

	// Leading padding leaves earlier words in the page untouched.
	if target.Flash[0x10] != 0x1111 {
		t.Errorf("Flash[0x10] = 0x%04X, want 0x1111", target.Flash[0x10])
	}
	if target.Flash[0x13] != 0xA000 || target.Flash[0x22] != 0xA00F {
		t.Errorf("Flash[0x13], Flash[0x22] = 0x%04X, 0x%04X", target.Flash[0x13], target.Flash[0x22])
	}
	commits := target.CommitsOf(protocol.KindFlash)
	if len(commits) != 2 || commits[0].Address != 0x10 || commits[1].Address != 0x20 {
		t.Errorf("commits = %v, want pages 0x10 and 0x20", commits)
	}
}

func TestFlash_UnalignedEEPROM(t *testing.T) {
	f, _, target := newTestFlasher()

	err := f.Flash(Image{EEPROM: &image.EEPROM{Address: 0x05, Data: []byte{9, 8, 7}}}, Options{Verify: true})
	if err != nil {
		t.Fatalf("Flash() error = %v", err)
	}
	if !bytes.Equal(target.EEPROM[5:8], []byte{9, 8, 7}) {
		t.Errorf("EEPROM[5:8] = %v", target.EEPROM[5:8])
	}
	if n := len(target.CommitsOf(protocol.KindEEPROM)); n != 0 {
		t.Errorf("EEPROM page commits = %d, want byte writes only", n)
	}
}

func TestFlash_DoesNotFit(t *testing.T) {
	f, b, _ := newTestFlasher()

	err := f.Flash(Image{Flash: &image.Flash{Address: 0x3F8, Words: counting(16)}}, Options{})
	if err == nil {
		t.Fatal("Flash() want error for image past end of flash")
	}
	if b.Mode() != board.ModeNone {
		t.Errorf("Mode() = %s after failure, want none", b.Mode())
	}
}

func TestReadFlash(t *testing.T) {
	f, _, target := newTestFlasher()
	for i := 0; i < 20; i++ {
		target.Flash[0x100+i] = uint16(i)
	}

	var last [2]int
	f.SetProgressCallback(func(current, total int) { last = [2]int{current, total} })

	fl, err := f.ReadFlash(0x100, 20)
	if err != nil {
		t.Fatalf("ReadFlash() error = %v", err)
	}
	if fl.Address != 0x100 || len(fl.Words) != 20 {
		t.Fatalf("ReadFlash() = %+v", fl)
	}
	for i, w := range fl.Words {
		if w != uint16(i) {
			t.Errorf("word %d = 0x%04X, want 0x%04X", i, w, i)
		}
	}
	if last != [2]int{2, 2} {
		t.Errorf("last progress = %v, want [2 2]", last)
	}

	if _, err := f.ReadFlash(0x3FF, 2); err == nil {
		t.Error("ReadFlash() past end: want error")
	}
}

func TestReadEEPROM(t *testing.T) {
	f, _, target := newTestFlasher()
	copy(target.EEPROM[0x10:], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01})

	ee, err := f.ReadEEPROM(0x10, 5)
	if err != nil {
		t.Fatalf("ReadEEPROM() error = %v", err)
	}
	if !bytes.Equal(ee.Data, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}) {
		t.Errorf("ReadEEPROM() = %X", ee.Data)
	}
}

func TestErase(t *testing.T) {
	f, _, target := newTestFlasher()
	target.Flash[7] = 0
	target.EEPROM[7] = 0
	target.Lock = 0xFC

	if err := f.Erase(); err != nil {
		t.Fatalf("Erase() error = %v", err)
	}
	if target.Flash[7] != 0xFFFF || target.EEPROM[7] != 0xFF || target.Lock != 0xFF {
		t.Error("memory not erased")
	}
}

func TestInfo(t *testing.T) {
	f, _, _ := newTestFlasher()

	info, err := f.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Signature != SignatureATtiny24 {
		t.Errorf("Signature = 0x%08X", info.Signature)
	}
	if info.Fuses != (isp.Fuses{Low: 0x62, High: 0xDF, Extended: 0xFF}) {
		t.Errorf("Fuses = %s", info.Fuses)
	}
	if info.Lock != 0xFF {
		t.Errorf("Lock = 0x%02X", info.Lock)
	}
	if ChipName(info.Signature) != "ATtiny24" {
		t.Errorf("ChipName() = %s", ChipName(info.Signature))
	}
}

func TestInfo_NoDevice(t *testing.T) {
	f, _, target := newTestFlasher()
	target.Mute = true

	if _, err := f.Info(); !errors.Is(err, isp.ErrNoEcho) {
		t.Errorf("Info() error = %v, want ErrNoEcho", err)
	}
}

func TestChipName(t *testing.T) {
	tests := []struct {
		sig  uint32
		want string
	}{
		{SignatureATtiny24, "ATtiny24"},
		{0xFFFFFFFF, "no device"},
		{0x00000000, "no device"},
		{0x000C931E, "unknown"},
	}
	for _, tc := range tests {
		if got := ChipName(tc.sig); got != tc.want {
			t.Errorf("ChipName(0x%08X) = %q, want %q", tc.sig, got, tc.want)
		}
	}
}
