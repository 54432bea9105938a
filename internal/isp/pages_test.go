package isp

import (
	"testing"
	"time"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

func TestEEPROM_RoundTrip(t *testing.T) {
	// 1 unit through three full pages plus a partial page
	for n := 1; n <= 3*protocol.EEPROM.UnitsPerPage+3; n++ {
		p, _, _ := newTestProgrammer(t)
		s := enter(t, p)

		data := make([]byte, n)
		for i := range data {
			data[i] = byte(0xA0 + i*7)
		}

		if err := s.WriteEEPROMPages(data, 0x10); err != nil {
			t.Fatalf("n=%d WriteEEPROMPages() error = %v", n, err)
		}
		got, err := s.ReadEEPROMBytes(0x10, n)
		if err != nil {
			t.Fatalf("n=%d ReadEEPROMBytes() error = %v", n, err)
		}
		for i := range data {
			if got[i] != data[i] {
				t.Errorf("n=%d byte %d = 0x%02X, want 0x%02X", n, i, got[i], data[i])
			}
		}
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	for n := 1; n <= 3*protocol.Flash.UnitsPerPage+5; n++ {
		p, _, _ := newTestProgrammer(t)
		s := enter(t, p)

		words := make([]uint16, n)
		for i := range words {
			words[i] = uint16(0x1200 + i*0x0101)
		}

		if err := s.WriteFlashPages(words, 0x0040); err != nil {
			t.Fatalf("n=%d WriteFlashPages() error = %v", n, err)
		}
		got, err := s.ReadFlashWords(0x0040, n)
		if err != nil {
			t.Fatalf("n=%d ReadFlashWords() error = %v", n, err)
		}
		for i := range words {
			if got[i] != words[i] {
				t.Errorf("n=%d word %d = 0x%04X, want 0x%04X", n, i, got[i], words[i])
			}
		}
	}
}

func TestWritePages_CommitCountAndAddresses(t *testing.T) {
	tests := []struct {
		region protocol.Region
		n      int
		start  uint16
	}{
		{protocol.Flash, 1, 0x0000},
		{protocol.Flash, 16, 0x0100},
		{protocol.Flash, 17, 0x0100},
		{protocol.Flash, 40, 0x0200},
		{protocol.EEPROM, 4, 0x0000},
		{protocol.EEPROM, 5, 0x0020},
		{protocol.EEPROM, 13, 0x0040},
	}

	for _, tc := range tests {
		p, target, rec := newTestProgrammer(t)
		s := enter(t, p)

		var err error
		if tc.region.Kind == protocol.KindFlash {
			err = s.WriteFlashPages(make([]uint16, tc.n), tc.start)
		} else {
			err = s.WriteEEPROMPages(make([]byte, tc.n), tc.start)
		}
		if err != nil {
			t.Fatalf("%s n=%d write error = %v", tc.region, tc.n, err)
		}

		commits := target.CommitsOf(tc.region.Kind)
		if want := tc.region.Pages(tc.n); len(commits) != want {
			t.Fatalf("%s n=%d commits = %d, want %d", tc.region, tc.n, len(commits), want)
		}
		for i, c := range commits {
			want := tc.start + uint16(i*tc.region.UnitsPerPage)
			if c.Address != want {
				t.Errorf("%s n=%d commit %d at 0x%04X, want 0x%04X", tc.region, tc.n, i, c.Address, want)
			}
		}

		settle := protocol.DefaultTiming.PageWrite(tc.region)
		if rec.count(settle) != len(commits) {
			t.Errorf("%s n=%d settle delays = %d, want %d", tc.region, tc.n, rec.count(settle), len(commits))
		}
	}
}

func TestWriteEEPROMPages_FiveBytes(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)

	if err := s.WriteEEPROMPages([]byte{1, 2, 3, 4, 5}, 0x08); err != nil {
		t.Fatalf("WriteEEPROMPages() error = %v", err)
	}

	commits := target.CommitsOf(protocol.KindEEPROM)
	if len(commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(commits))
	}
	if commits[0].Address != 0x08 || commits[1].Address != 0x0C {
		t.Errorf("commit addresses = 0x%02X, 0x%02X, want 0x08, 0x0C", commits[0].Address, commits[1].Address)
	}
}

func TestWritePages_LoadOrder(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	target.Frames = nil

	if err := s.WriteEEPROMPages([]byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15}, 0x04); err != nil {
		t.Fatalf("WriteEEPROMPages() error = %v", err)
	}

	want := []protocol.Frame{
		{0xC1, 0x00, 0x00, 0x10},
		{0xC1, 0x00, 0x01, 0x11},
		{0xC1, 0x00, 0x02, 0x12},
		{0xC1, 0x00, 0x03, 0x13},
		{0xC2, 0x00, 0x04, 0x00},
		{0xC1, 0x00, 0x00, 0x14},
		{0xC1, 0x00, 0x01, 0x15},
		{0xC2, 0x00, 0x08, 0x00},
	}
	if len(target.Frames) != len(want) {
		t.Fatalf("frames = %d, want %d: %v", len(target.Frames), len(want), target.Frames)
	}
	for i := range want {
		if target.Frames[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, target.Frames[i], want[i])
		}
	}
}

func TestWriteFlashPages_LowThenHigh(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	target.Frames = nil

	if err := s.WriteFlashPages([]uint16{0xBEEF}, 0x0030); err != nil {
		t.Fatalf("WriteFlashPages() error = %v", err)
	}
	want := []protocol.Frame{
		{0x40, 0x00, 0x00, 0xEF},
		{0x48, 0x00, 0x00, 0xBE},
		{0x4C, 0x00, 0x30, 0x00},
	}
	for i := range want {
		if target.Frames[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, target.Frames[i], want[i])
		}
	}
}

func TestEraseWriteFullPage(t *testing.T) {
	p, target, rec := newTestProgrammer(t)
	s := enter(t, p)

	if err := s.EraseChip(); err != nil {
		t.Fatalf("EraseChip() error = %v", err)
	}
	if rec.count(protocol.DefaultTiming.Erase) != 1 {
		t.Errorf("erase delays = %d, want 1", rec.count(protocol.DefaultTiming.Erase))
	}

	words := make([]uint16, 16)
	for i := range words {
		words[i] = 0xFFFF
	}
	if err := s.WriteFlashPages(words, 0); err != nil {
		t.Fatalf("WriteFlashPages() error = %v", err)
	}
	got, err := s.ReadFlashWords(0, 16)
	if err != nil {
		t.Fatalf("ReadFlashWords() error = %v", err)
	}
	for i, w := range got {
		if w != 0xFFFF {
			t.Errorf("word %d = 0x%04X, want 0xFFFF", i, w)
		}
	}
	if n := len(target.CommitsOf(protocol.KindFlash)); n != 1 {
		t.Errorf("flash commits = %d, want 1", n)
	}
}

func TestReadFlashWords_DescendingOrder(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	target.Flash[5] = 0x0505
	target.Flash[6] = 0x0606
	target.Frames = nil

	got, err := s.ReadFlashWords(5, 2)
	if err != nil {
		t.Fatalf("ReadFlashWords() error = %v", err)
	}
	if got[0] != 0x0505 || got[1] != 0x0606 {
		t.Errorf("ReadFlashWords() = %04X, want [0505 0606]", got)
	}
	if target.Frames[0].Address() != 6 || target.Frames[2].Address() != 5 {
		t.Errorf("read order = %v, want highest address first", target.Frames)
	}
}

func TestAddressMasking_Wraparound(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)

	// EEPROM address space is 7 bits
	if err := s.WriteEEPROMByte(0x0085, 0x5A); err != nil {
		t.Fatalf("WriteEEPROMByte() error = %v", err)
	}
	if target.EEPROM[0x05] != 0x5A {
		t.Errorf("EEPROM[0x05] = 0x%02X, want 0x5A", target.EEPROM[0x05])
	}
	b, err := s.ReadEEPROMByte(0x0105)
	if err != nil || b != 0x5A {
		t.Errorf("ReadEEPROMByte(0x0105) = 0x%02X, %v, want 0x5A", b, err)
	}

	// flash address space is 10 bits
	if err := s.WriteFlashPages([]uint16{0x1234}, 0x0410); err != nil {
		t.Fatalf("WriteFlashPages() error = %v", err)
	}
	if target.Flash[0x0010] != 0x1234 {
		t.Errorf("Flash[0x10] = 0x%04X, want 0x1234", target.Flash[0x0010])
	}
	w, err := s.ReadFlashWord(0x0810)
	if err != nil || w != 0x1234 {
		t.Errorf("ReadFlashWord(0x0810) = 0x%04X, %v, want 0x1234", w, err)
	}

	words, err := s.ReadFlashWords(0x07FF, 2)
	if err != nil {
		t.Fatalf("ReadFlashWords() error = %v", err)
	}
	if words[0] != target.Flash[0x03FF] || words[1] != target.Flash[0x0000] {
		t.Errorf("ReadFlashWords(0x07FF, 2) = %04X, want wrap to 0x03FF, 0x0000", words)
	}
}

func TestAddressMasking_FrameFields(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	target.Frames = nil

	s.LoadFlashWord(0x0123, 0x0000)
	s.CommitFlashPage(0xFFFF)
	s.LoadEEPROMByte(0x00FE, 0x00)
	s.CommitEEPROMPage(0xFFFF)
	s.ReadFlashWord(0xFFFF)
	s.ReadEEPROMByte(0xFFFF)

	want := []uint16{0x0003, 0x0003, 0x03F0, 0x0002, 0x007C, 0x03FF, 0x03FF, 0x007F}
	if len(target.Frames) != len(want) {
		t.Fatalf("frames = %d, want %d", len(target.Frames), len(want))
	}
	for i, w := range want {
		if got := target.Frames[i].Address(); got != w {
			t.Errorf("frame %d %v address = 0x%04X, want 0x%04X", i, target.Frames[i], got, w)
		}
	}
}

func TestWritePages_PageCallback(t *testing.T) {
	var calls [][2]int
	p, _, _ := newTestProgrammer(t, WithPageCallback(func(r protocol.Region, done, total int) {
		if r.Kind != protocol.KindFlash {
			t.Errorf("callback region = %s, want flash", r)
		}
		calls = append(calls, [2]int{done, total})
	}))
	s := enter(t, p)

	if err := s.WriteFlashPages(make([]uint16, 33), 0); err != nil {
		t.Fatalf("WriteFlashPages() error = %v", err)
	}
	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(calls) != len(want) {
		t.Fatalf("callbacks = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("callback %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestWritePages_Empty(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	if err := s.WriteFlashPages(nil, 0); err != nil {
		t.Fatalf("WriteFlashPages(nil) error = %v", err)
	}
	if len(target.Commits) != 0 {
		t.Errorf("commits = %d, want 0", len(target.Commits))
	}
}

func TestReadUnits_NegativeCount(t *testing.T) {
	p, target, _ := newTestProgrammer(t)
	s := enter(t, p)
	target.Frames = nil

	if _, err := s.ReadFlashWords(0, -1); err == nil {
		t.Error("ReadFlashWords(0, -1) want error")
	}
	if _, err := s.ReadEEPROMBytes(0, -1); err == nil {
		t.Error("ReadEEPROMBytes(0, -1) want error")
	}
	if len(target.Frames) != 0 {
		t.Errorf("frames sent = %d, want 0", len(target.Frames))
	}
}

func TestCommitPages_RegionSettle(t *testing.T) {
	timing := protocol.DefaultTiming
	timing.FlashWrite = 7 * time.Millisecond
	timing.EEPROMWrite = 3 * time.Millisecond
	p, _, rec := newTestProgrammer(t, WithTiming(timing))
	s := enter(t, p)

	if err := s.CommitFlashPage(0x20); err != nil {
		t.Fatalf("CommitFlashPage() error = %v", err)
	}
	if err := s.CommitEEPROMPage(0x04); err != nil {
		t.Fatalf("CommitEEPROMPage() error = %v", err)
	}
	if rec.count(7*time.Millisecond) != 1 || rec.count(3*time.Millisecond) != 1 {
		t.Errorf("settle delays = %v, want one 7ms and one 3ms", rec.calls)
	}
}
