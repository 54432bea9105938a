package sensor

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/bigbag/azinc-flasher/internal/sim"
)

func newTestSampler(sample []byte) (*Sampler, *sim.Sensor, *[]time.Duration) {
	bus := sim.NewSensor(Address, sample)
	var sleeps []time.Duration
	s := NewSampler(bus, WithSleep(func(d time.Duration) {
		sleeps = append(sleeps, d)
	}))
	return s, bus, &sleeps
}

func TestRead_FullSample(t *testing.T) {
	s, bus, sleeps := newTestSampler([]byte{1, 2, 3, 4, 5, 6})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Read() = %v, want [1 2 3 4 5 6]", got)
	}
	if !bytes.Equal(bus.Written, []byte{'A'}) {
		t.Errorf("written = %q, want %q", bus.Written, "A")
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Millisecond {
		t.Errorf("sleeps = %v, want [1ms]", *sleeps)
	}
}

func TestRead_ShortSample(t *testing.T) {
	s, bus, _ := newTestSampler([]byte{1, 2, 3, 4, 5, 6})
	bus.Available = 3
	s.Start()

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Read() count = %d, want 3", len(got))
	}
}

func TestRead_AbsentSensor(t *testing.T) {
	bus := sim.NewSensor(0x21, []byte{1, 2, 3, 4, 5, 6})
	s := NewSampler(bus, WithSleep(func(time.Duration) {}))
	s.Start()

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Read() count = %d, want 0", len(got))
	}
}

func TestRead_CapsAtSampleSize(t *testing.T) {
	s, _, _ := newTestSampler([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	s.Start()

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != SampleSize {
		t.Errorf("Read() count = %d, want %d", len(got), SampleSize)
	}
}

func TestRead_BusNotStarted(t *testing.T) {
	s, _, _ := newTestSampler([]byte{1})
	if _, err := s.Read(); err == nil {
		t.Error("Read() without Start expected error, got nil")
	}
}

type errBus struct {
	sim.Sensor
}

func (b *errBus) RequestFrom(uint16, int) (int, error) {
	return 0, errors.New("arbitration lost")
}

func TestRead_RequestError(t *testing.T) {
	bus := &errBus{Sensor: *sim.NewSensor(Address, nil)}
	s := NewSampler(bus, WithSleep(func(time.Duration) {}))
	s.Start()
	if _, err := s.Read(); err == nil {
		t.Error("Read() expected error, got nil")
	}
}

func TestStop_ReleasesLines(t *testing.T) {
	s, bus, _ := newTestSampler(nil)
	s.Start()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if bus.Active() || bus.Releases != 1 {
		t.Errorf("after Stop active=%v releases=%d", bus.Active(), bus.Releases)
	}
}

func TestWithSettle(t *testing.T) {
	var got time.Duration
	bus := sim.NewSensor(Address, []byte{1})
	s := NewSampler(bus, WithSettle(3*time.Millisecond), WithSleep(func(d time.Duration) { got = d }))
	s.Start()
	s.Read()
	if got != 3*time.Millisecond {
		t.Errorf("settle = %v, want 3ms", got)
	}
}
