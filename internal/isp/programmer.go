package isp

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// State is the programming state of the target.
type State int

const (
	Idle State = iota
	Programming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Programming:
		return "programming"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Programmer sequences the target through reset, programming mode entry and
// exit. Memory operations are only reachable through the Session returned by
// Enter.
//
// Programmer is not safe for concurrent use.
type Programmer struct {
	bus     Bus
	codec   *Codec
	config  Config
	state   State
	session *Session
}

// New creates a Programmer for the target on bus.
func New(bus Bus, opts ...Option) *Programmer {
	if bus == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Programmer{
		bus:    bus,
		codec:  NewCodec(bus),
		config: cfg,
	}
}

// State returns the current programming state.
func (p *Programmer) State() State {
	return p.state
}

// SetPageCallback sets the callback invoked after every page commit.
func (p *Programmer) SetPageCallback(cb PageCallback) {
	p.config.PageCallback = cb
}

// Reset pulses the target reset line low and lets the target restart.
func (p *Programmer) Reset() error {
	if err := p.bus.SetReset(protocol.Low); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	p.sleep(p.config.Timing.Reset)

	if err := p.bus.SetReset(protocol.High); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	p.sleep(p.config.Timing.Reset)
	return nil
}

// Enter puts the target into programming mode: the bus is enabled, reset is
// held low and the program enable command is sent. The target must echo the
// enable sub-opcode; otherwise the programmer rolls back to Idle and returns
// ErrNoEcho.
func (p *Programmer) Enter() (*Session, error) {
	if p.state == Programming {
		return nil, ErrAlreadyProgramming
	}

	if err := p.bus.Enable(); err != nil {
		return nil, fmt.Errorf("enable bus: %w", err)
	}

	if err := p.bus.SetReset(protocol.Low); err != nil {
		p.exit()
		return nil, fmt.Errorf("assert reset: %w", err)
	}
	p.sleep(p.config.Timing.Reset)

	resp, err := p.codec.Exchange(protocol.CmdProgramEnable, protocol.SubProgramEnable, 0x00, 0x00)
	if err != nil {
		p.exit()
		return nil, fmt.Errorf("program enable: %w", err)
	}

	if resp.Echo() != protocol.SubProgramEnable {
		p.exit()
		return nil, fmt.Errorf("%w: echo 0x%02X", ErrNoEcho, resp.Echo())
	}

	p.state = Programming
	p.session = &Session{p: p}
	glog.V(1).Info("isp: programming mode entered")
	return p.session, nil
}

// exit releases reset, disables the bus and returns to Idle. It is safe to
// call in any state.
func (p *Programmer) exit() error {
	var firstErr error

	if err := p.bus.SetReset(protocol.High); err != nil {
		firstErr = fmt.Errorf("release reset: %w", err)
	}
	p.sleep(p.config.Timing.Reset)

	if err := p.bus.Disable(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("disable bus: %w", err)
	}

	if p.session != nil {
		p.session.closed = true
		p.session = nil
	}
	if p.state == Programming {
		glog.V(1).Info("isp: programming mode exited")
	}
	p.state = Idle
	return firstErr
}

func (p *Programmer) sleep(d time.Duration) {
	if d > 0 {
		p.config.Sleep(d)
	}
}

// settle waits for a write or erase to complete, either for the fixed
// delay d or by busy polling when enabled.
func (p *Programmer) settle(d time.Duration) error {
	if p.config.PollInterval == 0 {
		p.sleep(d)
		return nil
	}

	var waited time.Duration
	for {
		resp, err := p.codec.Exchange(protocol.CmdPollBusy, 0x00, 0x00, 0x00)
		if err != nil {
			return err
		}
		if resp.Result() == 0 {
			return nil
		}
		if waited >= p.config.PollTimeout {
			return fmt.Errorf("%w after %v", ErrBusyTimeout, waited)
		}
		p.sleep(p.config.PollInterval)
		waited += p.config.PollInterval
	}
}
