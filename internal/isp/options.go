package isp

import (
	"time"

	"github.com/bigbag/azinc-flasher/internal/protocol"
)

// PageCallback is called after every page commit of a multi-page write.
type PageCallback func(region protocol.Region, done, total int)

// Config holds the programmer configuration.
type Config struct {
	// Timing holds the fixed settle delays.
	Timing protocol.Timing

	// Sleep blocks for a settle delay. Defaults to time.Sleep.
	Sleep func(time.Duration)

	// PollInterval enables busy polling in place of the fixed write and
	// erase delays when non-zero.
	PollInterval time.Duration

	// PollTimeout bounds a single busy-poll wait.
	PollTimeout time.Duration

	// PageCallback is called after every page commit (optional).
	PageCallback PageCallback
}

func defaultConfig() Config {
	return Config{
		Timing: protocol.DefaultTiming,
		Sleep:  time.Sleep,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithTiming replaces the settle delays.
func WithTiming(t protocol.Timing) Option {
	return func(c *Config) {
		c.Timing = t
	}
}

// WithSleep replaces the function used to wait out settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Config) {
		if sleep != nil {
			c.Sleep = sleep
		}
	}
}

// WithBusyPolling makes page commits, erase, byte writes and fuse writes
// poll the target until it reports ready instead of sleeping for the fixed
// delay. Each wait fails with ErrBusyTimeout after timeout.
//
// The reset settle delay is never replaced.
func WithBusyPolling(interval, timeout time.Duration) Option {
	return func(c *Config) {
		if interval > 0 && timeout >= interval {
			c.PollInterval = interval
			c.PollTimeout = timeout
		}
	}
}

// WithPageCallback sets a callback invoked after every page commit.
func WithPageCallback(cb PageCallback) Option {
	return func(c *Config) {
		c.PageCallback = cb
	}
}
