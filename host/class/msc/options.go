package msc

import "time"

// Config holds the BOT engine and disk session configuration.
type Config struct {
	// CommandTimeout bounds the CBW and CSW transfers.
	CommandTimeout time.Duration

	// DataTimeout bounds the data phase transfer.
	DataTimeout time.Duration

	// Interface is the Bulk-Only interface number claimed by Open.
	Interface uint8

	// LUN is the logical unit addressed by every command.
	LUN uint8

	// InitialTag is the tag carried by the first CBW.
	InitialTag uint32
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		CommandTimeout: DefaultCommandTimeout,
		DataTimeout:    DefaultDataTimeout,
		InitialTag:     1,
	}
}

// Option is a functional option for configuring a Transport or Disk.
type Option func(*Config)

// WithCommandTimeout sets the timeout for the CBW and CSW phases.
//
// Example:
//
//	disk, err := msc.Open(conn, eps, msc.WithCommandTimeout(time.Second))
func WithCommandTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.CommandTimeout = timeout
		}
	}
}

// WithDataTimeout sets the timeout for the data phase.
func WithDataTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.DataTimeout = timeout
		}
	}
}

// WithInterface sets the interface number claimed by Open.
func WithInterface(iface uint8) Option {
	return func(c *Config) {
		c.Interface = iface
	}
}

// WithLUN sets the logical unit number. Only bits 0-3 are used.
func WithLUN(lun uint8) Option {
	return func(c *Config) {
		c.LUN = lun & 0x0F
	}
}

// WithInitialTag sets the tag of the first command.
func WithInitialTag(tag uint32) Option {
	return func(c *Config) {
		c.InitialTag = tag
	}
}
