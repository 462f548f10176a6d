package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// Config is the lospctl configuration, usually stored as YAML:
//
//	device:
//	  vendor_id: 0x0483
//	  product_id: 0x5720
//	bot:
//	  command_timeout: 2s
//	losp:
//	  max_attempts: 222
//	stats:
//	  target_accuracy: 0.01
type Config struct {
	Device  Device  `yaml:"device"`
	BOT     BOT     `yaml:"bot"`
	LOSP    LOSP    `yaml:"losp"`
	Stats   Stats   `yaml:"stats"`
	Monitor Monitor `yaml:"monitor"`
	Log     Log     `yaml:"log"`
}

// Device selects the USB device and its Bulk-Only interface.
type Device struct {
	// Path is a usbfs node such as /dev/bus/usb/001/004. It takes
	// precedence over VendorID and ProductID.
	Path      string `yaml:"path"`
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	Interface uint8  `yaml:"interface"`
	LUN       uint8  `yaml:"lun"`

	// EndpointIn and EndpointOut override endpoint discovery when both are
	// set.
	EndpointIn  uint8 `yaml:"endpoint_in"`
	EndpointOut uint8 `yaml:"endpoint_out"`
}

// Endpoints returns the configured endpoint pair, if any.
func (d Device) Endpoints() (hal.BulkEndpoints, bool) {
	eps := hal.BulkEndpoints{In: d.EndpointIn, Out: d.EndpointOut}
	return eps, d.EndpointIn != 0 || d.EndpointOut != 0
}

// BOT holds the transfer timeouts.
type BOT struct {
	CommandTimeout time.Duration `yaml:"command_timeout"`
	DataTimeout    time.Duration `yaml:"data_timeout"`
}

// LOSP holds the tunnel sectors and the answer poll ceiling.
type LOSP struct {
	CommandLBA  uint32 `yaml:"command_lba"`
	AnswerLBA   uint32 `yaml:"answer_lba"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// Stats holds the frequency engine settings.
type Stats struct {
	// TargetAccuracy in percent; 0 publishes on every interval.
	TargetAccuracy float64       `yaml:"target_accuracy"`
	Interval       time.Duration `yaml:"interval"`
}

// Monitor holds the sampling worker settings.
type Monitor struct {
	Rate                 float64 `yaml:"rate"`
	MaxConsecutiveErrors int     `yaml:"max_consecutive_errors"`
}

// Log holds the logging settings. Format "auto" selects text on a terminal
// and JSON otherwise.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BOT: BOT{
			CommandTimeout: 2000 * time.Millisecond,
			DataTimeout:    5000 * time.Millisecond,
		},
		LOSP: LOSP{
			CommandLBA:  0x0A,
			AnswerLBA:   0x0B,
			MaxAttempts: 222,
		},
		Stats: Stats{
			Interval: time.Second,
		},
		Monitor: Monitor{
			Rate:                 10,
			MaxConsecutiveErrors: 5,
		},
		Log: Log{
			Level:  "warn",
			Format: "auto",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file is an error.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if eps, ok := c.Device.Endpoints(); ok && !eps.Valid() {
		return invalid("device endpoints 0x%02X/0x%02X", eps.In, eps.Out)
	}
	if c.Device.LUN > 0x0F {
		return invalid("device lun %d", c.Device.LUN)
	}
	if c.BOT.CommandTimeout <= 0 || c.BOT.DataTimeout <= 0 {
		return invalid("bot timeouts %v/%v", c.BOT.CommandTimeout, c.BOT.DataTimeout)
	}
	if c.LOSP.CommandLBA == c.LOSP.AnswerLBA {
		return invalid("losp command and answer share lba %d", c.LOSP.CommandLBA)
	}
	if c.LOSP.MaxAttempts < 1 {
		return invalid("losp max_attempts %d", c.LOSP.MaxAttempts)
	}
	if c.Stats.TargetAccuracy < 0 {
		return invalid("stats target_accuracy %v", c.Stats.TargetAccuracy)
	}
	if c.Stats.Interval < 10*time.Millisecond {
		return invalid("stats interval %v below 10ms", c.Stats.Interval)
	}
	if c.Monitor.Rate < 0 {
		return invalid("monitor rate %v", c.Monitor.Rate)
	}
	if c.Monitor.MaxConsecutiveErrors < 1 {
		return invalid("monitor max_consecutive_errors %d", c.Monitor.MaxConsecutiveErrors)
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "auto" {
		if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
			return err
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("config: "+format+": %w", append(args, pkg.ErrInvalidParameter)...)
}
