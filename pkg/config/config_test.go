package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"

	"github.com/ardnew/lospdisk/pkg"
)

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	if diff := pretty.Compare(cfg, Default()); diff != "" {
		t.Errorf("empty config differs from defaults: (-got +want)\n%s", diff)
	}
}

func TestParse_Overrides(t *testing.T) {
	buf := []byte(`
device:
  vendor_id: 0x0483
  product_id: 0x5720
  endpoint_in: 0x81
  endpoint_out: 0x02
bot:
  command_timeout: 500ms
losp:
  command_lba: 100
  answer_lba: 101
stats:
  target_accuracy: 0.01
  interval: 250ms
log:
  level: debug
  format: json
`)
	cfg, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := Default()
	want.Device.VendorID = 0x0483
	want.Device.ProductID = 0x5720
	want.Device.EndpointIn = 0x81
	want.Device.EndpointOut = 0x02
	want.BOT.CommandTimeout = 500 * time.Millisecond
	want.LOSP.CommandLBA = 100
	want.LOSP.AnswerLBA = 101
	want.Stats.TargetAccuracy = 0.01
	want.Stats.Interval = 250 * time.Millisecond
	want.Log.Level = "debug"
	want.Log.Format = "json"
	if diff := pretty.Compare(cfg, want); diff != "" {
		t.Errorf("config differs: (-got +want)\n%s", diff)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	if _, err := Parse([]byte("losp:\n  max_attempt: 3\n")); err == nil {
		t.Error("Parse accepted an unknown key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"swapped endpoints", func(c *Config) { c.Device.EndpointIn, c.Device.EndpointOut = 0x02, 0x81 }},
		{"lun", func(c *Config) { c.Device.LUN = 16 }},
		{"zero timeout", func(c *Config) { c.BOT.DataTimeout = 0 }},
		{"shared sector", func(c *Config) { c.LOSP.AnswerLBA = c.LOSP.CommandLBA }},
		{"no attempts", func(c *Config) { c.LOSP.MaxAttempts = 0 }},
		{"negative target", func(c *Config) { c.Stats.TargetAccuracy = -1 }},
		{"short interval", func(c *Config) { c.Stats.Interval = time.Millisecond }},
		{"negative rate", func(c *Config) { c.Monitor.Rate = -1 }},
		{"no error tolerance", func(c *Config) { c.Monitor.MaxConsecutiveErrors = 0 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("Validate() = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lospctl.yaml")
	if err := os.WriteFile(path, []byte("monitor:\n  rate: 2.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Monitor.Rate != 2.5 {
		t.Errorf("Rate = %v, want 2.5", cfg.Monitor.Rate)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}
}
