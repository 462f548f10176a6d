package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `# usb.ids sample
0483  STMicroelectronics
	5720  Mass Storage Device
	df11  STM Device in DFU Mode
1d6b  Linux Foundation
	0002  2.0 root hub
		01  nested interface line

# List of known device classes
C 08  Mass Storage
	06  SCSI
		50  Bulk-Only
`

func TestParse(t *testing.T) {
	db := New()
	db.Parse(strings.NewReader(sample))

	tests := []struct {
		vid, pid uint16
		vendor   string
		product  string
	}{
		{0x0483, 0x5720, "STMicroelectronics", "Mass Storage Device"},
		{0x0483, 0xDF11, "STMicroelectronics", "STM Device in DFU Mode"},
		{0x1D6B, 0x0002, "Linux Foundation", "2.0 root hub"},
		{0x1D6B, 0x0001, "Linux Foundation", ""},
		{0x1234, 0x0006, "", ""},
	}
	for _, tt := range tests {
		if got := db.Vendor(tt.vid); got != tt.vendor {
			t.Errorf("Vendor(%04x) = %q, want %q", tt.vid, got, tt.vendor)
		}
		if got := db.Product(tt.vid, tt.pid); got != tt.product {
			t.Errorf("Product(%04x, %04x) = %q, want %q", tt.vid, tt.pid, got, tt.product)
		}
	}

	// Class lines must not be read as products of the last vendor.
	if vendors, products := db.Len(); vendors != 2 || products != 3 {
		t.Errorf("Len() = %d, %d, want 2, 3", vendors, products)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	db := Load(filepath.Join(dir, "missing.ids"), path)
	if db.Vendor(0x0483) != "STMicroelectronics" {
		t.Errorf("Vendor = %q after Load", db.Vendor(0x0483))
	}

	empty := Load(filepath.Join(dir, "missing.ids"))
	if v, p := empty.Len(); v != 0 || p != 0 {
		t.Errorf("Len() = %d, %d, want empty", v, p)
	}
}

func TestDescribe(t *testing.T) {
	db := New()
	db.Parse(strings.NewReader(sample))

	tests := []struct {
		name         string
		vid, pid     uint16
		manufacturer string
		product      string
		want         string
	}{
		{"database", 0x0483, 0x5720, "", "", "STMicroelectronics Mass Storage Device"},
		{"device strings first", 0x0483, 0x5720, "LOSP", "Instrument Disk", "LOSP Instrument Disk"},
		{"numeric fallback", 0x1234, 0xabcd, "", "", "vendor 1234 product abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := db.Describe(tt.vid, tt.pid, tt.manufacturer, tt.product); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
