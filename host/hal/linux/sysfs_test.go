package linux

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// writeTree creates files under root from a path -> content map.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// fakeSysfs builds a sysfs tree with one instrument disk (1-2), one
// keyboard (1-3) and a root hub.
func fakeSysfs(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"usb1/busnum": "1",

		"1-2/busnum":                         "1",
		"1-2/devnum":                         "7",
		"1-2/idVendor":                       "0483",
		"1-2/idProduct":                      "5720",
		"1-2/manufacturer":                   "LOSP",
		"1-2/product":                        "Instrument Disk",
		"1-2/serial":                         "0001",
		"1-2/speed":                          "12",
		"1-2/1-2:1.0/bInterfaceNumber":       "00",
		"1-2/1-2:1.0/bInterfaceClass":        "08",
		"1-2/1-2:1.0/bInterfaceSubClass":     "06",
		"1-2/1-2:1.0/bInterfaceProtocol":     "50",
		"1-2/1-2:1.0/ep_81/bEndpointAddress": "81",
		"1-2/1-2:1.0/ep_81/bmAttributes":     "02",
		"1-2/1-2:1.0/ep_81/wMaxPacketSize":   "0040",
		"1-2/1-2:1.0/ep_81/bInterval":        "00",
		"1-2/1-2:1.0/ep_02/bEndpointAddress": "02",
		"1-2/1-2:1.0/ep_02/bmAttributes":     "02",
		"1-2/1-2:1.0/ep_02/wMaxPacketSize":   "0040",
		"1-2/1-2:1.0/ep_02/bInterval":        "00",
		"1-2/1-2:1.1/bInterfaceNumber":       "01",
		"1-2/1-2:1.1/bInterfaceClass":        "02",
		"1-2/1-2:1.1/bInterfaceSubClass":     "02",
		"1-2/1-2:1.1/bInterfaceProtocol":     "01",

		"1-3/busnum":                         "1",
		"1-3/devnum":                         "9",
		"1-3/idVendor":                       "046d",
		"1-3/idProduct":                      "c31c",
		"1-3/speed":                          "1.5",
		"1-3/1-3:1.0/bInterfaceNumber":       "00",
		"1-3/1-3:1.0/bInterfaceClass":        "03",
		"1-3/1-3:1.0/ep_81/bEndpointAddress": "81",
		"1-3/1-3:1.0/ep_81/bmAttributes":     "03",
	})
	return root
}

func TestScan(t *testing.T) {
	root := fakeSysfs(t)

	devices, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(devices) = %d, want 2", len(devices))
	}

	disk := devices[0]
	want := DeviceInfo{
		SysfsPath:    filepath.Join(root, "1-2"),
		DevfsPath:    "/dev/bus/usb/001/007",
		Bus:          1,
		Dev:          7,
		VendorID:     0x0483,
		ProductID:    0x5720,
		Manufacturer: "LOSP",
		Product:      "Instrument Disk",
		Serial:       "0001",
		Speed:        hal.SpeedFull,
		Interfaces: []InterfaceInfo{
			{
				Number: 0, Class: 0x08, SubClass: 0x06, Protocol: 0x50,
				Endpoints: []hal.EndpointDescriptor{
					{Address: 0x02, Attributes: 0x02, MaxPacketSize: 64},
					{Address: 0x81, Attributes: 0x02, MaxPacketSize: 64},
				},
			},
			{Number: 1, Class: 0x02, SubClass: 0x02, Protocol: 0x01},
		},
	}
	if diff := pretty.Compare(disk, want); diff != "" {
		t.Errorf("device differs: (-got +want)\n%s", diff)
	}
}

func TestFindMassStorage(t *testing.T) {
	root := fakeSysfs(t)

	tests := []struct {
		name     string
		vid, pid uint16
		want     int
	}{
		{"any", 0, 0, 1},
		{"vendor", 0x0483, 0, 1},
		{"vendor and product", 0x0483, 0x5720, 1},
		{"other product", 0x0483, 0x1234, 0},
		{"keyboard vendor", 0x046d, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := FindMassStorage(root, tt.vid, tt.pid)
			if err != nil {
				t.Fatalf("FindMassStorage failed: %v", err)
			}
			if len(targets) != tt.want {
				t.Fatalf("len(targets) = %d, want %d", len(targets), tt.want)
			}
			if tt.want == 1 {
				tgt := targets[0]
				if tgt.Interface != 0 || tgt.Endpoints != (hal.BulkEndpoints{In: 0x81, Out: 0x02}) {
					t.Errorf("target = %s", tgt)
				}
			}
		})
	}
}

func TestFindTarget(t *testing.T) {
	root := fakeSysfs(t)

	tgt, err := FindTarget(root, "/dev/bus/usb/001/007", 0, 0)
	if err != nil {
		t.Fatalf("FindTarget(path) failed: %v", err)
	}
	if tgt.Device.Product != "Instrument Disk" {
		t.Errorf("Product = %q", tgt.Device.Product)
	}

	if _, err := FindTarget(root, "/dev/bus/usb/001/009", 0, 0); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("FindTarget(keyboard) = %v, want ErrNoDevice", err)
	}
	if _, err := FindTarget(root, "", 0x1234, 0); !errors.Is(err, pkg.ErrNoDevice) {
		t.Errorf("FindTarget(missing vid) = %v, want ErrNoDevice", err)
	}
	if _, err := Scan(filepath.Join(root, "missing")); err == nil {
		t.Error("Scan of missing root succeeded")
	}
}

func TestFindTarget_Ambiguous(t *testing.T) {
	root := fakeSysfs(t)
	writeTree(t, root, map[string]string{
		"1-4/busnum":                         "1",
		"1-4/devnum":                         "11",
		"1-4/idVendor":                       "0483",
		"1-4/idProduct":                      "5720",
		"1-4/1-4:1.0/bInterfaceNumber":       "00",
		"1-4/1-4:1.0/bInterfaceClass":        "08",
		"1-4/1-4:1.0/bInterfaceSubClass":     "06",
		"1-4/1-4:1.0/bInterfaceProtocol":     "50",
		"1-4/1-4:1.0/ep_81/bEndpointAddress": "81",
		"1-4/1-4:1.0/ep_81/bmAttributes":     "02",
		"1-4/1-4:1.0/ep_01/bEndpointAddress": "01",
		"1-4/1-4:1.0/ep_01/bmAttributes":     "02",
	})

	if _, err := FindTarget(root, "", 0x0483, 0x5720); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("FindTarget = %v, want ErrInvalidParameter", err)
	}
	tgt, err := FindTarget(root, "/dev/bus/usb/001/011", 0, 0)
	if err != nil {
		t.Fatalf("FindTarget(path) failed: %v", err)
	}
	if tgt.Endpoints.Out != 0x01 {
		t.Errorf("Out = 0x%02X, want 0x01", tgt.Endpoints.Out)
	}
}

func TestFormatDevfsPath(t *testing.T) {
	tests := []struct {
		bus, dev uint8
		want     string
	}{
		{1, 1, "/dev/bus/usb/001/001"},
		{12, 34, "/dev/bus/usb/012/034"},
		{255, 255, "/dev/bus/usb/255/255"},
	}
	for _, tt := range tests {
		if got := formatDevfsPath(tt.bus, tt.dev); got != tt.want {
			t.Errorf("formatDevfsPath(%d, %d) = %q, want %q", tt.bus, tt.dev, got, tt.want)
		}
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  hal.Speed
	}{
		{"1.5", hal.SpeedLow},
		{"12", hal.SpeedFull},
		{"480", hal.SpeedHigh},
		{"5000", hal.SpeedSuper},
		{"", hal.SpeedUnknown},
		{"invalid", hal.SpeedUnknown},
	}
	for _, tt := range tests {
		if got := parseSpeed(tt.input); got != tt.want {
			t.Errorf("parseSpeed(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
