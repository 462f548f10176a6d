package linux

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// DeviceInfo describes a USB device discovered via sysfs.
type DeviceInfo struct {
	SysfsPath    string
	DevfsPath    string
	Bus          uint8
	Dev          uint8
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
	Speed        hal.Speed
	Interfaces   []InterfaceInfo
}

// InterfaceInfo describes one interface of the active configuration.
type InterfaceInfo struct {
	Number    uint8
	Class     uint8
	SubClass  uint8
	Protocol  uint8
	Endpoints []hal.EndpointDescriptor
}

// IsBulkOnlySCSI reports whether the interface is a SCSI Bulk-Only mass
// storage interface.
func (i *InterfaceInfo) IsBulkOnlySCSI() bool {
	return i.Class == ClassMassStorage && i.SubClass == SubclassSCSI && i.Protocol == ProtocolBulkOnly
}

// Target is a mass storage interface ready to be opened.
type Target struct {
	Device    DeviceInfo
	Interface uint8
	Endpoints hal.BulkEndpoints
}

// String returns a short description of t.
func (t Target) String() string {
	return fmt.Sprintf("%s %04x:%04x if%d in=0x%02X out=0x%02X",
		t.Device.DevfsPath, t.Device.VendorID, t.Device.ProductID,
		t.Interface, t.Endpoints.In, t.Endpoints.Out)
}

// Scan reads every USB device under root, normally SysfsUSBPath.
func Scan(root string) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		name := entry.Name()
		// Root hubs are "usbN"; interfaces are "1-1:1.0".
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		info, err := parseDevice(filepath.Join(root, name))
		if err != nil {
			continue
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// FindMassStorage returns the Bulk-Only SCSI interfaces under root. A zero
// vid or pid matches any device.
func FindMassStorage(root string, vid, pid uint16) ([]Target, error) {
	devices, err := Scan(root)
	if err != nil {
		return nil, err
	}

	var targets []Target
	for _, dev := range devices {
		if (vid != 0 && dev.VendorID != vid) || (pid != 0 && dev.ProductID != pid) {
			continue
		}
		for _, iface := range dev.Interfaces {
			if !iface.IsBulkOnlySCSI() {
				continue
			}
			eps, ok := hal.SelectBulkEndpoints(iface.Endpoints)
			if !ok {
				pkg.LogWarn(pkg.ComponentHAL, "mass storage interface without bulk pair",
					"device", dev.DevfsPath, "interface", iface.Number)
				continue
			}
			targets = append(targets, Target{Device: dev, Interface: iface.Number, Endpoints: eps})
		}
	}
	return targets, nil
}

// FindTarget resolves a single mass storage interface, selected by usbfs
// node path when path is set and by vid/pid otherwise.
func FindTarget(root, path string, vid, pid uint16) (Target, error) {
	targets, err := FindMassStorage(root, vid, pid)
	if err != nil {
		return Target{}, err
	}
	if path != "" {
		for _, t := range targets {
			if t.Device.DevfsPath == path {
				return t, nil
			}
		}
		return Target{}, fmt.Errorf("%s: no bulk-only mass storage interface: %w", path, pkg.ErrNoDevice)
	}
	switch len(targets) {
	case 0:
		return Target{}, fmt.Errorf("no bulk-only mass storage device %04x:%04x: %w", vid, pid, pkg.ErrNoDevice)
	case 1:
		return targets[0], nil
	default:
		return Target{}, fmt.Errorf("%d matching mass storage devices, select one by path: %w",
			len(targets), pkg.ErrInvalidParameter)
	}
}

func parseDevice(sysfsPath string) (DeviceInfo, error) {
	info := DeviceInfo{SysfsPath: sysfsPath}

	var err error
	if info.Bus, err = readUint8(filepath.Join(sysfsPath, "busnum")); err != nil {
		return info, err
	}
	if info.Dev, err = readUint8(filepath.Join(sysfsPath, "devnum")); err != nil {
		return info, err
	}
	info.DevfsPath = formatDevfsPath(info.Bus, info.Dev)

	info.VendorID, _ = readHexUint16(filepath.Join(sysfsPath, "idVendor"))
	info.ProductID, _ = readHexUint16(filepath.Join(sysfsPath, "idProduct"))
	info.Manufacturer, _ = readString(filepath.Join(sysfsPath, "manufacturer"))
	info.Product, _ = readString(filepath.Join(sysfsPath, "product"))
	info.Serial, _ = readString(filepath.Join(sysfsPath, "serial"))
	if s, err := readString(filepath.Join(sysfsPath, "speed")); err == nil {
		info.Speed = parseSpeed(s)
	}
	info.Interfaces = scanInterfaces(sysfsPath)
	return info, nil
}

func scanInterfaces(devicePath string) []InterfaceInfo {
	entries, err := os.ReadDir(devicePath)
	if err != nil {
		return nil
	}

	prefix := filepath.Base(devicePath) + ":"
	var interfaces []InterfaceInfo
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		iface, err := parseInterface(filepath.Join(devicePath, entry.Name()))
		if err != nil {
			continue
		}
		interfaces = append(interfaces, iface)
	}
	sort.Slice(interfaces, func(i, j int) bool { return interfaces[i].Number < interfaces[j].Number })
	return interfaces
}

func parseInterface(sysfsPath string) (InterfaceInfo, error) {
	var info InterfaceInfo
	var err error
	if info.Number, err = readHexUint8(filepath.Join(sysfsPath, "bInterfaceNumber")); err != nil {
		return info, err
	}
	info.Class, _ = readHexUint8(filepath.Join(sysfsPath, "bInterfaceClass"))
	info.SubClass, _ = readHexUint8(filepath.Join(sysfsPath, "bInterfaceSubClass"))
	info.Protocol, _ = readHexUint8(filepath.Join(sysfsPath, "bInterfaceProtocol"))
	info.Endpoints = scanEndpoints(sysfsPath)
	return info, nil
}

// scanEndpoints reads the ep_XX directories of an interface.
func scanEndpoints(ifacePath string) []hal.EndpointDescriptor {
	matches, _ := filepath.Glob(filepath.Join(ifacePath, "ep_*"))
	sort.Strings(matches)

	var eps []hal.EndpointDescriptor
	for _, dir := range matches {
		addr, err := readHexUint8(filepath.Join(dir, "bEndpointAddress"))
		if err != nil {
			continue
		}
		ep := hal.EndpointDescriptor{Address: addr}
		ep.Attributes, _ = readHexUint8(filepath.Join(dir, "bmAttributes"))
		ep.MaxPacketSize, _ = readHexUint16(filepath.Join(dir, "wMaxPacketSize"))
		ep.Interval, _ = readHexUint8(filepath.Join(dir, "bInterval"))
		eps = append(eps, ep)
	}
	return eps
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readUint8(path string) (uint8, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 8)
	return uint8(v), err
}

func readHex(path string, bitSize int) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, bitSize)
}

func readHexUint8(path string) (uint8, error) {
	v, err := readHex(path, 8)
	return uint8(v), err
}

func readHexUint16(path string) (uint16, error) {
	v, err := readHex(path, 16)
	return uint16(v), err
}

// formatDevfsPath returns the usbfs node of a bus and device number.
func formatDevfsPath(bus, dev uint8) string {
	return fmt.Sprintf("%s/%03d/%03d", DevfsUSBPath, bus, dev)
}

// parseSpeed converts a sysfs speed string (Mbit/s) to a hal.Speed.
func parseSpeed(s string) hal.Speed {
	switch s {
	case "1.5":
		return hal.SpeedLow
	case "12":
		return hal.SpeedFull
	case "480":
		return hal.SpeedHigh
	case "5000", "10000", "20000":
		return hal.SpeedSuper
	default:
		return hal.SpeedUnknown
	}
}
