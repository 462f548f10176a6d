package linux

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

// Mass storage interface triple served by the tunnel stack.
const (
	ClassMassStorage = 0x08
	SubclassSCSI     = 0x06
	ProtocolBulkOnly = 0x50
)
