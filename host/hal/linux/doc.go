// Package linux connects the tunnel stack to real hardware through Linux
// usbfs.
//
// Discovery reads sysfs (/sys/bus/usb/devices) for SCSI Bulk-Only mass
// storage interfaces and their bulk endpoint pair. Conn opens the matching
// /dev/bus/usb node and performs synchronous USBDEVFS_BULK transfers, which
// is all the one-command-at-a-time BOT engine needs. Claiming an interface
// unbinds the usb-storage driver first and releasing it binds the driver
// again.
//
// # Requirements
//
// The user needs read/write access to the device node, either as root or
// through a udev rule such as:
//
//	SUBSYSTEM=="usb", ATTR{idVendor}=="0483", MODE="0666"
//
// # Example
//
//	target, err := linux.FindTarget(linux.SysfsUSBPath, "", 0x0483, 0x5720)
//	conn, err := linux.Open(target.Device.DevfsPath)
//	disk, err := msc.Open(conn, target.Endpoints, msc.WithInterface(target.Interface))
package linux
