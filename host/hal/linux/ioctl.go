//go:build linux

package linux

import "unsafe"

// Generic _IOC encoding shared by x86, arm, arm64 and riscv:
//
//	bits 0-7:   command number (nr)
//	bits 8-15:  ioctl type (type)
//	bits 16-29: argument size (size)
//	bits 30-31: direction (dir)
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }
func ion(typ, nr uintptr) uintptr        { return ioc(iocNone, typ, nr, 0) }

// bulkTransfer matches struct usbdevfs_bulktransfer.
type bulkTransfer struct {
	endpoint uint32
	length   uint32
	timeout  uint32 // milliseconds
	data     unsafe.Pointer
}

// ioctlRequest matches struct usbdevfs_ioctl.
type ioctlRequest struct {
	ifno      int32
	ioctlCode int32
	data      unsafe.Pointer
}

const usbdevfsType = 'U'

var (
	usbdevfsBulk             = iowr(usbdevfsType, 2, unsafe.Sizeof(bulkTransfer{}))
	usbdevfsClaimInterface   = ior(usbdevfsType, 15, 4)
	usbdevfsReleaseInterface = ior(usbdevfsType, 16, 4)
	usbdevfsIoctl            = iowr(usbdevfsType, 18, unsafe.Sizeof(ioctlRequest{}))
	usbdevfsClearHalt        = ior(usbdevfsType, 21, 4)
	usbdevfsDisconnect       = ion(usbdevfsType, 22)
	usbdevfsConnect          = ion(usbdevfsType, 23)
)
