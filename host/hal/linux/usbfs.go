//go:build linux

package linux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// Conn is a usbfs device node opened for synchronous bulk transfers. It
// implements hal.Conn.
type Conn struct {
	path string

	mu       sync.Mutex
	fd       int
	detached map[uint8]bool // interfaces whose kernel driver we unbound
}

var _ hal.Conn = (*Conn)(nil)

// Open opens the usbfs node at path, e.g. /dev/bus/usb/001/004.
func Open(path string) (*Conn, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
			return nil, fmt.Errorf("usbfs open %s: %w: %w", path, pkg.ErrNoDevice, err)
		}
		return nil, fmt.Errorf("usbfs open %s: %w", path, err)
	}
	pkg.LogDebug(pkg.ComponentHAL, "opened", "path", path, "fd", fd)
	return &Conn{path: path, fd: fd, detached: make(map[uint8]bool)}, nil
}

// Path returns the device node path.
func (c *Conn) Path() string { return c.path }

// BulkTransfer performs one synchronous bulk transfer. The context is only
// checked before the transfer starts; usbfs offers no way to abort a
// synchronous transfer, which ends on completion or timeout.
func (c *Conn) BulkTransfer(ctx context.Context, endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", pkg.ErrCancelled, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return 0, pkg.ErrClosed
	}

	req := bulkTransfer{
		endpoint: uint32(endpoint),
		length:   uint32(len(data)),
		timeout:  uint32(max(timeout.Milliseconds(), 1)),
	}
	if len(data) > 0 {
		req.data = unsafe.Pointer(&data[0])
	}

	n, err := ioctlPtr(c.fd, usbdevfsBulk, unsafe.Pointer(&req))
	if err != nil {
		err = transferError(err)
		if errors.Is(err, pkg.ErrStall) {
			c.clearHalt(endpoint)
		}
		return 0, fmt.Errorf("usbfs bulk ep 0x%02X (%d bytes): %w", endpoint, len(data), err)
	}
	return n, nil
}

// ClaimInterface unbinds any kernel driver (usb-storage, typically) from
// iface and claims it.
func (c *Conn) ClaimInterface(iface uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return pkg.ErrClosed
	}

	switch err := c.driverIoctl(iface, usbdevfsDisconnect); {
	case err == nil:
		c.detached[iface] = true
		pkg.LogInfo(pkg.ComponentHAL, "kernel driver detached", "path", c.path, "interface", iface)
	case errors.Is(err, unix.ENODATA):
		// No driver bound.
	default:
		return fmt.Errorf("usbfs detach interface %d: %w", iface, err)
	}

	num := uint32(iface)
	if _, err := ioctlPtr(c.fd, usbdevfsClaimInterface, unsafe.Pointer(&num)); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("usbfs claim interface %d: %w: %w", iface, pkg.ErrBusy, err)
		}
		return fmt.Errorf("usbfs claim interface %d: %w", iface, err)
	}
	return nil
}

// ReleaseInterface releases iface and rebinds the kernel driver if
// ClaimInterface unbound it.
func (c *Conn) ReleaseInterface(iface uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return pkg.ErrClosed
	}

	num := uint32(iface)
	if _, err := ioctlPtr(c.fd, usbdevfsReleaseInterface, unsafe.Pointer(&num)); err != nil {
		return fmt.Errorf("usbfs release interface %d: %w", iface, err)
	}
	if c.detached[iface] {
		delete(c.detached, iface)
		if err := c.driverIoctl(iface, usbdevfsConnect); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "kernel driver reattach failed", "interface", iface, "error", err)
		}
	}
	return nil
}

// Close closes the device node. Claimed interfaces are released by the
// kernel.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *Conn) driverIoctl(iface uint8, code uintptr) error {
	req := ioctlRequest{ifno: int32(iface), ioctlCode: int32(code)}
	_, err := ioctlPtr(c.fd, usbdevfsIoctl, unsafe.Pointer(&req))
	return err
}

func (c *Conn) clearHalt(endpoint uint8) {
	ep := uint32(endpoint)
	if _, err := ioctlPtr(c.fd, usbdevfsClearHalt, unsafe.Pointer(&ep)); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "clear halt failed", "endpoint", endpoint, "error", err)
	}
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}

// transferStatus classifies a usbfs errno. URBs killed by the kernel
// report ENOENT or ECONNRESET.
func transferStatus(err error) pkg.TransferStatus {
	switch {
	case err == nil:
		return pkg.TransferStatusSuccess
	case errors.Is(err, unix.ETIMEDOUT):
		return pkg.TransferStatusTimeout
	case errors.Is(err, unix.EPIPE):
		return pkg.TransferStatusStall
	case errors.Is(err, unix.ENODEV), errors.Is(err, unix.ESHUTDOWN):
		return pkg.TransferStatusNoDevice
	case errors.Is(err, unix.EOVERFLOW):
		return pkg.TransferStatusOverrun
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ECONNRESET):
		return pkg.TransferStatusCancelled
	default:
		return pkg.TransferStatusError
	}
}

// transferError wraps err with the sentinel of its transfer status. Errnos
// with no status of their own pass through unchanged.
func transferError(err error) error {
	st := transferStatus(err)
	if st == pkg.TransferStatusSuccess || st == pkg.TransferStatusError {
		return err
	}
	return fmt.Errorf("%w: %w", st.Error(), err)
}
