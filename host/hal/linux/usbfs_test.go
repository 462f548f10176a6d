//go:build linux

package linux

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/lospdisk/pkg"
)

func TestTransferError(t *testing.T) {
	tests := []struct {
		errno  unix.Errno
		status pkg.TransferStatus
		want   error
	}{
		{unix.ETIMEDOUT, pkg.TransferStatusTimeout, pkg.ErrTimeout},
		{unix.EPIPE, pkg.TransferStatusStall, pkg.ErrStall},
		{unix.ENODEV, pkg.TransferStatusNoDevice, pkg.ErrNoDevice},
		{unix.ESHUTDOWN, pkg.TransferStatusNoDevice, pkg.ErrNoDevice},
		{unix.EOVERFLOW, pkg.TransferStatusOverrun, pkg.ErrOverrun},
		{unix.ENOENT, pkg.TransferStatusCancelled, pkg.ErrCancelled},
		{unix.ECONNRESET, pkg.TransferStatusCancelled, pkg.ErrCancelled},
		{unix.EIO, pkg.TransferStatusError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.errno.Error(), func(t *testing.T) {
			if got := transferStatus(tt.errno); got != tt.status {
				t.Errorf("transferStatus(%v) = %v, want %v", tt.errno, got, tt.status)
			}
			err := transferError(tt.errno)
			if !errors.Is(err, tt.errno) {
				t.Errorf("transferError(%v) = %v, lost errno", tt.errno, err)
			}
			if tt.want == nil {
				if err != error(tt.errno) {
					t.Errorf("transferError(%v) = %v, want errno unchanged", tt.errno, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("transferError(%v) = %v, want %v", tt.errno, err, tt.want)
			}
		})
	}
}

func TestBulkTransfer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Conn{fd: -1}
	_, err := c.BulkTransfer(ctx, 0x81, make([]byte, 8), time.Second)
	if !errors.Is(err, pkg.ErrCancelled) {
		t.Errorf("BulkTransfer() error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("BulkTransfer() error = %v, want context.Canceled", err)
	}
}
