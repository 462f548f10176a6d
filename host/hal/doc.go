// Package hal defines the connection contract between the tunnel stack and
// the host USB stack.
//
// The enumeration and permission layer is outside this module: it opens the
// device, identifies the Bulk-Only interface and its two bulk endpoints, and
// hands over a [Conn]. Everything above (BOT framing, SCSI, LOSP) is written
// against [Conn] only, so it runs unchanged on real hardware
// ([github.com/ardnew/lospdisk/host/hal/linux]) and on the simulated device
// in [github.com/ardnew/lospdisk/host/class/msc/msctest].
//
// # Implementing a Conn
//
// BulkTransfer is synchronous and bounded by its timeout argument:
//
//	func (c *MyConn) BulkTransfer(ctx context.Context, ep uint8, data []byte, timeout time.Duration) (int, error) {
//	    // Queue the transfer, wait for completion or timeout
//	    return n, nil
//	}
//
// Errors should wrap the sentinels in [github.com/ardnew/lospdisk/pkg]
// (ErrTimeout, ErrStall, ErrNoDevice) so callers can classify them.
package hal
