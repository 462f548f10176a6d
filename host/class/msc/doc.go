// Package msc implements the host side of the USB Mass Storage Class
// Bulk-Only Transport (BOT) with the small SCSI command set needed to use a
// peripheral as a sector store.
//
// # Architecture
//
// The package is layered:
//
//  1. Transport - frames one SCSI command as CBW, data, CSW
//  2. Disk - builds CDBs for the supported SCSI operations
//  3. Byte I/O - maps byte ranges onto whole-sector operations
//
// # Bulk-Only Transport (BOT) Protocol
//
// Each command runs three phases over a bulk IN/OUT endpoint pair:
//
//  1. Command Phase - Host sends Command Block Wrapper (CBW)
//  2. Data Phase - Optional transfer in the CBW direction
//  3. Status Phase - Device returns Command Status Wrapper (CSW)
//
// A failed data phase or a non-zero CSW status is followed by an automatic
// REQUEST SENSE whose data is attached to the returned error. Nothing is
// retried at this layer.
//
// # SCSI Command Support
//
//   - INQUIRY - Device identification
//   - READ CAPACITY (10) - Last LBA and block size
//   - REQUEST SENSE - Error information
//   - READ (10) - Read 1..255 blocks
//   - WRITE (10) - Write 1..255 blocks
//
// # Usage Example
//
//	err := msc.WithDisk(ctx, conn, eps, func(ctx context.Context, d *msc.Disk) error {
//	    c, err := d.ReadCapacity(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(c.Blocks(), "blocks")
//	    return d.OverwriteBytes(ctx, 10, 500, []byte("hello"))
//	})
//
// # References
//
//   - USB Mass Storage Bulk-Only Transport 1.0
//   - SCSI Primary Commands (SPC-4)
//   - SCSI Block Commands (SBC-3)
package msc
