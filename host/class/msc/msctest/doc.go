// Package msctest provides a simulated USB mass storage device for testing
// the Bulk-Only Transport host stack without hardware.
//
// A Device implements hal.Conn. It decodes each CBW, serves INQUIRY,
// READ CAPACITY (10), REQUEST SENSE, READ (10) and WRITE (10) against a
// Storage backend, and returns a CSW. Faults can be injected per LBA or for
// the next command, and per-sector hooks let a test (or a simulated
// instrument) observe writes and rewrite reads.
//
// # Example
//
//	dev := msctest.New(msctest.NewMemoryStorage(1024, 512))
//	dev.FailWrite(11, msctest.FaultStatus)
//	disk, err := msc.Open(dev, dev.Endpoints())
package msctest
