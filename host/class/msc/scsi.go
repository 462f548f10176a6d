package msc

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// Sense holds raw fixed-format REQUEST SENSE data. The tunnel treats it as
// opaque; the accessors exist for diagnostics.
type Sense [SenseDataSize]byte

// ResponseCode returns the response code (0x70 current, 0x71 deferred).
func (s *Sense) ResponseCode() uint8 { return s[0] & 0x7F }

// Key returns the sense key (bits 0-3 of byte 2).
func (s *Sense) Key() uint8 { return s[2] & 0x0F }

// ASC returns the additional sense code.
func (s *Sense) ASC() uint8 { return s[12] }

// ASCQ returns the additional sense code qualifier.
func (s *Sense) ASCQ() uint8 { return s[13] }

// KeyName returns the sense key name.
func (s *Sense) KeyName() string {
	switch s.Key() {
	case SenseNoSense:
		return "NO SENSE"
	case SenseRecoveredError:
		return "RECOVERED ERROR"
	case SenseNotReady:
		return "NOT READY"
	case SenseMediumError:
		return "MEDIUM ERROR"
	case SenseHardwareError:
		return "HARDWARE ERROR"
	case SenseIllegalRequest:
		return "ILLEGAL REQUEST"
	case SenseUnitAttention:
		return "UNIT ATTENTION"
	case SenseDataProtect:
		return "DATA PROTECT"
	case SenseBlankCheck:
		return "BLANK CHECK"
	case SenseAbortedCommand:
		return "ABORTED COMMAND"
	default:
		return fmt.Sprintf("KEY 0x%X", s.Key())
	}
}

// String returns the decoded key and the raw bytes.
func (s *Sense) String() string {
	return fmt.Sprintf("%s asc=0x%02X ascq=0x%02X raw=% X", s.KeyName(), s.ASC(), s.ASCQ(), s[:])
}

// InquiryData is the decoded standard INQUIRY response.
type InquiryData struct {
	DeviceType uint8  // Peripheral device type (bits 0-4)
	Removable  bool   // RMB bit
	Version    uint8  // SCSI version
	Vendor     string // T10 vendor identification, trimmed
	Product    string // Product identification, trimmed
	Revision   string // Product revision level, trimmed
}

// ParseInquiry decodes standard INQUIRY data.
// Returns false if data is shorter than InquiryStandardSize.
func ParseInquiry(data []byte, out *InquiryData) bool {
	if len(data) < InquiryStandardSize {
		return false
	}
	out.DeviceType = data[0] & 0x1F
	out.Removable = data[1]&0x80 != 0
	out.Version = data[2]
	out.Vendor = trimASCII(data[8:16])
	out.Product = trimASCII(data[16:32])
	out.Revision = trimASCII(data[32:36])
	return true
}

func trimASCII(b []byte) string {
	return string(bytes.TrimRight(bytes.TrimRight(b, "\x00"), " "))
}

// Capacity is the decoded READ CAPACITY (10) response.
type Capacity struct {
	LastLBA   uint32 // Zero-based address of the last block
	BlockSize uint32 // Block length in bytes
}

// ParseCapacity decodes a big-endian READ CAPACITY (10) response.
// Returns false if data is too short.
func ParseCapacity(data []byte, out *Capacity) bool {
	if len(data) < ReadCapacity10Size {
		return false
	}
	out.LastLBA = binary.BigEndian.Uint32(data[0:4])
	out.BlockSize = binary.BigEndian.Uint32(data[4:8])
	return true
}

// MarshalTo writes the capacity in READ CAPACITY (10) format.
// Returns the number of bytes written, or 0 if buf is too small.
func (c Capacity) MarshalTo(buf []byte) int {
	if len(buf) < ReadCapacity10Size {
		return 0
	}
	binary.BigEndian.PutUint32(buf[0:4], c.LastLBA)
	binary.BigEndian.PutUint32(buf[4:8], c.BlockSize)
	return ReadCapacity10Size
}

// Blocks returns the total number of blocks.
func (c Capacity) Blocks() uint64 { return uint64(c.LastLBA) + 1 }

// Bytes returns the total capacity in bytes.
func (c Capacity) Bytes() uint64 { return c.Blocks() * uint64(c.BlockSize) }

// CDB builders.

func inquiryCDB() [CDB6Length]byte {
	return [CDB6Length]byte{SCSIInquiry, 0, 0, 0, InquiryStandardSize, 0}
}

func requestSenseCDB() [CDB6Length]byte {
	return [CDB6Length]byte{SCSIRequestSense, 0, 0, 0, SenseDataSize, 0}
}

func readCapacityCDB() [CDB10Length]byte {
	return [CDB10Length]byte{SCSIReadCapacity10}
}

// rw10CDB builds a READ(10) or WRITE(10) CDB: LBA big-endian at offset 2,
// transfer length big-endian at offset 7.
func rw10CDB(opcode uint8, lba uint32, count uint16) [CDB10Length]byte {
	var cdb [CDB10Length]byte
	cdb[0] = opcode
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], count)
	return cdb
}

// ParseRW10 extracts the LBA and block count from a READ(10)/WRITE(10) CDB.
func ParseRW10(cdb []byte) (lba uint32, count uint16, ok bool) {
	if len(cdb) < CDB10Length {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(cdb[2:6]), binary.BigEndian.Uint16(cdb[7:9]), true
}

// Disk is one session with a logical unit of a Bulk-Only mass storage
// device. It owns the interface claim, the tag counter and the cached
// capacity for its lifetime.
type Disk struct {
	conn hal.Conn
	bot  *Transport
	cfg  Config

	capacity     Capacity
	haveCapacity bool
	capMu        sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Open claims the configured interface on conn and returns a session.
// The caller must Close the Disk to release the claim.
func Open(conn hal.Conn, eps hal.BulkEndpoints, opts ...Option) (*Disk, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if conn == nil {
		return nil, &ValidationError{Op: "open", Reason: "nil connection"}
	}
	if !eps.Valid() {
		return nil, &ValidationError{Op: "open",
			Reason: fmt.Sprintf("bad bulk endpoints in=0x%02X out=0x%02X", eps.In, eps.Out)}
	}

	if err := conn.ClaimInterface(cfg.Interface); err != nil {
		return nil, fmt.Errorf("claim interface %d: %w", cfg.Interface, err)
	}

	pkg.LogInfo(pkg.ComponentSCSI, "session opened",
		"interface", cfg.Interface,
		"lun", cfg.LUN,
		"in", eps.In,
		"out", eps.Out)

	return &Disk{
		conn: conn,
		bot:  newTransport(conn, eps, cfg),
		cfg:  cfg,
	}, nil
}

// WithDisk opens a session, runs fn and releases the interface claim on
// every exit path.
func WithDisk(ctx context.Context, conn hal.Conn, eps hal.BulkEndpoints, fn func(context.Context, *Disk) error, opts ...Option) (err error) {
	disk, err := Open(conn, eps, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := disk.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, disk)
}

// Close releases the interface claim. It is safe to call more than once;
// the claim is released exactly once.
func (d *Disk) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.conn.ReleaseInterface(d.cfg.Interface)
		if d.closeErr != nil {
			pkg.LogWarn(pkg.ComponentSCSI, "release interface failed",
				"interface", d.cfg.Interface,
				"error", d.closeErr)
		} else {
			pkg.LogInfo(pkg.ComponentSCSI, "session closed", "interface", d.cfg.Interface)
		}
	})
	return d.closeErr
}

// Transport returns the BOT engine used by the session.
func (d *Disk) Transport() *Transport { return d.bot }

// LUN returns the logical unit addressed by the session.
func (d *Disk) LUN() uint8 { return d.cfg.LUN }

func (d *Disk) execute(ctx context.Context, dir Direction, cdb []byte, data []byte) (int, error) {
	if d.closed.Load() {
		return 0, fmt.Errorf("%s: %w", opcodeName(cdb), pkg.ErrClosed)
	}
	return d.bot.Execute(ctx, dir, d.cfg.LUN, cdb, data)
}

// Inquiry issues INQUIRY with a 36-byte allocation length.
func (d *Disk) Inquiry(ctx context.Context) (InquiryData, error) {
	var buf [InquiryStandardSize]byte
	var inq InquiryData
	cdb := inquiryCDB()
	n, err := d.execute(ctx, DirIn, cdb[:], buf[:])
	if err != nil {
		return inq, err
	}
	if !ParseInquiry(buf[:n], &inq) {
		return inq, &TransportError{Op: "INQUIRY", Phase: PhaseData,
			Detail: fmt.Sprintf("short response: %d bytes", n), Err: pkg.ErrBufferTooSmall}
	}
	pkg.LogDebug(pkg.ComponentSCSI, "inquiry",
		"vendor", inq.Vendor,
		"product", inq.Product,
		"revision", inq.Revision)
	return inq, nil
}

// ReadCapacity issues READ CAPACITY (10) and caches the result for the
// session.
func (d *Disk) ReadCapacity(ctx context.Context) (Capacity, error) {
	var buf [ReadCapacity10Size]byte
	var c Capacity
	cdb := readCapacityCDB()
	n, err := d.execute(ctx, DirIn, cdb[:], buf[:])
	if err != nil {
		return c, err
	}
	if !ParseCapacity(buf[:n], &c) {
		return c, &TransportError{Op: "READ CAPACITY(10)", Phase: PhaseData,
			Detail: fmt.Sprintf("short response: %d bytes", n), Err: pkg.ErrBufferTooSmall}
	}
	if c.BlockSize == 0 {
		return c, &TransportError{Op: "READ CAPACITY(10)", Phase: PhaseData,
			Detail: "zero block size"}
	}

	d.capMu.Lock()
	d.capacity = c
	d.haveCapacity = true
	d.capMu.Unlock()

	pkg.LogInfo(pkg.ComponentSCSI, "capacity",
		"last_lba", c.LastLBA,
		"block_size", c.BlockSize,
		"blocks", c.Blocks())
	return c, nil
}

// Capacity returns the cached capacity, if READ CAPACITY has succeeded.
func (d *Disk) Capacity() (Capacity, bool) {
	d.capMu.Lock()
	defer d.capMu.Unlock()
	return d.capacity, d.haveCapacity
}

// BlockSize returns the cached block size, issuing READ CAPACITY first if
// the session has not yet done so.
func (d *Disk) BlockSize(ctx context.Context) (uint32, error) {
	if c, ok := d.Capacity(); ok {
		return c.BlockSize, nil
	}
	c, err := d.ReadCapacity(ctx)
	if err != nil {
		return 0, err
	}
	return c.BlockSize, nil
}

// RequestSense issues REQUEST SENSE with an 18-byte allocation length.
func (d *Disk) RequestSense(ctx context.Context) (Sense, error) {
	var sense Sense
	cdb := requestSenseCDB()
	_, err := d.execute(ctx, DirIn, cdb[:], sense[:])
	return sense, err
}

// Read10 reads count blocks starting at lba. The returned slice is shorter
// than count*blockSize if the device transferred less.
func (d *Disk) Read10(ctx context.Context, lba uint32, count int) ([]byte, error) {
	if err := validateCount("READ(10)", count); err != nil {
		return nil, err
	}
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, count*int(bs))
	cdb := rw10CDB(SCSIRead10, lba, uint16(count))
	n, err := d.execute(ctx, DirIn, cdb[:], buf)
	if err != nil {
		return nil, err
	}
	if n < len(buf) {
		pkg.LogWarn(pkg.ComponentSCSI, "short read",
			"lba", lba,
			"count", count,
			"got", n,
			"want", len(buf))
	}
	return buf[:n], nil
}

// Write10 writes data starting at lba. len(data) must be a whole number of
// blocks, and the block count must lie in 1..255.
func (d *Disk) Write10(ctx context.Context, lba uint32, data []byte) error {
	if len(data) == 0 {
		return &ValidationError{Op: "WRITE(10)", Reason: "empty buffer"}
	}
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return err
	}
	if len(data)%int(bs) != 0 {
		return &ValidationError{Op: "WRITE(10)",
			Reason: fmt.Sprintf("buffer length %d is not a multiple of block size %d", len(data), bs)}
	}
	count := len(data) / int(bs)
	if err := validateCount("WRITE(10)", count); err != nil {
		return err
	}

	cdb := rw10CDB(SCSIWrite10, lba, uint16(count))
	n, err := d.execute(ctx, DirOut, cdb[:], data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return &TransportError{Op: "WRITE(10)", Phase: PhaseData,
			Detail: fmt.Sprintf("lba=%d count=%d: wrote %d of %d bytes", lba, count, n, len(data))}
	}
	return nil
}

func validateCount(op string, count int) error {
	if count < MinTransferBlocks || count > MaxTransferBlocks {
		return &ValidationError{Op: op,
			Reason: fmt.Sprintf("block count %d not in %d..%d", count, MinTransferBlocks, MaxTransferBlocks)}
	}
	return nil
}
