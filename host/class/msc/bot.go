package msc

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// CommandBlockWrapper represents a Command Block Wrapper in Bulk-Only Transport.
type CommandBlockWrapper struct {
	Signature          uint32   // Must be CBWSignature (0x43425355)
	Tag                uint32   // Command block tag
	DataTransferLength uint32   // Number of bytes to transfer in data phase
	Flags              uint8    // Direction flag (bit 7: 0=Out, 1=In)
	LUN                uint8    // Logical Unit Number (bits 0-3)
	CBLength           uint8    // Command block length (1-16)
	CB                 [16]byte // Command block (SCSI CDB)
}

// ParseCBW parses a Command Block Wrapper from raw bytes.
// Returns false if data is too short or signature is invalid.
func ParseCBW(data []byte, out *CommandBlockWrapper) bool {
	if len(data) < CBWSize {
		return false
	}

	out.Signature = binary.LittleEndian.Uint32(data[0:4])
	if out.Signature != CBWSignature {
		return false
	}

	out.Tag = binary.LittleEndian.Uint32(data[4:8])
	out.DataTransferLength = binary.LittleEndian.Uint32(data[8:12])
	out.Flags = data[12]
	out.LUN = data[13] & 0x0F      // Only bits 0-3
	out.CBLength = data[14] & 0x1F // Only bits 0-4
	copy(out.CB[:], data[15:31])

	return true
}

// MarshalTo writes the Command Block Wrapper to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (cbw *CommandBlockWrapper) MarshalTo(buf []byte) int {
	if len(buf) < CBWSize {
		return 0
	}

	binary.LittleEndian.PutUint32(buf[0:4], cbw.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], cbw.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], cbw.DataTransferLength)
	buf[12] = cbw.Flags
	buf[13] = cbw.LUN & 0x0F
	buf[14] = cbw.CBLength & 0x1F
	copy(buf[15:31], cbw.CB[:])

	return CBWSize
}

// IsDataIn returns true if the data phase is device-to-host (IN).
func (cbw *CommandBlockWrapper) IsDataIn() bool {
	return cbw.Flags&CBWFlagDataIn != 0
}

// CDB returns the valid portion of the command block.
func (cbw *CommandBlockWrapper) CDB() []byte {
	n := int(cbw.CBLength)
	if n > len(cbw.CB) {
		n = len(cbw.CB)
	}
	return cbw.CB[:n]
}

// CommandStatusWrapper represents a Command Status Wrapper in Bulk-Only Transport.
type CommandStatusWrapper struct {
	Signature   uint32 // Must be CSWSignature (0x53425355)
	Tag         uint32 // Must match the CBW tag
	DataResidue uint32 // Difference between expected and actual data transfer
	Status      uint8  // Command status (CSWStatus*)
}

// ParseCSW parses a Command Status Wrapper from raw bytes.
// Returns false if data is too short or signature is invalid.
func ParseCSW(data []byte, out *CommandStatusWrapper) bool {
	if len(data) < CSWSize {
		return false
	}

	out.Signature = binary.LittleEndian.Uint32(data[0:4])
	if out.Signature != CSWSignature {
		return false
	}

	out.Tag = binary.LittleEndian.Uint32(data[4:8])
	out.DataResidue = binary.LittleEndian.Uint32(data[8:12])
	out.Status = data[12]

	return true
}

// MarshalTo writes the Command Status Wrapper to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (csw *CommandStatusWrapper) MarshalTo(buf []byte) int {
	if len(buf) < CSWSize {
		return 0
	}

	binary.LittleEndian.PutUint32(buf[0:4], csw.Signature)
	binary.LittleEndian.PutUint32(buf[4:8], csw.Tag)
	binary.LittleEndian.PutUint32(buf[8:12], csw.DataResidue)
	buf[12] = csw.Status

	return CSWSize
}

// NewCSW creates a new Command Status Wrapper with the given parameters.
func NewCSW(tag uint32, residue uint32, status uint8) *CommandStatusWrapper {
	return &CommandStatusWrapper{
		Signature:   CSWSignature,
		Tag:         tag,
		DataResidue: residue,
		Status:      status,
	}
}

// Direction selects the data phase direction of a command.
type Direction uint8

// Data phase directions.
const (
	DirNone Direction = iota // no data phase
	DirIn                    // device to host
	DirOut                   // host to device
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	default:
		return "none"
	}
}

// Transport frames SCSI commands as CBW -> data -> CSW exchanges over a
// bulk IN/OUT endpoint pair.
//
// A Transport is safe for use by multiple goroutines, but commands are
// strictly serialized: BOT is half-duplex and overlapping commands would
// break CSW correlation.
type Transport struct {
	conn hal.Conn
	eps  hal.BulkEndpoints

	commandTimeout time.Duration
	dataTimeout    time.Duration

	tag uint32
	mu  sync.Mutex

	cbwBuf [CBWSize]byte
	cswBuf [CSWSize]byte
}

// NewTransport creates a BOT engine over conn using the given endpoints.
func NewTransport(conn hal.Conn, eps hal.BulkEndpoints, opts ...Option) *Transport {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newTransport(conn, eps, cfg)
}

func newTransport(conn hal.Conn, eps hal.BulkEndpoints, cfg Config) *Transport {
	return &Transport{
		conn:           conn,
		eps:            eps,
		commandTimeout: cfg.CommandTimeout,
		dataTimeout:    cfg.DataTimeout,
		tag:            cfg.InitialTag,
	}
}

// Tag returns the tag that the next command will carry.
func (t *Transport) Tag() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tag
}

// Execute runs one SCSI command. data is filled (DirIn) or sent (DirOut)
// during the data phase; an empty data slice means no data phase.
//
// Returns the number of bytes moved in the data phase. A failed data phase
// or a non-zero CSW status triggers an automatic REQUEST SENSE whose result
// is attached to the returned error. Commands are never retried here.
func (t *Transport) Execute(ctx context.Context, dir Direction, lun uint8, cdb []byte, data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.execute(ctx, dir, lun, cdb, data, true)
}

// execute must be called with t.mu held.
func (t *Transport) execute(ctx context.Context, dir Direction, lun uint8, cdb []byte, data []byte, autoSense bool) (int, error) {
	op := opcodeName(cdb)

	if len(cdb) == 0 || len(cdb) > CBWMaxCBLength {
		return 0, &ValidationError{Op: op, Reason: fmt.Sprintf("CDB length %d not in 1..%d", len(cdb), CBWMaxCBLength)}
	}
	if len(data) > 0 && dir == DirNone {
		return 0, &ValidationError{Op: op, Reason: "data buffer given without a data direction"}
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	tag := t.tag
	t.tag++

	cbw := CommandBlockWrapper{
		Signature:          CBWSignature,
		Tag:                tag,
		DataTransferLength: uint32(len(data)),
		LUN:                lun,
		CBLength:           uint8(len(cdb)),
	}
	if dir == DirIn {
		cbw.Flags = CBWFlagDataIn
	}
	copy(cbw.CB[:], cdb)
	cbw.MarshalTo(t.cbwBuf[:])

	pkg.LogDebug(pkg.ComponentBOT, "CBW",
		"op", op,
		"tag", tag,
		"lun", lun,
		"length", len(data),
		"dir", dir)

	// Command phase
	n, err := t.conn.BulkTransfer(ctx, t.eps.Out, t.cbwBuf[:], t.commandTimeout)
	if err != nil || n != CBWSize {
		terr := &TransportError{Op: op, Tag: tag, Phase: PhaseCommand, Err: err}
		if err == nil {
			terr.Detail = fmt.Sprintf("sent %d of %d CBW bytes", n, CBWSize)
		}
		pkg.LogWarn(pkg.ComponentBOT, "CBW transfer failed", "op", op, "tag", tag, "error", terr)
		return 0, terr
	}

	// Data phase
	transferred := 0
	if len(data) > 0 {
		ep := t.eps.Out
		if dir == DirIn {
			ep = t.eps.In
		}
		transferred, err = t.conn.BulkTransfer(ctx, ep, data, t.dataTimeout)
		if err != nil {
			terr := &TransportError{Op: op, Tag: tag, Phase: PhaseData, Err: err}
			if autoSense {
				terr.Sense = t.autoSense(ctx, lun, op)
			}
			pkg.LogWarn(pkg.ComponentBOT, "data phase failed",
				"op", op,
				"tag", tag,
				"length", len(data),
				"error", terr)
			return 0, terr
		}
	}

	// Status phase
	n, err = t.conn.BulkTransfer(ctx, t.eps.In, t.cswBuf[:], t.commandTimeout)
	if err != nil {
		terr := &TransportError{Op: op, Tag: tag, Phase: PhaseStatus, Err: err}
		pkg.LogWarn(pkg.ComponentBOT, "CSW transfer failed", "op", op, "tag", tag, "error", terr)
		return 0, terr
	}
	if n != CSWSize {
		terr := &TransportError{Op: op, Tag: tag, Phase: PhaseStatus,
			Detail: fmt.Sprintf("CSW length %d, want %d", n, CSWSize)}
		pkg.LogWarn(pkg.ComponentBOT, "malformed CSW", "op", op, "tag", tag, "error", terr)
		return 0, terr
	}

	var csw CommandStatusWrapper
	if !ParseCSW(t.cswBuf[:], &csw) {
		terr := &TransportError{Op: op, Tag: tag, Phase: PhaseStatus,
			Detail: fmt.Sprintf("CSW signature 0x%08X, want 0x%08X",
				binary.LittleEndian.Uint32(t.cswBuf[0:4]), uint32(CSWSignature))}
		pkg.LogWarn(pkg.ComponentBOT, "malformed CSW", "op", op, "tag", tag, "error", terr)
		return 0, terr
	}
	if csw.Tag != tag {
		pkg.LogWarn(pkg.ComponentBOT, "CSW tag mismatch",
			"op", op,
			"tag", tag,
			"csw_tag", csw.Tag)
	}

	if csw.Status != CSWStatusGood {
		serr := &DeviceStatusError{Op: op, Tag: tag, Status: csw.Status}
		if autoSense {
			serr.Sense = t.autoSense(ctx, lun, op)
		}
		pkg.LogWarn(pkg.ComponentBOT, "command failed", "op", op, "tag", tag, "error", serr)
		return transferred, serr
	}

	if csw.DataResidue != 0 {
		pkg.LogDebug(pkg.ComponentBOT, "CSW residue",
			"op", op,
			"tag", tag,
			"residue", csw.DataResidue)
	}

	return transferred, nil
}

// autoSense issues REQUEST SENSE after a failed command. It never recurses.
// Returns nil if the sense data could not be retrieved.
func (t *Transport) autoSense(ctx context.Context, lun uint8, op string) *Sense {
	var sense Sense
	cdb := requestSenseCDB()
	if _, err := t.execute(ctx, DirIn, lun, cdb[:], sense[:], false); err != nil {
		pkg.LogWarn(pkg.ComponentBOT, "automatic REQUEST SENSE failed",
			"after", op,
			"error", err)
		return nil
	}
	pkg.LogInfo(pkg.ComponentBOT, "sense data",
		"after", op,
		"key", sense.KeyName(),
		"asc", sense.ASC(),
		"ascq", sense.ASCQ())
	return &sense
}

// opcodeName returns a printable operation name for diagnostics.
func opcodeName(cdb []byte) string {
	if len(cdb) == 0 {
		return "EMPTY CDB"
	}
	switch cdb[0] {
	case SCSIRequestSense:
		return "REQUEST SENSE"
	case SCSIInquiry:
		return "INQUIRY"
	case SCSIReadCapacity10:
		return "READ CAPACITY(10)"
	case SCSIRead10:
		return "READ(10)"
	case SCSIWrite10:
		return "WRITE(10)"
	default:
		return fmt.Sprintf("OPCODE 0x%02X", cdb[0])
	}
}
