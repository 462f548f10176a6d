package msctest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// DefaultEndpoints are the bulk endpoints exposed by a simulated Device.
var DefaultEndpoints = hal.BulkEndpoints{In: 0x81, Out: 0x02}

// Fault selects a failure injected into one command.
type Fault uint8

// Injectable faults.
const (
	FaultNone      Fault = iota
	FaultCommand         // CBW transfer fails
	FaultDataPhase       // data transfer stalls
	FaultStatus          // CSW reports command failed with MEDIUM ERROR sense
	FaultSignature       // CSW carries a corrupt signature
	FaultShortCSW        // CSW is truncated by one byte
)

// String returns the fault name.
func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultCommand:
		return "command"
	case FaultDataPhase:
		return "data phase"
	case FaultStatus:
		return "status"
	case FaultSignature:
		return "signature"
	case FaultShortCSW:
		return "short CSW"
	default:
		return fmt.Sprintf("Fault(%d)", f)
	}
}

// Hook observes or rewrites one sector. Read hooks run after the sector
// is loaded from storage and may modify it in place; write hooks receive a
// copy of the sector after it was stored. Hooks run with the device lock
// held and must not call back into the Device.
type Hook func(lba uint32, sector []byte)

// Command records one CBW received by the Device.
type Command struct {
	Tag    uint32
	LUN    uint8
	Opcode uint8
	LBA    uint32 // READ(10)/WRITE(10) only
	Count  uint16 // READ(10)/WRITE(10) only
	Length uint32 // CBW data transfer length
	In     bool
}

type state uint8

const (
	stateIdle state = iota
	stateDataIn
	stateDataOut
	stateStatus
)

// Device simulates a Bulk-Only SCSI disk with one LUN. It implements
// hal.Conn so the host stack can run against it unchanged.
type Device struct {
	storage Storage
	eps     hal.BulkEndpoints
	inquiry [msc.InquiryStandardSize]byte

	mu      sync.Mutex
	state   state
	cbw     msc.CommandBlockWrapper
	fault   Fault
	pending []byte
	status  uint8
	residue uint32

	// Sense data for the next REQUEST SENSE
	senseKey uint8
	asc      uint8
	ascq     uint8

	nextFault   Fault
	readFaults  map[uint32]Fault
	writeFaults map[uint32]Fault
	readHooks   map[uint32]Hook
	writeHooks  map[uint32]Hook

	commands []Command
	claimed  bool
	claims   int
	releases int
}

// New creates a simulated device backed by storage.
func New(storage Storage) *Device {
	d := &Device{
		storage:     storage,
		eps:         DefaultEndpoints,
		readFaults:  make(map[uint32]Fault),
		writeFaults: make(map[uint32]Fault),
		readHooks:   make(map[uint32]Hook),
		writeHooks:  make(map[uint32]Hook),
	}
	d.SetIdentity("LOSPSIM", "Simulated Disk", "1.0")
	return d
}

// Endpoints returns the bulk endpoints of the device.
func (d *Device) Endpoints() hal.BulkEndpoints { return d.eps }

// Storage returns the backing storage.
func (d *Device) Storage() Storage { return d.storage }

// SetIdentity sets the strings returned by INQUIRY.
func (d *Device) SetIdentity(vendor, product, revision string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf [msc.InquiryStandardSize]byte
	buf[0] = 0x00 // Direct access block device
	buf[1] = 0x80 // Removable
	buf[2] = 0x04 // SPC-2
	buf[3] = 0x02 // Response data format
	buf[4] = msc.InquiryStandardSize - 5
	padCopy(buf[8:16], vendor)
	padCopy(buf[16:32], product)
	padCopy(buf[32:36], revision)
	d.inquiry = buf
}

func padCopy(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

// FailRead injects f into every READ(10) covering lba.
func (d *Device) FailRead(lba uint32, f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readFaults[lba] = f
}

// FailWrite injects f into every WRITE(10) covering lba.
func (d *Device) FailWrite(lba uint32, f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeFaults[lba] = f
}

// FailNext injects f into the next command other than REQUEST SENSE.
func (d *Device) FailNext(f Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextFault = f
}

// ClearFaults removes every injected fault.
func (d *Device) ClearFaults() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextFault = FaultNone
	clear(d.readFaults)
	clear(d.writeFaults)
}

// OnRead installs a read hook for lba. A nil hook removes it.
func (d *Device) OnRead(lba uint32, h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.readHooks, lba)
		return
	}
	d.readHooks[lba] = h
}

// OnWrite installs a write hook for lba. A nil hook removes it.
func (d *Device) OnWrite(lba uint32, h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h == nil {
		delete(d.writeHooks, lba)
		return
	}
	d.writeHooks[lba] = h
}

// Commands returns a copy of every command received so far.
func (d *Device) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Command, len(d.commands))
	copy(out, d.commands)
	return out
}

// CountOpcode returns how many commands with opcode were received.
func (d *Device) CountOpcode(opcode uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.commands {
		if c.Opcode == opcode {
			n++
		}
	}
	return n
}

// ResetCommands clears the command record.
func (d *Device) ResetCommands() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands = d.commands[:0]
}

// Claims returns the number of successful ClaimInterface calls.
func (d *Device) Claims() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claims
}

// Releases returns the number of successful ReleaseInterface calls.
func (d *Device) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

// Claimed reports whether the interface is currently claimed.
func (d *Device) Claimed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claimed
}

// ClaimInterface implements hal.Conn.
func (d *Device) ClaimInterface(iface uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if iface != 0 {
		return fmt.Errorf("interface %d: %w", iface, pkg.ErrInvalidParameter)
	}
	if d.claimed {
		return fmt.Errorf("interface %d: %w", iface, pkg.ErrBusy)
	}
	d.claimed = true
	d.claims++
	return nil
}

// ReleaseInterface implements hal.Conn.
func (d *Device) ReleaseInterface(iface uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.claimed {
		return fmt.Errorf("interface %d not claimed: %w", iface, pkg.ErrInvalidParameter)
	}
	d.claimed = false
	d.releases++
	return nil
}

// BulkTransfer implements hal.Conn. OUT transfers carry a CBW or WRITE
// data; IN transfers return command data or the CSW.
func (d *Device) BulkTransfer(ctx context.Context, endpoint uint8, data []byte, _ time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch endpoint {
	case d.eps.Out:
		if d.state == stateDataOut {
			return d.receiveData(data)
		}
		// A new CBW resets the state machine even if the host skipped the
		// CSW of a failed data phase.
		return d.receiveCBW(data)

	case d.eps.In:
		switch d.state {
		case stateDataIn:
			return d.sendData(data)
		case stateStatus:
			return d.sendCSW(data)
		default:
			return 0, pkg.ErrStall
		}

	default:
		return 0, pkg.ErrInvalidEndpoint
	}
}

func (d *Device) receiveCBW(data []byte) (int, error) {
	var cbw msc.CommandBlockWrapper
	if len(data) != msc.CBWSize || !msc.ParseCBW(data, &cbw) {
		d.state = stateIdle
		pkg.LogWarn(pkg.ComponentSim, "invalid CBW", "length", len(data))
		return 0, pkg.ErrStall
	}

	d.cbw = cbw
	d.pending = nil
	d.status = msc.CSWStatusGood
	d.residue = 0

	cmd := Command{
		Tag:    cbw.Tag,
		LUN:    cbw.LUN,
		Opcode: cbw.CB[0],
		Length: cbw.DataTransferLength,
		In:     cbw.IsDataIn(),
	}
	if cmd.Opcode == msc.SCSIRead10 || cmd.Opcode == msc.SCSIWrite10 {
		cmd.LBA, cmd.Count, _ = msc.ParseRW10(cbw.CDB())
	}
	d.commands = append(d.commands, cmd)
	d.fault = d.faultFor(cmd)

	pkg.LogDebug(pkg.ComponentSim, "CBW",
		"tag", cbw.Tag,
		"opcode", cmd.Opcode,
		"length", cbw.DataTransferLength,
		"fault", d.fault)

	if d.fault == FaultCommand {
		d.state = stateIdle
		return 0, pkg.ErrTimeout
	}

	d.handleSCSICommand(cmd)

	switch {
	case cbw.DataTransferLength == 0:
		d.state = stateStatus
	case cbw.IsDataIn():
		d.state = stateDataIn
	default:
		d.state = stateDataOut
	}
	return len(data), nil
}

// faultFor consumes the one-shot fault or looks up a per-LBA fault.
func (d *Device) faultFor(cmd Command) Fault {
	if cmd.Opcode == msc.SCSIRequestSense {
		return FaultNone
	}
	if f := d.nextFault; f != FaultNone {
		d.nextFault = FaultNone
		return f
	}
	var faults map[uint32]Fault
	switch cmd.Opcode {
	case msc.SCSIRead10:
		faults = d.readFaults
	case msc.SCSIWrite10:
		faults = d.writeFaults
	default:
		return FaultNone
	}
	for i := uint32(0); i < uint32(cmd.Count); i++ {
		if f, ok := faults[cmd.LBA+i]; ok {
			return f
		}
	}
	return FaultNone
}

func (d *Device) handleSCSICommand(cmd Command) {
	if cmd.LUN != 0 {
		d.fail(msc.SenseIllegalRequest, msc.ASCInvalidFieldInCDB, 0)
		return
	}
	// WRITE(10) fails once its data has arrived
	if d.fault == FaultStatus && cmd.Opcode != msc.SCSIWrite10 {
		d.fail(msc.SenseMediumError, msc.ASCUnrecoveredRead, 0)
		return
	}

	switch cmd.Opcode {
	case msc.SCSIRequestSense:
		d.handleRequestSense()
	case msc.SCSIInquiry:
		d.handleInquiry()
	case msc.SCSIReadCapacity10:
		d.handleReadCapacity10()
	case msc.SCSIRead10:
		d.handleRead10(cmd)
	case msc.SCSIWrite10:
		d.handleWrite10(cmd)
	default:
		pkg.LogWarn(pkg.ComponentSim, "unsupported SCSI command", "opcode", cmd.Opcode)
		d.fail(msc.SenseIllegalRequest, msc.ASCInvalidCommand, 0)
	}
}

// respond queues IN data truncated to the host's allocation.
func (d *Device) respond(resp []byte) {
	n := min(len(resp), int(d.cbw.DataTransferLength))
	d.pending = resp[:n]
	d.residue = d.cbw.DataTransferLength - uint32(n)
}

// fail marks the current command failed and records sense.
func (d *Device) fail(key, asc, ascq uint8) {
	d.status = msc.CSWStatusFailed
	d.residue = d.cbw.DataTransferLength
	d.pending = nil
	d.setSense(key, asc, ascq)
}

func (d *Device) setSense(key, asc, ascq uint8) {
	d.senseKey = key
	d.asc = asc
	d.ascq = ascq
}

func (d *Device) handleRequestSense() {
	var sense msc.Sense
	sense[0] = 0x70 // Current error, fixed format
	sense[2] = d.senseKey
	sense[7] = msc.SenseDataSize - 8
	sense[12] = d.asc
	sense[13] = d.ascq
	d.respond(sense[:])

	// Clear sense data after REQUEST SENSE
	d.setSense(msc.SenseNoSense, msc.ASCNoAdditionalInfo, 0)
}

func (d *Device) handleInquiry() {
	resp := d.inquiry
	d.respond(resp[:])
}

func (d *Device) handleReadCapacity10() {
	blockCount := d.storage.BlockCount()
	c := msc.Capacity{LastLBA: uint32(blockCount - 1), BlockSize: d.storage.BlockSize()}
	if blockCount > 0xFFFFFFFF {
		c.LastLBA = 0xFFFFFFFF
	}
	var buf [msc.ReadCapacity10Size]byte
	c.MarshalTo(buf[:])
	d.respond(buf[:])
}

func (d *Device) inRange(cmd Command) bool {
	return uint64(cmd.LBA)+uint64(cmd.Count) <= d.storage.BlockCount()
}

func (d *Device) handleRead10(cmd Command) {
	if !d.inRange(cmd) {
		d.fail(msc.SenseIllegalRequest, msc.ASCLBAOutOfRange, 0)
		return
	}

	bs := d.storage.BlockSize()
	buf := make([]byte, uint32(cmd.Count)*bs)
	if err := d.storage.ReadAt(buf, cmd.LBA); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "storage read failed", "lba", cmd.LBA, "error", err)
		d.fail(msc.SenseMediumError, msc.ASCUnrecoveredRead, 0)
		return
	}
	for i := uint32(0); i < uint32(cmd.Count); i++ {
		if h, ok := d.readHooks[cmd.LBA+i]; ok {
			h(cmd.LBA+i, buf[i*bs:(i+1)*bs])
		}
	}
	d.respond(buf)
}

// handleWrite10 validates the command; the data is stored when it arrives.
func (d *Device) handleWrite10(cmd Command) {
	if !d.inRange(cmd) {
		d.fail(msc.SenseIllegalRequest, msc.ASCLBAOutOfRange, 0)
		return
	}
	if d.storage.WriteProtected() {
		d.fail(msc.SenseDataProtect, msc.ASCWriteProtected, 0)
		return
	}
	d.residue = d.cbw.DataTransferLength
}

func (d *Device) sendData(data []byte) (int, error) {
	if d.fault == FaultDataPhase {
		d.state = stateIdle
		d.setSense(msc.SenseMediumError, msc.ASCUnrecoveredRead, 0)
		return 0, pkg.ErrStall
	}
	n := copy(data, d.pending)
	d.state = stateStatus
	return n, nil
}

func (d *Device) receiveData(data []byte) (int, error) {
	cmd := d.commands[len(d.commands)-1]

	if d.fault == FaultDataPhase {
		d.state = stateIdle
		d.setSense(msc.SenseMediumError, msc.ASCWriteFault, 0)
		return 0, pkg.ErrStall
	}

	n := min(len(data), int(d.cbw.DataTransferLength))
	d.state = stateStatus

	if d.status != msc.CSWStatusGood || cmd.Opcode != msc.SCSIWrite10 {
		// Data accepted and discarded
		return n, nil
	}
	if d.fault == FaultStatus {
		d.fail(msc.SenseMediumError, msc.ASCWriteFault, 0)
		return n, nil
	}

	bs := d.storage.BlockSize()
	want := int(uint32(cmd.Count) * bs)
	if n < want {
		d.fail(msc.SenseIllegalRequest, msc.ASCInvalidFieldInCDB, 0)
		return n, nil
	}
	if err := d.storage.WriteAt(data[:want], cmd.LBA); err != nil {
		pkg.LogWarn(pkg.ComponentSim, "storage write failed", "lba", cmd.LBA, "error", err)
		d.fail(msc.SenseMediumError, msc.ASCWriteFault, 0)
		return n, nil
	}
	d.residue = d.cbw.DataTransferLength - uint32(n)

	for i := uint32(0); i < uint32(cmd.Count); i++ {
		if h, ok := d.writeHooks[cmd.LBA+i]; ok {
			sector := make([]byte, bs)
			copy(sector, data[i*bs:(i+1)*bs])
			h(cmd.LBA+i, sector)
		}
	}
	return n, nil
}

func (d *Device) sendCSW(data []byte) (int, error) {
	var buf [msc.CSWSize]byte
	msc.NewCSW(d.cbw.Tag, d.residue, d.status).MarshalTo(buf[:])

	size := msc.CSWSize
	switch d.fault {
	case FaultSignature:
		buf[0] ^= 0xFF
	case FaultShortCSW:
		size--
	}

	d.state = stateIdle
	return copy(data, buf[:size]), nil
}
