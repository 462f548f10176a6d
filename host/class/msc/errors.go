package msc

import (
	"fmt"

	"github.com/ardnew/lospdisk/pkg"
)

// Phase identifies the BOT phase in which a transport failure occurred.
type Phase uint8

// BOT phases.
const (
	PhaseCommand Phase = iota // CBW sent on bulk OUT
	PhaseData                 // optional data transfer
	PhaseStatus               // CSW read on bulk IN
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCommand:
		return "command"
	case PhaseData:
		return "data"
	case PhaseStatus:
		return "status"
	default:
		return "unknown"
	}
}

// TransportError indicates a failed transfer or a malformed CSW.
// Sense is populated when the automatic REQUEST SENSE after a failed data
// phase succeeded.
type TransportError struct {
	Op     string
	Tag    uint32
	Phase  Phase
	Detail string
	Sense  *Sense
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: transport error in %s phase (tag %d)", e.Op, e.Phase, e.Tag)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Sense != nil {
		msg += " [sense " + e.Sense.String() + "]"
	}
	return msg
}

// Unwrap returns the underlying transfer error, if any.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is pkg.ErrTransport.
func (e *TransportError) Is(target error) bool { return target == pkg.ErrTransport }

// DeviceStatusError indicates a command completed with a non-zero CSW status.
type DeviceStatusError struct {
	Op     string
	Tag    uint32
	Status uint8
	Sense  *Sense // nil if REQUEST SENSE itself failed
}

func (e *DeviceStatusError) Error() string {
	msg := fmt.Sprintf("%s: device status 0x%02X (tag %d)", e.Op, e.Status, e.Tag)
	if e.Sense != nil {
		msg += " [sense " + e.Sense.String() + "]"
	} else {
		msg += " [sense unavailable]"
	}
	return msg
}

// Is reports whether target is pkg.ErrDeviceStatus.
func (e *DeviceStatusError) Is(target error) bool { return target == pkg.ErrDeviceStatus }

// ValidationError indicates a request rejected before any transfer.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid request: %s", e.Op, e.Reason)
}

// Is reports whether target is pkg.ErrInvalidParameter.
func (e *ValidationError) Is(target error) bool { return target == pkg.ErrInvalidParameter }

// PartialWriteError indicates a multi-sector overwrite that stopped at a
// failing sector. Sectors LBA..LBA+Index-1 are already updated on the device
// and sectors from LBA+Index on are untouched; no rollback is attempted.
type PartialWriteError struct {
	LBA     uint32 // first sector of the span
	Index   int    // zero-based index of the failing sector within the span
	Sectors int    // total sectors in the span
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("overwrite lba=%d: failed at sector %d (index %d of %d, %d committed): %v",
		e.LBA, e.FailedLBA(), e.Index, e.Sectors, e.Index, e.Err)
}

// FailedLBA returns the address of the sector that failed.
func (e *PartialWriteError) FailedLBA() uint32 { return e.LBA + uint32(e.Index) }

// Unwrap returns the cause of the failure.
func (e *PartialWriteError) Unwrap() error { return e.Err }

// Is reports whether target is pkg.ErrPartialWrite.
func (e *PartialWriteError) Is(target error) bool { return target == pkg.ErrPartialWrite }
