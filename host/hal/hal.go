package hal

import (
	"context"
	"time"
)

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
	SpeedSuper                // SuperSpeed (5 Gbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	case SpeedSuper:
		return "SuperSpeed"
	default:
		return "Unknown"
	}
}

// TransferType indicates the type of USB transfer.
type TransferType uint8

// Transfer type constants.
const (
	TransferControl     TransferType = 0 // Control transfer
	TransferIsochronous TransferType = 1 // Isochronous transfer
	TransferBulk        TransferType = 2 // Bulk transfer
	TransferInterrupt   TransferType = 3 // Interrupt transfer
)

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// EndpointDirIn is the direction bit of an IN (device-to-host) endpoint address.
const EndpointDirIn = 0x80

// EndpointDescriptor describes an endpoint discovered on an interface.
type EndpointDescriptor struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval for interrupt/isochronous
}

// Number returns the endpoint number (0-15).
func (e *EndpointDescriptor) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointDescriptor) IsIn() bool {
	return e.Address&EndpointDirIn != 0
}

// TransferType returns the transfer type.
func (e *EndpointDescriptor) TransferType() TransferType {
	return TransferType(e.Attributes & 0x03)
}

// IsEndpointIn reports whether an endpoint address has the IN direction bit.
func IsEndpointIn(address uint8) bool {
	return address&EndpointDirIn != 0
}

// BulkEndpoints identifies the bulk pipe pair of a Bulk-Only interface.
type BulkEndpoints struct {
	In  uint8 // IN endpoint address (direction bit set)
	Out uint8 // OUT endpoint address (direction bit clear)
}

// Valid reports whether the pair has the expected direction bits.
func (b BulkEndpoints) Valid() bool {
	return IsEndpointIn(b.In) && !IsEndpointIn(b.Out) && b.In&0x0F != 0 && b.Out&0x0F != 0
}

// SelectBulkEndpoints picks the first bulk IN and bulk OUT endpoints from eps.
// Returns false if either direction is missing.
func SelectBulkEndpoints(eps []EndpointDescriptor) (BulkEndpoints, bool) {
	var b BulkEndpoints
	var haveIn, haveOut bool
	for i := range eps {
		if eps[i].TransferType() != TransferBulk {
			continue
		}
		if eps[i].IsIn() && !haveIn {
			b.In, haveIn = eps[i].Address, true
		} else if !eps[i].IsIn() && !haveOut {
			b.Out, haveOut = eps[i].Address, true
		}
	}
	return b, haveIn && haveOut
}

// Conn is an opened USB device connection, as handed over by the
// enumeration/permission layer.
//
// The tunnel stack only needs synchronous bulk transfers and interface
// claiming. Implementations must block in BulkTransfer until the transfer
// completes, fails or the timeout elapses; a transfer in flight is never
// aborted midway.
type Conn interface {
	// BulkTransfer performs a bulk transfer to/from an endpoint.
	// For IN endpoints, data is filled with received data.
	// For OUT endpoints, data contains the data to send.
	// Returns the number of bytes transferred.
	BulkTransfer(ctx context.Context, endpoint uint8, data []byte, timeout time.Duration) (int, error)

	// ClaimInterface claims exclusive access to an interface.
	// For HALs that require kernel driver detachment (e.g., Linux usbfs),
	// this should detach any existing driver before claiming.
	ClaimInterface(iface uint8) error

	// ReleaseInterface releases a previously claimed interface.
	ReleaseInterface(iface uint8) error
}
