package pkg

import "errors"

// Transport-level errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrTimeout indicates a transfer timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrOverrun indicates a data overrun condition.
	ErrOverrun = errors.New("data overrun")

	// ErrNoDevice indicates the device is not present.
	ErrNoDevice = errors.New("device not present")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrClosed indicates use of a released connection or session.
	ErrClosed = errors.New("connection closed")
)

// Error kinds surfaced by the tunnel stack. Typed errors in the msc and losp
// packages report one of these through errors.Is.
var (
	// ErrTransport indicates a failed transfer or a malformed CBW/CSW
	// exchange. It is fatal to the current command.
	ErrTransport = errors.New("transport error")

	// ErrDeviceStatus indicates the device completed a command with a
	// non-zero CSW status.
	ErrDeviceStatus = errors.New("device status error")

	// ErrProtocol indicates the tunnel peer answered with something other
	// than a matching OK answer.
	ErrProtocol = errors.New("protocol error")

	// ErrInvalidParameter indicates a request rejected before any transfer.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrPartialWrite indicates a multi-sector update that stopped midway.
	// Sectors before the failing one are already committed.
	ErrPartialWrite = errors.New("partial write")

	// ErrBufferTooSmall indicates the provided or returned buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")
)

// TransferStatus classifies how a bulk transfer ended. HAL backends map
// their native completion codes onto it so callers can test the result with
// errors.Is against the sentinels above.
type TransferStatus int

const (
	TransferStatusSuccess TransferStatus = iota
	TransferStatusError
	TransferStatusStall
	TransferStatusTimeout
	TransferStatusCancelled
	TransferStatusOverrun
	TransferStatusNoDevice
)

var transferStatusNames = [...]string{
	TransferStatusSuccess:   "success",
	TransferStatusError:     "error",
	TransferStatusStall:     "stall",
	TransferStatusTimeout:   "timeout",
	TransferStatusCancelled: "cancelled",
	TransferStatusOverrun:   "overrun",
	TransferStatusNoDevice:  "no device",
}

func (s TransferStatus) String() string {
	if s < 0 || int(s) >= len(transferStatusNames) {
		return "unknown"
	}
	return transferStatusNames[s]
}

// Error returns the sentinel for s, nil for TransferStatusSuccess and
// ErrTransport for anything unclassified.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCancelled:
		return ErrCancelled
	case TransferStatusOverrun:
		return ErrOverrun
	case TransferStatusNoDevice:
		return ErrNoDevice
	default:
		return ErrTransport
	}
}
