package losp

// Record layout.
const (
	CommandHeaderSize = 16     // code, offset, in length, out length, reserved
	AnswerHeaderSize  = 16     // code, return, out length, reserved
	MaxPayload        = 0xFFFF // largest length the u16 length fields carry
)

// Tunnel defaults.
const (
	DefaultCommandLBA  = 0x0A // sector written with each command record
	DefaultAnswerLBA   = 0x0B // sector polled for the answer record
	DefaultMaxAttempts = 222  // answer poll ceiling
)

// CommandCode identifies a LOSP command.
type CommandCode uint8

// Command codes. The numeric values of the variants are internal; use
// Wire and ParseCommandCode to convert.
const (
	CmdUnknown CommandCode = iota
	CmdNop
	CmdGetVersion
	CmdReadData
	CmdWriteData
	CmdGetPhaseBuffer
	CmdResetPhaseBuffer
)

var commandWire = [...]uint32{
	CmdNop:              0x00,
	CmdGetVersion:       0x01,
	CmdReadData:         0x10,
	CmdWriteData:        0x11,
	CmdGetPhaseBuffer:   0x20,
	CmdResetPhaseBuffer: 0x21,
}

// ParseCommandCode maps a wire value to its variant. Unrecognized values
// map to CmdUnknown.
func ParseCommandCode(v uint32) CommandCode {
	for c := CmdNop; c <= CmdResetPhaseBuffer; c++ {
		if commandWire[c] == v {
			return c
		}
	}
	return CmdUnknown
}

// Wire returns the wire value of c. CmdUnknown has no wire value and
// encodes as 0xFFFFFFFF.
func (c CommandCode) Wire() uint32 {
	if c == CmdUnknown || int(c) >= len(commandWire) {
		return 0xFFFFFFFF
	}
	return commandWire[c]
}

// String returns the command name.
func (c CommandCode) String() string {
	switch c {
	case CmdNop:
		return "NOP"
	case CmdGetVersion:
		return "GET_VERSION"
	case CmdReadData:
		return "READ_DATA"
	case CmdWriteData:
		return "WRITE_DATA"
	case CmdGetPhaseBuffer:
		return "GET_PHASE_BUFFER"
	case CmdResetPhaseBuffer:
		return "RESET_PHASE_BUFFER"
	default:
		return "UNKNOWN"
	}
}

// ReturnCode is the status carried by an answer record.
type ReturnCode uint8

// Return codes.
const (
	ReturnUnknown ReturnCode = iota
	ReturnOK
	ReturnBusy
	ReturnError
	ReturnNotData
	ReturnBadParameter
	ReturnLocked
)

// ParseReturnCode maps a wire value to its variant. Unrecognized values
// map to ReturnUnknown.
func ParseReturnCode(v uint32) ReturnCode {
	if v <= 5 {
		return ReturnCode(v + 1)
	}
	return ReturnUnknown
}

// Wire returns the wire value of r. ReturnUnknown encodes as 0xFFFFFFFF.
func (r ReturnCode) Wire() uint32 {
	if r == ReturnUnknown || r > ReturnLocked {
		return 0xFFFFFFFF
	}
	return uint32(r - 1)
}

// String returns the return code name.
func (r ReturnCode) String() string {
	switch r {
	case ReturnOK:
		return "OK"
	case ReturnBusy:
		return "BUSY"
	case ReturnError:
		return "ERROR"
	case ReturnNotData:
		return "NOT_DATA"
	case ReturnBadParameter:
		return "BAD_PARAMETER"
	case ReturnLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

// StructType tags the layout of a telemetry record.
type StructType uint8

// Telemetry record layouts.
const (
	StructUnknown StructType = iota
	StructPhaseV1
	StructPhase
)

// ParseStructType maps a wire value to its variant.
func ParseStructType(v uint16) StructType {
	switch v {
	case 0x0001:
		return StructPhaseV1
	case 0x0002:
		return StructPhase
	default:
		return StructUnknown
	}
}

// Wire returns the wire value of s.
func (s StructType) Wire() uint16 {
	switch s {
	case StructPhaseV1:
		return 0x0001
	case StructPhase:
		return 0x0002
	default:
		return 0xFFFF
	}
}

// String returns the layout name.
func (s StructType) String() string {
	switch s {
	case StructPhaseV1:
		return "PHASE_V1"
	case StructPhase:
		return "PHASE"
	default:
		return "UNKNOWN"
	}
}
