package msc

import "time"

// USB Mass Storage Class codes.
const (
	ClassMSC         = 0x08 // Mass Storage Class
	SubclassSCSI     = 0x06 // SCSI Transparent Command Set
	ProtocolBulkOnly = 0x50 // Bulk-Only Transport (BOT)
)

// Command Block Wrapper (CBW) constants.
const (
	CBWSignature   = 0x43425355 // "USBC" signature
	CBWSize        = 31         // Fixed CBW size in bytes
	CBWMaxCBLength = 16         // Maximum command block length
	CBWFlagDataOut = 0x00       // Data transfer: host to device
	CBWFlagDataIn  = 0x80       // Data transfer: device to host
)

// Command Status Wrapper (CSW) constants.
const (
	CSWSignature        = 0x53425355 // "USBS" signature
	CSWSize             = 13         // Fixed CSW size in bytes
	CSWStatusGood       = 0x00       // Command passed
	CSWStatusFailed     = 0x01       // Command failed
	CSWStatusPhaseError = 0x02       // Phase error occurred
)

// SCSI operation codes used by the tunnel.
const (
	SCSIRequestSense   = 0x03 // Request sense data
	SCSIInquiry        = 0x12 // Get device information
	SCSIReadCapacity10 = 0x25 // Read capacity (10-byte)
	SCSIRead10         = 0x28 // Read blocks (10-byte)
	SCSIWrite10        = 0x2A // Write blocks (10-byte)
)

// CDB lengths.
const (
	CDB6Length  = 6
	CDB10Length = 10
)

// Response sizes.
const (
	InquiryStandardSize = 36 // Standard INQUIRY data length
	ReadCapacity10Size  = 8  // READ CAPACITY (10) response length
	SenseDataSize       = 18 // Fixed-format sense data length
)

// READ(10)/WRITE(10) block count limits.
const (
	MinTransferBlocks = 1
	MaxTransferBlocks = 255
)

// SCSI sense keys.
const (
	SenseNoSense        = 0x00 // No error
	SenseRecoveredError = 0x01 // Recovered error
	SenseNotReady       = 0x02 // Device not ready
	SenseMediumError    = 0x03 // Medium error
	SenseHardwareError  = 0x04 // Hardware error
	SenseIllegalRequest = 0x05 // Illegal request
	SenseUnitAttention  = 0x06 // Unit attention
	SenseDataProtect    = 0x07 // Data protect
	SenseBlankCheck     = 0x08 // Blank check
	SenseAbortedCommand = 0x0B // Aborted command
)

// Additional Sense Codes (ASC).
const (
	ASCNoAdditionalInfo  = 0x00 // No additional sense information
	ASCWriteFault        = 0x03 // Peripheral device write fault
	ASCUnrecoveredRead   = 0x11 // Unrecovered read error
	ASCInvalidCommand    = 0x20 // Invalid command operation code
	ASCLBAOutOfRange     = 0x21 // Logical block address out of range
	ASCInvalidFieldInCDB = 0x24 // Invalid field in CDB
	ASCWriteProtected    = 0x27 // Write protected
	ASCMediumNotPresent  = 0x3A // Medium not present
)

// Default transfer timeouts.
const (
	DefaultCommandTimeout = 2000 * time.Millisecond // CBW and CSW phases
	DefaultDataTimeout    = 5000 * time.Millisecond // Data phase
)

// DefaultBlockSize is the block size assumed by simulators (512 bytes for most disks).
const DefaultBlockSize = 512
