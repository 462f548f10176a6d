// Package losp implements the LOSP request/response tunnel to the
// instrument that shares a USB mass storage device with its host.
//
// The tunnel uses two reserved sectors. A command record, padded to one
// block, is written to the command sector with WRITE (10); the answer
// record is then read from the answer sector with READ (10), once
// unconditionally and again while the instrument reports BUSY, up to an
// attempt ceiling. The answer must echo the command code and carry OK.
//
// Records are little-endian with fixed offsets:
//
//	command: code u32 | offset u32 | in len u16 | out len u16 | rsvd [4] | payload
//	answer:  code u32 | return u32 | out len u16 | rsvd [6] | payload
//
// Command codes, return codes and telemetry layouts are closed sets; wire
// values outside them decode to an explicit Unknown variant.
//
// # Usage Example
//
//	client := losp.New(disk)
//	v, err := client.Version(ctx)
//	pb, err := client.PhaseBuffer(ctx)
package losp
