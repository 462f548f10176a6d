package losp

import (
	"encoding/binary"
	"fmt"
)

// cursor walks a little-endian record at fixed offsets. Callers check
// bounds before decoding; the cursor itself does not.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) u16() uint16 {
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v
}

func (c *cursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *cursor) putU16(v uint16) {
	binary.LittleEndian.PutUint16(c.buf[c.off:], v)
	c.off += 2
}

func (c *cursor) putU32(v uint32) {
	binary.LittleEndian.PutUint32(c.buf[c.off:], v)
	c.off += 4
}

// zero clears n bytes (reserved fields).
func (c *cursor) zero(n int) {
	clear(c.buf[c.off : c.off+n])
	c.off += n
}

func (c *cursor) bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	copy(b, c.buf[c.off:c.off+n])
	c.off += n
	return b
}

func (c *cursor) putBytes(b []byte) {
	c.off += copy(c.buf[c.off:], b)
}

// Command is a LOSP command record.
//
// Wire layout (little-endian):
//
//	0  code    u32
//	4  offset  u32
//	8  in len  u16 (payload length)
//	10 out len u16 (answer payload requested)
//	12 reserved [4]
//	16 payload
type Command struct {
	Code    CommandCode
	RawCode uint32 // wire value when Code is CmdUnknown
	Offset  uint32
	OutLen  uint16
	Payload []byte
}

// Size returns the encoded length of the record without padding.
func (c *Command) Size() int { return CommandHeaderSize + len(c.Payload) }

// MarshalTo writes the record to buf and zero-fills the remainder.
// Returns the record length, or 0 if buf is too small.
func (c *Command) MarshalTo(buf []byte) int {
	if len(buf) < c.Size() || len(c.Payload) > MaxPayload {
		return 0
	}
	w := cursor{buf: buf}
	w.putU32(wireCommand(c.Code, c.RawCode))
	w.putU32(c.Offset)
	w.putU16(uint16(len(c.Payload)))
	w.putU16(c.OutLen)
	w.zero(4)
	w.putBytes(c.Payload)
	clear(buf[w.off:])
	return c.Size()
}

// Encode returns the record padded to one block of blockSize bytes.
func (c *Command) Encode(blockSize int) ([]byte, error) {
	if limit := blockSize - CommandHeaderSize; len(c.Payload) > limit {
		return nil, fmt.Errorf("%s payload %d bytes exceeds %d: %w", c.Code, len(c.Payload), limit, ErrMalformed)
	}
	buf := make([]byte, blockSize)
	if c.MarshalTo(buf) == 0 {
		return nil, fmt.Errorf("%s payload %d bytes exceeds %d: %w", c.Code, len(c.Payload), MaxPayload, ErrMalformed)
	}
	return buf, nil
}

// ParseCommand decodes a command record.
// Returns false if data is shorter than the header or the declared
// payload.
func ParseCommand(data []byte, out *Command) bool {
	if len(data) < CommandHeaderSize {
		return false
	}
	r := cursor{buf: data}
	out.Code, out.RawCode = decodeCommand(r.u32())
	out.Offset = r.u32()
	inLen := int(r.u16())
	out.OutLen = r.u16()
	r.off += 4
	if inLen > len(data)-CommandHeaderSize {
		return false
	}
	out.Payload = r.bytes(inLen)
	return true
}

// Answer is a LOSP answer record.
//
// Wire layout (little-endian):
//
//	0  code    u32 (echo of the command code)
//	4  return  u32
//	8  out len u16
//	10 reserved [6]
//	16 payload
type Answer struct {
	Code      CommandCode
	RawCode   uint32 // wire value when Code is CmdUnknown
	Return    ReturnCode
	RawReturn uint32 // wire value when Return is ReturnUnknown
	Payload   []byte
}

// Size returns the encoded length of the record without padding.
func (a *Answer) Size() int { return AnswerHeaderSize + len(a.Payload) }

// MarshalTo writes the record to buf and zero-fills the remainder.
// Returns the record length, or 0 if buf is too small.
func (a *Answer) MarshalTo(buf []byte) int {
	if len(buf) < a.Size() || len(a.Payload) > 0xFFFF {
		return 0
	}
	w := cursor{buf: buf}
	w.putU32(wireCommand(a.Code, a.RawCode))
	ret := a.Return.Wire()
	if a.Return == ReturnUnknown {
		ret = a.RawReturn
	}
	w.putU32(ret)
	w.putU16(uint16(len(a.Payload)))
	w.zero(6)
	w.putBytes(a.Payload)
	clear(buf[w.off:])
	return a.Size()
}

// ParseAnswer decodes an answer record from one sector. The declared
// output length must fit in the sector.
func ParseAnswer(data []byte, out *Answer) error {
	if len(data) < AnswerHeaderSize {
		return fmt.Errorf("answer of %d bytes shorter than header: %w", len(data), ErrMalformed)
	}
	r := cursor{buf: data}
	out.Code, out.RawCode = decodeCommand(r.u32())
	out.RawReturn = 0
	if out.Return = ParseReturnCode(r.u32()); out.Return == ReturnUnknown {
		out.RawReturn = binary.LittleEndian.Uint32(data[4:8])
	}
	outLen := int(r.u16())
	r.off += 6
	if limit := len(data) - AnswerHeaderSize; outLen > limit {
		return fmt.Errorf("answer length %d exceeds %d: %w", outLen, limit, ErrMalformed)
	}
	out.Payload = r.bytes(outLen)
	return nil
}

// decodeCommand keeps the raw value only for unrecognized codes.
func decodeCommand(v uint32) (CommandCode, uint32) {
	c := ParseCommandCode(v)
	if c != CmdUnknown {
		return c, 0
	}
	return c, v
}

func wireCommand(c CommandCode, raw uint32) uint32 {
	if c == CmdUnknown {
		return raw
	}
	return c.Wire()
}
