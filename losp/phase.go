package losp

import "fmt"

// Edge is one timer-edge sample: the high-resolution tick counter and the
// reference counter latched at the same edge.
type Edge struct {
	Ticks uint32
	Ref   uint32
}

// phaseLayout is the fixed decode table of one telemetry variant.
type phaseLayout struct {
	headerSize  int
	analogCount int
	edgeSize    int
	refBits     int
}

var phaseLayouts = map[StructType]phaseLayout{
	StructPhaseV1: {headerSize: 20, analogCount: 2, edgeSize: 6, refBits: 16},
	StructPhase:   {headerSize: 24, analogCount: 4, edgeSize: 8, refBits: 32},
}

// PhaseBuffer is a decoded GET_PHASE_BUFFER telemetry snapshot.
//
// Both layouts share the header prefix
//
//	0  type        u16
//	2  reserved    u16
//	4  max count   u16
//	6  valid count u16
//	8  fix count   u32
//	12 sysclk Hz   u32
//	16 analog      [2]u16 (V1) or [4]u16
//
// followed by ValidCount edges, oldest first. V1 edges are {u32 ticks,
// u16 ref}; current edges are {u32 ticks, u32 ref}.
type PhaseBuffer struct {
	Type       StructType
	MaxCount   uint16
	FixCount   uint32 // monotonically increasing edge counter
	SysClockHz uint32
	Analog     []uint16
	Edges      []Edge
}

// RefBits returns the width of the reference counter, which bounds its
// wrap-around.
func (pb *PhaseBuffer) RefBits() int {
	if l, ok := phaseLayouts[pb.Type]; ok {
		return l.refBits
	}
	return 32
}

// RefDelta returns b.Ref - a.Ref modulo the reference counter width.
func (pb *PhaseBuffer) RefDelta(a, b Edge) uint32 {
	if pb.RefBits() == 16 {
		return uint32(uint16(b.Ref - a.Ref))
	}
	return b.Ref - a.Ref
}

// Size returns the encoded length of the snapshot.
func (pb *PhaseBuffer) Size() int {
	l, ok := phaseLayouts[pb.Type]
	if !ok {
		return 0
	}
	return l.headerSize + len(pb.Edges)*l.edgeSize
}

// MarshalTo encodes the snapshot into buf.
// Returns the number of bytes written, or 0 if the type is unknown, the
// analog count does not match the layout or buf is too small.
func (pb *PhaseBuffer) MarshalTo(buf []byte) int {
	l, ok := phaseLayouts[pb.Type]
	if !ok || len(pb.Analog) != l.analogCount || len(pb.Edges) > 0xFFFF {
		return 0
	}
	n := pb.Size()
	if len(buf) < n {
		return 0
	}

	w := cursor{buf: buf}
	w.putU16(pb.Type.Wire())
	w.zero(2)
	w.putU16(pb.MaxCount)
	w.putU16(uint16(len(pb.Edges)))
	w.putU32(pb.FixCount)
	w.putU32(pb.SysClockHz)
	for _, a := range pb.Analog {
		w.putU16(a)
	}
	for _, e := range pb.Edges {
		w.putU32(e.Ticks)
		if l.refBits == 16 {
			w.putU16(uint16(e.Ref))
		} else {
			w.putU32(e.Ref)
		}
	}
	return n
}

// ParsePhaseBuffer decodes a telemetry snapshot, selecting the layout by
// the leading structure type.
func ParsePhaseBuffer(data []byte, out *PhaseBuffer) error {
	if len(data) < 2 {
		return fmt.Errorf("phase buffer of %d bytes: %w", len(data), ErrMalformed)
	}
	r := cursor{buf: data}
	raw := r.u16()
	typ := ParseStructType(raw)
	l, ok := phaseLayouts[typ]
	if !ok {
		return fmt.Errorf("phase buffer type 0x%04X: %w", raw, ErrMalformed)
	}
	if len(data) < l.headerSize {
		return fmt.Errorf("%s header needs %d bytes, have %d: %w", typ, l.headerSize, len(data), ErrMalformed)
	}

	r.off += 2
	out.Type = typ
	out.MaxCount = r.u16()
	valid := int(r.u16())
	out.FixCount = r.u32()
	out.SysClockHz = r.u32()
	out.Analog = make([]uint16, l.analogCount)
	for i := range out.Analog {
		out.Analog[i] = r.u16()
	}

	if need := l.headerSize + valid*l.edgeSize; len(data) < need {
		return fmt.Errorf("%s with %d edges needs %d bytes, have %d: %w", typ, valid, need, len(data), ErrMalformed)
	}
	out.Edges = nil
	if valid > 0 {
		out.Edges = make([]Edge, valid)
	}
	for i := range out.Edges {
		out.Edges[i].Ticks = r.u32()
		if l.refBits == 16 {
			out.Edges[i].Ref = uint32(r.u16())
		} else {
			out.Edges[i].Ref = r.u32()
		}
	}
	return nil
}
