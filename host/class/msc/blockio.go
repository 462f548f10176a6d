package msc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ardnew/lospdisk/pkg"
)

// ReadBytes returns length bytes starting byteOffset bytes into sector lba.
// The covering span of whole sectors is fetched with a single READ(10).
func (d *Disk) ReadBytes(ctx context.Context, lba uint32, byteOffset, length int) ([]byte, error) {
	if byteOffset < 0 {
		return nil, &ValidationError{Op: "read bytes", Reason: fmt.Sprintf("negative offset %d", byteOffset)}
	}
	if length <= 0 {
		return nil, &ValidationError{Op: "read bytes", Reason: fmt.Sprintf("non-positive length %d", length)}
	}
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return nil, err
	}

	end := byteOffset + length
	sectors := sectorsSpanned(end, int(bs))

	pkg.LogDebug(pkg.ComponentBlockIO, "read bytes",
		"lba", lba,
		"offset", byteOffset,
		"length", length,
		"sectors", sectors)

	buf, err := d.Read10(ctx, lba, sectors)
	if err != nil {
		return nil, err
	}
	if len(buf) < end {
		return nil, &TransportError{Op: "read bytes", Phase: PhaseData,
			Detail: fmt.Sprintf("lba=%d offset=%d length=%d: got %d of %d bytes", lba, byteOffset, length, len(buf), end),
			Err:    pkg.ErrBufferTooSmall}
	}

	out := make([]byte, length)
	copy(out, buf[byteOffset:end])
	return out, nil
}

// OverwriteBytes replaces len(newData) bytes starting byteOffset bytes into
// sector lba, preserving the rest of each touched sector.
//
// Each sector is read, patched and written back before the next one is
// touched. The update is not atomic across sectors: on failure the returned
// *PartialWriteError names the failing sector, every earlier sector keeps
// its new contents and no later sector has been written.
func (d *Disk) OverwriteBytes(ctx context.Context, lba uint32, byteOffset int, newData []byte) error {
	if byteOffset < 0 {
		return &ValidationError{Op: "overwrite bytes", Reason: fmt.Sprintf("negative offset %d", byteOffset)}
	}
	if len(newData) == 0 {
		return &ValidationError{Op: "overwrite bytes", Reason: "empty data"}
	}
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return err
	}

	// Resolve to the first touched sector so every step patches a real
	// sector span.
	lba += uint32(byteOffset / int(bs))
	byteOffset %= int(bs)
	sectors := sectorsSpanned(byteOffset+len(newData), int(bs))

	pkg.LogDebug(pkg.ComponentBlockIO, "overwrite bytes",
		"lba", lba,
		"offset", byteOffset,
		"length", len(newData),
		"sectors", sectors)

	remaining := newData
	for i := 0; i < sectors; i++ {
		sector, err := d.Read10(ctx, lba+uint32(i), 1)
		if err != nil {
			return d.partial(lba, i, sectors, err)
		}
		if len(sector) < int(bs) {
			return d.partial(lba, i, sectors, fmt.Errorf("short sector read: %d of %d bytes: %w",
				len(sector), bs, pkg.ErrBufferTooSmall))
		}

		local := 0
		if i == 0 {
			local = byteOffset
		}
		n := copy(sector[local:], remaining)
		remaining = remaining[n:]

		if err := d.Write10(ctx, lba+uint32(i), sector); err != nil {
			return d.partial(lba, i, sectors, err)
		}
	}
	return nil
}

func (d *Disk) partial(lba uint32, index, sectors int, err error) error {
	perr := &PartialWriteError{LBA: lba, Index: index, Sectors: sectors, Err: err}
	pkg.LogError(pkg.ComponentBlockIO, "overwrite aborted",
		"lba", lba,
		"failed_lba", perr.FailedLBA(),
		"committed", index,
		"sectors", sectors,
		"error", err)
	return perr
}

// ReadSectors reads count sectors starting at lba, splitting the span into
// READ(10) commands of at most MaxTransferBlocks blocks.
func (d *Disk) ReadSectors(ctx context.Context, lba uint32, count int) ([]byte, error) {
	if count <= 0 {
		return nil, &ValidationError{Op: "read sectors", Reason: fmt.Sprintf("non-positive count %d", count)}
	}
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, count*int(bs))
	for done := 0; done < count; {
		n := min(count-done, MaxTransferBlocks)
		buf, err := d.Read10(ctx, lba+uint32(done), n)
		if err != nil {
			return nil, err
		}
		if len(buf) < n*int(bs) {
			return nil, &TransportError{Op: "read sectors", Phase: PhaseData,
				Detail: fmt.Sprintf("lba=%d: got %d of %d bytes", lba+uint32(done), len(buf), n*int(bs)),
				Err:    pkg.ErrBufferTooSmall}
		}
		out = append(out, buf...)
		done += n
	}
	return out, nil
}

// WriteSectors writes data starting at lba, splitting it into WRITE(10)
// commands of at most MaxTransferBlocks blocks. A failure after the first
// command returns a *PartialWriteError indexed at the failing chunk's first
// sector.
func (d *Disk) WriteSectors(ctx context.Context, lba uint32, data []byte) error {
	bs, err := d.BlockSize(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data)%int(bs) != 0 {
		return &ValidationError{Op: "write sectors",
			Reason: fmt.Sprintf("buffer length %d is not a positive multiple of block size %d", len(data), bs)}
	}

	count := len(data) / int(bs)
	for done := 0; done < count; {
		n := min(count-done, MaxTransferBlocks)
		chunk := data[done*int(bs) : (done+n)*int(bs)]
		if err := d.Write10(ctx, lba+uint32(done), chunk); err != nil {
			if done == 0 {
				return err
			}
			return d.partial(lba, done, count, err)
		}
		done += n
	}
	return nil
}

// ByteView adapts a Disk to io.ReaderAt and io.WriterAt over absolute byte
// offsets from LBA 0.
type ByteView struct {
	ctx  context.Context
	disk *Disk
}

// Bytes returns a byte-addressed view of the disk bound to ctx.
func (d *Disk) Bytes(ctx context.Context) *ByteView {
	return &ByteView{ctx: ctx, disk: d}
}

// ReadAt implements io.ReaderAt.
func (v *ByteView) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ValidationError{Op: "read at", Reason: fmt.Sprintf("negative offset %d", off)}
	}
	bs, err := v.disk.BlockSize(v.ctx)
	if err != nil {
		return 0, err
	}
	c, _ := v.disk.Capacity()

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		if uint64(pos) >= c.Bytes() {
			return n, io.EOF
		}
		lba := uint32(pos / int64(bs))
		local := int(pos % int64(bs))
		// Largest chunk that still fits one READ(10) and the device.
		chunk := min(len(p)-n, MaxTransferBlocks*int(bs)-local)
		if left := c.Bytes() - uint64(pos); uint64(chunk) > left {
			chunk = int(left)
		}
		buf, err := v.disk.ReadBytes(v.ctx, lba, local, chunk)
		if err != nil {
			return n, err
		}
		n += copy(p[n:], buf)
	}
	return n, nil
}

// WriteAt implements io.WriterAt. Writes that span several sectors carry
// the same partial-failure semantics as OverwriteBytes.
func (v *ByteView) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, &ValidationError{Op: "write at", Reason: fmt.Sprintf("negative offset %d", off)}
	}
	if len(p) == 0 {
		return 0, nil
	}
	bs, err := v.disk.BlockSize(v.ctx)
	if err != nil {
		return 0, err
	}
	lba := uint32(off / int64(bs))
	local := int(off % int64(bs))
	if err := v.disk.OverwriteBytes(v.ctx, lba, local, p); err != nil {
		var perr *PartialWriteError
		if errors.As(err, &perr) && perr.Index > 0 {
			written := perr.Index*int(bs) - local
			return min(written, len(p)), err
		}
		return 0, err
	}
	return len(p), nil
}

// sectorsSpanned returns ceil(end/bs).
func sectorsSpanned(end, bs int) int {
	return (end + bs - 1) / bs
}
