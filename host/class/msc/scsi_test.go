package msc_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ardnew/lospdisk/host/class/msc"
	"github.com/ardnew/lospdisk/host/class/msc/msctest"
	"github.com/ardnew/lospdisk/host/hal"
	"github.com/ardnew/lospdisk/pkg"
)

// newDisk opens a session on a simulated 1024 x 512 device whose byte i
// holds i mod 251.
func newDisk(t *testing.T) (*msc.Disk, *msctest.Device, *msctest.MemoryStorage) {
	t.Helper()
	storage := msctest.NewMemoryStorage(1024, 512)
	storage.Fill(func(i int) byte { return byte(i % 251) })
	dev := msctest.New(storage)

	disk, err := msc.Open(dev, dev.Endpoints())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return disk, dev, storage
}

func TestOpenClose_ReleasesOnce(t *testing.T) {
	dev := msctest.New(msctest.NewMemoryStorage(16, 512))

	disk, err := msc.Open(dev, dev.Endpoints())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !dev.Claimed() {
		t.Fatal("interface not claimed after Open")
	}

	for i := 0; i < 3; i++ {
		if err := disk.Close(); err != nil {
			t.Errorf("Close %d failed: %v", i, err)
		}
	}
	if dev.Claims() != 1 || dev.Releases() != 1 {
		t.Errorf("claims = %d, releases = %d, want 1, 1", dev.Claims(), dev.Releases())
	}

	if _, err := disk.Read10(context.Background(), 0, 1); !errors.Is(err, pkg.ErrClosed) {
		t.Errorf("Read10 after Close = %v, want ErrClosed", err)
	}
}

func TestOpen_Validation(t *testing.T) {
	dev := msctest.New(msctest.NewMemoryStorage(16, 512))

	if _, err := msc.Open(nil, dev.Endpoints()); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Open(nil) = %v, want ErrInvalidParameter", err)
	}
	if _, err := msc.Open(dev, hal.BulkEndpoints{In: 0x02, Out: 0x81}); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Open(swapped endpoints) = %v, want ErrInvalidParameter", err)
	}
	if dev.Claims() != 0 {
		t.Errorf("claims = %d, want 0", dev.Claims())
	}
}

func TestWithDisk_ReleasesOnEveryPath(t *testing.T) {
	fnErr := errors.New("callback failed")

	tests := []struct {
		name string
		fn   func(context.Context, *msc.Disk) error
		want error
	}{
		{
			name: "success",
			fn: func(ctx context.Context, d *msc.Disk) error {
				_, err := d.ReadCapacity(ctx)
				return err
			},
		},
		{
			name: "validation failure",
			fn: func(ctx context.Context, d *msc.Disk) error {
				_, err := d.Read10(ctx, 0, 0)
				return err
			},
			want: pkg.ErrInvalidParameter,
		},
		{
			name: "transport failure",
			fn: func(ctx context.Context, d *msc.Disk) error {
				_, err := d.Read10(ctx, 2000, 1)
				return err
			},
			want: pkg.ErrDeviceStatus,
		},
		{
			name: "callback error",
			fn:   func(context.Context, *msc.Disk) error { return fnErr },
			want: fnErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := msctest.New(msctest.NewMemoryStorage(1024, 512))

			err := msc.WithDisk(context.Background(), dev, dev.Endpoints(), tt.fn)
			if tt.want == nil && err != nil {
				t.Errorf("WithDisk failed: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("WithDisk = %v, want %v", err, tt.want)
			}
			if dev.Claims() != 1 || dev.Releases() != 1 || dev.Claimed() {
				t.Errorf("claims = %d, releases = %d, claimed = %v", dev.Claims(), dev.Releases(), dev.Claimed())
			}
		})
	}
}

func TestInquiry(t *testing.T) {
	disk, dev, _ := newDisk(t)
	dev.SetIdentity("ACME", "Widget", "2.1")

	inq, err := disk.Inquiry(context.Background())
	if err != nil {
		t.Fatalf("Inquiry failed: %v", err)
	}
	if inq.Vendor != "ACME" || inq.Product != "Widget" || inq.Revision != "2.1" {
		t.Errorf("Inquiry = %+v", inq)
	}
	if !inq.Removable || inq.DeviceType != 0 {
		t.Errorf("Inquiry type = %d removable = %v", inq.DeviceType, inq.Removable)
	}

	cmds := dev.Commands()
	if len(cmds) != 1 || cmds[0].Opcode != msc.SCSIInquiry || cmds[0].Length != msc.InquiryStandardSize {
		t.Errorf("commands = %+v", cmds)
	}
}

// READ CAPACITY (1023, 512) gives 1024 sectors, and a 1024-byte
// WRITE(10) at lba 5 carries count 2.
func TestReadCapacity_WriteCount(t *testing.T) {
	disk, dev, storage := newDisk(t)
	ctx := context.Background()

	c, err := disk.ReadCapacity(ctx)
	if err != nil {
		t.Fatalf("ReadCapacity failed: %v", err)
	}
	if c.LastLBA != 1023 || c.BlockSize != 512 {
		t.Errorf("capacity = %+v, want {1023 512}", c)
	}
	if c.Blocks() != 1024 {
		t.Errorf("Blocks() = %d, want 1024", c.Blocks())
	}
	if c.Bytes() != 1024*512 {
		t.Errorf("Bytes() = %d", c.Bytes())
	}
	if cached, ok := disk.Capacity(); !ok || cached != c {
		t.Errorf("Capacity() = %+v, %v", cached, ok)
	}

	data := bytes.Repeat([]byte{0xA5}, 1024)
	if err := disk.Write10(ctx, 5, data); err != nil {
		t.Fatalf("Write10 failed: %v", err)
	}

	cmds := dev.Commands()
	last := cmds[len(cmds)-1]
	if last.Opcode != msc.SCSIWrite10 || last.LBA != 5 || last.Count != 2 || last.Length != 1024 {
		t.Errorf("WRITE(10) = %+v, want lba 5 count 2 length 1024", last)
	}
	if !bytes.Equal(storage.Sector(5), data[:512]) || !bytes.Equal(storage.Sector(6), data[512:]) {
		t.Error("sectors 5..6 do not hold written data")
	}
	if dev.CountOpcode(msc.SCSIReadCapacity10) != 1 {
		t.Errorf("READ CAPACITY issued %d times, want 1", dev.CountOpcode(msc.SCSIReadCapacity10))
	}
}

func TestBlockSize_LazyReadCapacity(t *testing.T) {
	disk, dev, _ := newDisk(t)
	ctx := context.Background()

	if _, ok := disk.Capacity(); ok {
		t.Fatal("capacity cached before READ CAPACITY")
	}
	for i := 0; i < 2; i++ {
		if _, err := disk.Read10(ctx, 0, 1); err != nil {
			t.Fatalf("Read10 failed: %v", err)
		}
	}
	if n := dev.CountOpcode(msc.SCSIReadCapacity10); n != 1 {
		t.Errorf("READ CAPACITY issued %d times, want 1", n)
	}
}

func TestRead10(t *testing.T) {
	disk, dev, storage := newDisk(t)

	buf, err := disk.Read10(context.Background(), 10, 3)
	if err != nil {
		t.Fatalf("Read10 failed: %v", err)
	}
	want := storage.Bytes()[10*512 : 13*512]
	if !bytes.Equal(buf, want) {
		t.Error("Read10 data mismatch")
	}

	cmds := dev.Commands()
	last := cmds[len(cmds)-1]
	if last.Opcode != msc.SCSIRead10 || last.LBA != 10 || last.Count != 3 || !last.In {
		t.Errorf("READ(10) = %+v", last)
	}
}

// Block counts outside 1..255 issue no transfer.
func TestRW10_CountOutOfRange(t *testing.T) {
	disk, dev, _ := newDisk(t)
	ctx := context.Background()
	if _, err := disk.ReadCapacity(ctx); err != nil {
		t.Fatalf("ReadCapacity failed: %v", err)
	}
	dev.ResetCommands()

	for _, count := range []int{-1, 0, 256, 1000} {
		if _, err := disk.Read10(ctx, 0, count); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("Read10(count=%d) = %v, want ErrInvalidParameter", count, err)
		}
	}
	for _, size := range []int{0, 256 * 512} {
		if err := disk.Write10(ctx, 0, make([]byte, size)); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("Write10(len=%d) = %v, want ErrInvalidParameter", size, err)
		}
	}
	if cmds := dev.Commands(); len(cmds) != 0 {
		t.Errorf("commands issued = %+v, want none", cmds)
	}

	// Bounds themselves are accepted
	if _, err := disk.Read10(ctx, 0, 255); err != nil {
		t.Errorf("Read10(count=255) failed: %v", err)
	}
	if err := disk.Write10(ctx, 0, make([]byte, 512)); err != nil {
		t.Errorf("Write10(count=1) failed: %v", err)
	}
}

// A WRITE(10) buffer that is not a whole number of blocks issues no
// transfer.
func TestWrite10_Misaligned(t *testing.T) {
	disk, dev, _ := newDisk(t)
	ctx := context.Background()
	if _, err := disk.ReadCapacity(ctx); err != nil {
		t.Fatalf("ReadCapacity failed: %v", err)
	}
	dev.ResetCommands()

	for _, size := range []int{1, 511, 513, 1000} {
		err := disk.Write10(ctx, 0, make([]byte, size))
		var verr *msc.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Write10(len=%d) = %v, want *ValidationError", size, err)
		}
	}
	if n := dev.CountOpcode(msc.SCSIWrite10); n != 0 {
		t.Errorf("WRITE(10) issued %d times, want 0", n)
	}
}

func TestRead10_OutOfRangeSense(t *testing.T) {
	disk, _, _ := newDisk(t)

	_, err := disk.Read10(context.Background(), 1023, 2)
	var serr *msc.DeviceStatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *DeviceStatusError", err)
	}
	if serr.Sense == nil {
		t.Fatal("no sense data attached")
	}
	if serr.Sense.Key() != msc.SenseIllegalRequest || serr.Sense.ASC() != msc.ASCLBAOutOfRange {
		t.Errorf("sense = %s", serr.Sense)
	}
}

func TestRead10_DataPhaseFault(t *testing.T) {
	disk, dev, _ := newDisk(t)
	ctx := context.Background()
	dev.FailRead(7, msctest.FaultDataPhase)

	_, err := disk.Read10(ctx, 6, 2)
	var terr *msc.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if terr.Phase != msc.PhaseData || terr.Sense == nil {
		t.Fatalf("TransportError = %+v", terr)
	}
	if terr.Sense.Key() != msc.SenseMediumError {
		t.Errorf("sense = %s", terr.Sense)
	}

	// The session keeps working after the failed command
	dev.ClearFaults()
	if _, err := disk.Read10(ctx, 6, 2); err != nil {
		t.Errorf("Read10 after fault failed: %v", err)
	}
}

func TestRequestSense_Cleared(t *testing.T) {
	disk, dev, _ := newDisk(t)
	ctx := context.Background()
	dev.FailNext(msctest.FaultStatus)

	if _, err := disk.Inquiry(ctx); !errors.Is(err, pkg.ErrDeviceStatus) {
		t.Fatalf("Inquiry = %v, want ErrDeviceStatus", err)
	}

	// Automatic sense consumed the pending condition
	sense, err := disk.RequestSense(ctx)
	if err != nil {
		t.Fatalf("RequestSense failed: %v", err)
	}
	if sense.Key() != msc.SenseNoSense {
		t.Errorf("sense key = %s, want NO SENSE", sense.KeyName())
	}
}

func TestCSWFaults(t *testing.T) {
	tests := []struct {
		name  string
		fault msctest.Fault
		phase msc.Phase
	}{
		{"signature", msctest.FaultSignature, msc.PhaseStatus},
		{"short CSW", msctest.FaultShortCSW, msc.PhaseStatus},
		{"command", msctest.FaultCommand, msc.PhaseCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disk, dev, _ := newDisk(t)
			dev.FailNext(tt.fault)

			_, err := disk.Inquiry(context.Background())
			var terr *msc.TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("error = %v, want *TransportError", err)
			}
			if terr.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", terr.Phase, tt.phase)
			}
			if dev.CountOpcode(msc.SCSIRequestSense) != 0 {
				t.Error("automatic REQUEST SENSE issued for a framing failure")
			}
		})
	}
}

func TestWrite10_WriteProtected(t *testing.T) {
	disk, _, storage := newDisk(t)
	storage.SetWriteProtected(true)

	err := disk.Write10(context.Background(), 0, make([]byte, 512))
	var serr *msc.DeviceStatusError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want *DeviceStatusError", err)
	}
	if serr.Sense == nil || serr.Sense.Key() != msc.SenseDataProtect {
		t.Errorf("sense = %v, want DATA PROTECT", serr.Sense)
	}
}
