package msctest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/lospdisk/pkg"
)

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage(4, 16)
	if m.BlockCount() != 4 || m.BlockSize() != 16 {
		t.Fatalf("geometry = %d x %d, want 4 x 16", m.BlockCount(), m.BlockSize())
	}

	data := bytes.Repeat([]byte{0xA5}, 32)
	if err := m.WriteAt(data, 2); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if got := m.Sector(3); !bytes.Equal(got, data[16:]) {
		t.Errorf("Sector(3) = %x", got)
	}
	if got := m.Sector(1); !bytes.Equal(got, make([]byte, 16)) {
		t.Errorf("Sector(1) = %x, want zeros", got)
	}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"partial block", m.ReadAt(make([]byte, 10), 0), pkg.ErrInvalidParameter},
		{"past end", m.ReadAt(make([]byte, 32), 3), pkg.ErrInvalidParameter},
		{"write past end", m.WriteAt(make([]byte, 16), 4), pkg.ErrInvalidParameter},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, tt.err, tt.want)
		}
	}

	m.SetWriteProtected(true)
	if !m.WriteProtected() {
		t.Error("WriteProtected() = false after SetWriteProtected(true)")
	}
	if err := m.WriteAt(make([]byte, 16), 0); !errors.Is(err, pkg.ErrNotSupported) {
		t.Errorf("WriteAt(protected) = %v, want ErrNotSupported", err)
	}
	if got := m.Sector(2); !bytes.Equal(got, data[:16]) {
		t.Errorf("protected write changed sector 2: %x", got)
	}
}
