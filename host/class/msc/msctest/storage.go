package msctest

import (
	"fmt"
	"sync"

	"github.com/ardnew/lospdisk/pkg"
)

// Storage is the medium behind a simulated device. Buffers passed to
// ReadAt and WriteAt hold a whole number of blocks.
type Storage interface {
	BlockSize() uint32
	BlockCount() uint64
	ReadAt(p []byte, lba uint32) error
	WriteAt(p []byte, lba uint32) error
	WriteProtected() bool
}

// MemoryStorage is a RAM disk. Tests inspect it directly through Sector
// and Bytes.
type MemoryStorage struct {
	mu        sync.RWMutex
	data      []byte
	blockSize uint32
	protected bool
}

// NewMemoryStorage returns a zeroed disk of blocks sectors.
func NewMemoryStorage(blocks uint64, blockSize uint32) *MemoryStorage {
	return &MemoryStorage{data: make([]byte, blocks*uint64(blockSize)), blockSize: blockSize}
}

func (m *MemoryStorage) BlockSize() uint32 { return m.blockSize }

func (m *MemoryStorage) BlockCount() uint64 { return uint64(len(m.data)) / uint64(m.blockSize) }

// span returns the byte range of p's blocks starting at lba.
func (m *MemoryStorage) span(p []byte, lba uint32) (int, int, error) {
	if len(p)%int(m.blockSize) != 0 {
		return 0, 0, fmt.Errorf("msctest: %d bytes is not whole blocks: %w", len(p), pkg.ErrInvalidParameter)
	}
	start := uint64(lba) * uint64(m.blockSize)
	end := start + uint64(len(p))
	if end > uint64(len(m.data)) {
		return 0, 0, fmt.Errorf("msctest: lba %d + %d bytes past end of medium: %w", lba, len(p), pkg.ErrInvalidParameter)
	}
	return int(start), int(end), nil
}

func (m *MemoryStorage) ReadAt(p []byte, lba uint32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start, end, err := m.span(p, lba)
	if err != nil {
		return err
	}
	copy(p, m.data[start:end])
	return nil
}

func (m *MemoryStorage) WriteAt(p []byte, lba uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.protected {
		return fmt.Errorf("msctest: lba %d: medium write protected: %w", lba, pkg.ErrNotSupported)
	}
	start, end, err := m.span(p, lba)
	if err != nil {
		return err
	}
	copy(m.data[start:end], p)
	return nil
}

func (m *MemoryStorage) WriteProtected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.protected
}

// SetWriteProtected toggles the write-protect switch.
func (m *MemoryStorage) SetWriteProtected(on bool) {
	m.mu.Lock()
	m.protected = on
	m.mu.Unlock()
}

// Sector returns a copy of one block.
func (m *MemoryStorage) Sector(lba uint32) []byte {
	out := make([]byte, m.blockSize)
	if err := m.ReadAt(out, lba); err != nil {
		panic(err)
	}
	return out
}

// Fill sets byte i of the medium to pattern(i).
func (m *MemoryStorage) Fill(pattern func(i int) byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.data {
		m.data[i] = pattern(i)
	}
}

// Bytes returns a copy of the whole medium.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data...)
}
