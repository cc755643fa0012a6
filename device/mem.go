package device

import (
	"sync"

	"github.com/yfsproj/yfsd/disk"
)

// MemDevice is an in-memory BlockDevice, used by package tests that
// want to exercise the cache/allocator/engine logic without touching
// the filesystem.
type MemDevice struct {
	mu      sync.Mutex
	sectors [][disk.SectorSize]byte
}

// NewMemDevice returns a zeroed in-memory device with numSectors
// sectors.
func NewMemDevice(numSectors uint32) *MemDevice {
	return &MemDevice{sectors: make([][disk.SectorSize]byte, numSectors)}
}

func (d *MemDevice) ReadSector(n uint32, buf []byte) error {
	if err := checkBufLen(buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n >= uint32(len(d.sectors)) {
		return &ErrOutOfRange{Sector: n, Total: uint32(len(d.sectors))}
	}
	copy(buf, d.sectors[n][:])
	return nil
}

func (d *MemDevice) WriteSector(n uint32, buf []byte) error {
	if err := checkBufLen(buf); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n >= uint32(len(d.sectors)) {
		return &ErrOutOfRange{Sector: n, Total: uint32(len(d.sectors))}
	}
	copy(d.sectors[n][:], buf)
	return nil
}

func (d *MemDevice) NumSectors() uint32 {
	return uint32(len(d.sectors))
}

func (d *MemDevice) Close() error { return nil }
