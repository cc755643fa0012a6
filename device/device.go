// Package device provides the raw block device abstraction yfsd's
// engine is built on: fixed-size sector reads and writes against a
// backing file or block special file. This stands in for the real
// Yalnix disk driver, which spec.md treats as an external collaborator
// consumed only through read_sector/write_sector.
package device

import (
	"fmt"

	"github.com/yfsproj/yfsd/disk"
)

// BlockDevice is the interface the engine consumes. It mirrors the two
// primitives spec.md §1 names: read_sector and write_sector, plus a
// size query (NumSectors) and Close.
type BlockDevice interface {
	ReadSector(n uint32, buf []byte) error
	WriteSector(n uint32, buf []byte) error
	NumSectors() uint32
	Close() error
}

// ErrOutOfRange is returned when a sector number is not addressable on
// this device.
type ErrOutOfRange struct {
	Sector uint32
	Total  uint32
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("device: sector %d out of range (0..%d)", e.Sector, e.Total)
}

func checkBufLen(buf []byte) error {
	if len(buf) != disk.SectorSize {
		return fmt.Errorf("device: buffer must be exactly %d bytes, got %d", disk.SectorSize, len(buf))
	}
	return nil
}
