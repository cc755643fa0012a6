package disk

import (
	"encoding/binary"
	"fmt"
)

// Superblock is the fixed-field record stored at sector 0, offset 0.
type Superblock struct {
	NumBlocks int32
	NumInodes int32
}

// MarshalBinary encodes the superblock into a SectorSize-sized buffer.
func (s Superblock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.NumBlocks))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.NumInodes))
	return buf, nil
}

// UnmarshalBinary decodes a superblock from a sector buffer.
func (s *Superblock) UnmarshalBinary(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("disk: superblock buffer too small: %d bytes", len(buf))
	}
	s.NumBlocks = int32(binary.LittleEndian.Uint32(buf[0:4]))
	s.NumInodes = int32(binary.LittleEndian.Uint32(buf[4:8]))
	return nil
}

// InodesPerBlockCount returns the number of inodes that fit in one
// sector, derived the same way for every superblock.
func (s Superblock) InodesPerBlockCount() int32 {
	return InodesPerBlock
}

// FirstDataBlock returns the first sector available for data, i.e. the
// sector immediately following the inode region.
func (s Superblock) FirstDataBlock() int32 {
	return FirstInodeSector + InodeRegionBlocks(s.NumInodes)
}
