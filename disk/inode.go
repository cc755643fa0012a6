package disk

import (
	"encoding/binary"
	"fmt"
)

// Inode is the fixed-size on-disk inode record. Block k of the file it
// describes is Direct[k] for k < NumDirect, else the (k-NumDirect)'th
// int32 stored in the indirect block.
type Inode struct {
	Type     InodeType
	Nlink    int16
	Reuse    int16
	Size     int32
	Direct   [NumDirect]int32
	Indirect int32
}

// encoded layout (little-endian, InodeSize bytes total):
//
//	type     int16   offset 0
//	nlink    int16   offset 2
//	reuse    int16   offset 4
//	_pad     int16   offset 6
//	size     int32   offset 8
//	direct   int32*N offset 12
//	indirect int32   offset 12+4*NumDirect
const (
	inodeOffType     = 0
	inodeOffNlink    = 2
	inodeOffReuse    = 4
	inodeOffSize     = 8
	inodeOffDirect   = 12
	inodeOffIndirect = inodeOffDirect + 4*NumDirect
)

// MarshalBinary encodes the inode into an InodeSize-sized buffer.
func (n Inode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, InodeSize)
	binary.LittleEndian.PutUint16(buf[inodeOffType:], uint16(n.Type))
	binary.LittleEndian.PutUint16(buf[inodeOffNlink:], uint16(n.Nlink))
	binary.LittleEndian.PutUint16(buf[inodeOffReuse:], uint16(n.Reuse))
	binary.LittleEndian.PutUint32(buf[inodeOffSize:], uint32(n.Size))
	for i, d := range n.Direct {
		binary.LittleEndian.PutUint32(buf[inodeOffDirect+4*i:], uint32(d))
	}
	binary.LittleEndian.PutUint32(buf[inodeOffIndirect:], uint32(n.Indirect))
	return buf, nil
}

// UnmarshalBinary decodes an inode from a buffer of at least InodeSize
// bytes (the caller typically passes a slice into a larger block).
func (n *Inode) UnmarshalBinary(buf []byte) error {
	if len(buf) < InodeSize {
		return fmt.Errorf("disk: inode buffer too small: %d bytes", len(buf))
	}
	n.Type = InodeType(binary.LittleEndian.Uint16(buf[inodeOffType:]))
	n.Nlink = int16(binary.LittleEndian.Uint16(buf[inodeOffNlink:]))
	n.Reuse = int16(binary.LittleEndian.Uint16(buf[inodeOffReuse:]))
	n.Size = int32(binary.LittleEndian.Uint32(buf[inodeOffSize:]))
	for i := range n.Direct {
		n.Direct[i] = int32(binary.LittleEndian.Uint32(buf[inodeOffDirect+4*i:]))
	}
	n.Indirect = int32(binary.LittleEndian.Uint32(buf[inodeOffIndirect:]))
	return nil
}

// BlockCount returns the number of logical blocks currently occupied by
// size bytes of file content.
func BlockCount(size int32) int32 {
	if size <= 0 {
		return 0
	}
	blocks := size / SectorSize
	if size%SectorSize != 0 {
		blocks++
	}
	return blocks
}

// DecodeIndirectBlock views a raw indirect block as its PointersPerBlock
// int32 entries.
func DecodeIndirectBlock(buf []byte) [PointersPerBlock]int32 {
	var out [PointersPerBlock]int32
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return out
}

// PutIndirectEntry writes block number v into slot i of a raw indirect
// block buffer.
func PutIndirectEntry(buf []byte, i int, v int32) {
	binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
}

// IndirectEntry reads slot i of a raw indirect block buffer.
func IndirectEntry(buf []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[4*i:]))
}
