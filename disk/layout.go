// Package disk defines the on-disk layout of a yfsd filesystem image:
// the superblock, inode, and directory-entry formats, and the fixed
// geometry constants that every other package derives its block/inode
// arithmetic from.
package disk

// Fixed geometry. These mirror the constants original_source/yfs.h and
// original_source/message.h name (NUM_DIRECT, DIRNAMELEN, ROOTINODE,
// CREATE_NEW); the header defining their numeric values was not part of
// the retrieval pack, so the values below are chosen to satisfy the
// spec's tiling invariants (InodeSize divides SectorSize, DirEntrySize
// divides SectorSize).
const (
	SectorSize = 512

	// InodeSize is the fixed on-disk size of one inode record.
	InodeSize = 64

	// InodesPerBlock is the number of inode records that fit in one
	// sector.
	InodesPerBlock = SectorSize / InodeSize

	// NumDirect is the number of direct block pointers carried in each
	// inode.
	NumDirect = 11

	// DirNameLen is the fixed width of a directory entry's name field.
	DirNameLen = 14

	// DirEntrySize is the fixed on-disk size of one directory entry
	// (2-byte Inum + DirNameLen-byte Name).
	DirEntrySize = 2 + DirNameLen

	// PointersPerBlock is the number of int32 block pointers that fit
	// in one indirect block.
	PointersPerBlock = SectorSize / 4

	// MaxPathNameLen is the maximum length, in bytes, of a pathname
	// argument accepted by any operation. A path of exactly this length
	// is rejected.
	MaxPathNameLen = 256

	// MaxSymlinks bounds the number of symlink expansions a single
	// path resolution may perform.
	MaxSymlinks = 16

	// RootInode is the well-known inode number of the root directory.
	RootInode = 1

	// CreateNew is the hint value passed to Create to request
	// truncate-if-exists semantics, mirroring original_source's
	// CREATE_NEW.
	CreateNew = -1

	// SuperblockSector is the sector holding the superblock.
	SuperblockSector = 0

	// FirstInodeSector is the first sector of the inode region.
	FirstInodeSector = 1
)

// InodeType tags what kind of file an inode describes.
type InodeType int32

const (
	Free InodeType = iota
	Regular
	Directory
	Symlink
)

func (t InodeType) String() string {
	switch t {
	case Free:
		return "free"
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "invalid"
	}
}

// InodeRegionBlocks returns the number of sectors occupied by the inode
// region for a filesystem with numInodes inodes.
func InodeRegionBlocks(numInodes int32) int32 {
	blocks := numInodes / InodesPerBlock
	if numInodes%InodesPerBlock != 0 {
		blocks++
	}
	return blocks
}

// InodeBlock returns the sector holding inode n.
func InodeBlock(n int32) int32 {
	return n/InodesPerBlock + FirstInodeSector
}

// InodeOffset returns the byte offset of inode n within its sector.
func InodeOffset(n int32) int32 {
	return (n % InodesPerBlock) * InodeSize
}
