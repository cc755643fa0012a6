package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yfsproj/yfsd/cache"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
)

// emptyWalker is used where no inode in the scan carries any blocks.
func emptyWalker(*disk.Inode) ([]uint32, error) { return nil, nil }

func newBootstrapFixture(t *testing.T, numBlocks, numInodes int32) (*Allocator, *cache.InodeCache, disk.Superblock) {
	t.Helper()
	dev := device.NewMemDevice(uint32(numBlocks))
	bc, err := cache.NewBlockCache(4, dev)
	require.NoError(t, err)
	ic, err := cache.NewInodeCache(4, bc)
	require.NoError(t, err)

	sb := disk.Superblock{NumBlocks: numBlocks, NumInodes: numInodes}
	return New(ic), ic, sb
}

func TestBootstrapMarksSuperblockAndInodeRegionTaken(t *testing.T) {
	numInodes := int32(4)
	regionBlocks := disk.InodeRegionBlocks(numInodes)
	numBlocks := disk.FirstInodeSector + regionBlocks + 4

	a, _, sb := newBootstrapFixture(t, numBlocks, numInodes)
	require.NoError(t, a.Bootstrap(sb, emptyWalker))

	// All inodes (including root) are free: Bootstrap leaves every
	// inode from disk.RootInode up free since their Type defaults to
	// disk.Free on a freshly zeroed device.
	require.Equal(t, int(numInodes-disk.RootInode), a.FreeInodeCount())

	// Free blocks must exclude the superblock sector and the inode
	// region, leaving only the trailing data blocks.
	require.Equal(t, int(4), a.FreeBlockCount())
}

func TestBootstrapExcludesBlocksReachableFromNonFreeInodes(t *testing.T) {
	numInodes := int32(4)
	regionBlocks := disk.InodeRegionBlocks(numInodes)
	numBlocks := disk.FirstInodeSector + regionBlocks + 4

	a, ic, sb := newBootstrapFixture(t, numBlocks, numInodes)

	rootIn, err := ic.GetInode(disk.RootInode)
	require.NoError(t, err)
	rootIn.Type = disk.Directory
	rootIn.Direct[0] = numBlocks - 1
	ic.MarkInodeDirty(disk.RootInode)

	walker := func(in *disk.Inode) ([]uint32, error) {
		var out []uint32
		for _, d := range in.Direct {
			if d != 0 {
				out = append(out, uint32(d))
			}
		}
		return out, nil
	}

	require.NoError(t, a.Bootstrap(sb, walker))

	// The root inode is no longer free, and its one referenced block
	// is excluded from the free list: 4 trailing blocks minus 1.
	require.Equal(t, int(numInodes-disk.RootInode-1), a.FreeInodeCount())
	require.Equal(t, 3, a.FreeBlockCount())
}

func TestAllocFreeInodeRoundTrip(t *testing.T) {
	numInodes := int32(4)
	numBlocks := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes) + 2
	a, _, sb := newBootstrapFixture(t, numBlocks, numInodes)
	require.NoError(t, a.Bootstrap(sb, emptyWalker))

	before := a.FreeInodeCount()
	n, err := a.AllocInode()
	require.NoError(t, err)
	require.Equal(t, before-1, a.FreeInodeCount())

	a.FreeInode(n)
	require.Equal(t, before, a.FreeInodeCount())
}

func TestAllocFreeBlockRoundTrip(t *testing.T) {
	numInodes := int32(4)
	numBlocks := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes) + 2
	a, _, sb := newBootstrapFixture(t, numBlocks, numInodes)
	require.NoError(t, a.Bootstrap(sb, emptyWalker))

	before := a.FreeBlockCount()
	b, err := a.AllocBlock()
	require.NoError(t, err)
	require.Equal(t, before-1, a.FreeBlockCount())

	a.FreeBlock(b)
	require.Equal(t, before, a.FreeBlockCount())
}

func TestAllocInodeExhaustion(t *testing.T) {
	numInodes := int32(disk.RootInode + 1)
	numBlocks := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes) + 1
	a, _, sb := newBootstrapFixture(t, numBlocks, numInodes)
	require.NoError(t, a.Bootstrap(sb, emptyWalker))

	require.Equal(t, 1, a.FreeInodeCount())
	_, err := a.AllocInode()
	require.NoError(t, err)

	_, err = a.AllocInode()
	require.ErrorIs(t, err, ErrNoFreeInodes)
}

func TestAllocBlockExhaustion(t *testing.T) {
	numInodes := int32(4)
	numBlocks := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes)
	a, _, sb := newBootstrapFixture(t, numBlocks, numInodes)
	require.NoError(t, a.Bootstrap(sb, emptyWalker))

	require.Equal(t, 0, a.FreeBlockCount())
	_, err := a.AllocBlock()
	require.ErrorIs(t, err, ErrNoFreeBlocks)
}
