package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
)

func TestBlockCacheEvictsLRUAndWritesBackDirty(t *testing.T) {
	dev := device.NewMemDevice(8)
	bc, err := NewBlockCache(2, dev)
	require.NoError(t, err)

	b0, err := bc.GetBlock(0)
	require.NoError(t, err)
	b0.Data[0] = 0xAA
	bc.MarkDirty(0)

	_, err = bc.GetBlock(1)
	require.NoError(t, err)

	// Touch 0 again so it is MRU; 1 becomes the eviction candidate.
	_, err = bc.GetBlock(0)
	require.NoError(t, err)

	// Loading sector 2 should evict sector 1 (LRU), not 0.
	_, err = bc.GetBlock(2)
	require.NoError(t, err)

	// Sector 0 is dirty but still resident, so nothing has been written
	// back to the device yet.
	var raw [disk.SectorSize]byte
	require.NoError(t, dev.ReadSector(0, raw[:]))
	require.Equal(t, byte(0), raw[0], "sector 0 should not be written back yet (still cached)")

	hits, misses := bc.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(3), misses)

	// Loading sector 1 again evicts the LRU entry, which is now sector 0;
	// since 0 is dirty, the eviction must write it back.
	_, err = bc.GetBlock(1)
	require.NoError(t, err)
	require.NoError(t, dev.ReadSector(0, raw[:]))
	require.Equal(t, byte(0xAA), raw[0], "evicting dirty sector 0 must write it back")
}

func TestBlockCacheMarkDirtyPanicsOnNonResident(t *testing.T) {
	dev := device.NewMemDevice(4)
	bc, err := NewBlockCache(2, dev)
	require.NoError(t, err)
	require.Panics(t, func() { bc.MarkDirty(99) })
}

func TestBlockCacheSyncClearsDirtyAndWritesDevice(t *testing.T) {
	dev := device.NewMemDevice(4)
	bc, err := NewBlockCache(4, dev)
	require.NoError(t, err)

	b, err := bc.GetBlock(3)
	require.NoError(t, err)
	b.Data[0] = 0x7F
	bc.MarkDirty(3)
	require.True(t, b.Dirty())

	require.NoError(t, bc.Sync())
	require.False(t, b.Dirty())

	var raw [disk.SectorSize]byte
	require.NoError(t, dev.ReadSector(3, raw[:]))
	require.Equal(t, byte(0x7F), raw[0])
}

func TestInodeCacheRoundTripThroughBlockCache(t *testing.T) {
	dev := device.NewMemDevice(8)
	bc, err := NewBlockCache(4, dev)
	require.NoError(t, err)
	ic, err := NewInodeCache(2, bc)
	require.NoError(t, err)

	n, err := ic.GetInode(3)
	require.NoError(t, err)
	n.Type = disk.Regular
	n.Size = 512
	ic.MarkInodeDirty(3)

	require.NoError(t, ic.Sync())
	require.NoError(t, bc.Sync())

	// Fresh caches over the same device must see the same inode.
	bc2, err := NewBlockCache(4, dev)
	require.NoError(t, err)
	ic2, err := NewInodeCache(2, bc2)
	require.NoError(t, err)
	got, err := ic2.GetInode(3)
	require.NoError(t, err)
	require.Equal(t, disk.Regular, got.Type)
	require.Equal(t, int32(512), got.Size)
}

func TestInodeCacheMarkDirtyPanicsOnNonResident(t *testing.T) {
	dev := device.NewMemDevice(8)
	bc, _ := NewBlockCache(4, dev)
	ic, _ := NewInodeCache(2, bc)
	require.Panics(t, func() { ic.MarkInodeDirty(1) })
}
