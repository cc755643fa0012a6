package cache

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/yfsproj/yfsd/disk"
)

// inodeItem is one cache-resident inode.
type inodeItem struct {
	number int32
	inode  disk.Inode
	dirty  bool
}

// InodeCache is an LRU cache of inodes layered over a BlockCache, per
// spec.md §4.2: the backing block of inode n is (n/InodesPerBlock)+1,
// at byte offset (n%InodesPerBlock)*InodeSize within that block.
type InodeCache struct {
	mu     sync.Mutex
	blocks *BlockCache
	lru    *simplelru.LRU

	hits, misses int64
}

// NewInodeCache constructs an inode cache of the given capacity (in
// inodes) over blocks.
func NewInodeCache(capacity int, blocks *BlockCache) (*InodeCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache: inode cache capacity must be >= 1, got %d", capacity)
	}
	c := &InodeCache{blocks: blocks}
	lru, err := simplelru.NewLRU(capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict writes a dirty evicted inode back into its backing block (not
// to disk directly — the block cache's own eviction/sync handles that),
// per spec.md §4.2's "write-through to the block occurs on inode
// eviction".
func (c *InodeCache) onEvict(key, value interface{}) {
	item := value.(*inodeItem)
	if item.dirty {
		_ = c.writeThrough(item)
	}
}

func (c *InodeCache) writeThrough(item *inodeItem) error {
	blockNum := uint32(disk.InodeBlock(item.number))
	off := disk.InodeOffset(item.number)
	b, err := c.blocks.GetBlock(blockNum)
	if err != nil {
		return err
	}
	enc, err := item.inode.MarshalBinary()
	if err != nil {
		return err
	}
	copy(b.Data[off:off+disk.InodeSize], enc)
	c.blocks.MarkDirty(blockNum)
	return nil
}

// GetInode returns the cached inode record for n, loading it through
// the block cache on a miss. The returned pointer is owned by the
// cache; callers must copy out any value they intend to hold across a
// future GetInode call for a different inode.
func (c *InodeCache) GetInode(n int32) (*disk.Inode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(n); ok {
		c.hits++
		return &v.(*inodeItem).inode, nil
	}
	c.misses++

	blockNum := uint32(disk.InodeBlock(n))
	off := disk.InodeOffset(n)
	b, err := c.blocks.GetBlock(blockNum)
	if err != nil {
		return nil, fmt.Errorf("cache: load inode %d: %w", n, err)
	}
	item := &inodeItem{number: n}
	if err := item.inode.UnmarshalBinary(b.Data[off : off+disk.InodeSize]); err != nil {
		return nil, err
	}
	c.lru.Add(n, item)
	return &item.inode, nil
}

// MarkInodeDirty marks inode n dirty. n must already be resident
// (obtained via GetInode).
func (c *InodeCache) MarkInodeDirty(n int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(n)
	if !ok {
		panic(fmt.Sprintf("cache: MarkInodeDirty(%d) on non-resident inode", n))
	}
	v.(*inodeItem).dirty = true
}

// Sync copies every dirty cached inode into its backing block (marking
// that block dirty in turn) and clears the inode's dirty flag. The
// actual sector write happens when the caller subsequently calls
// BlockCache.Sync — batched, as spec.md §4.6 allows.
func (c *InodeCache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		item := v.(*inodeItem)
		if !item.dirty {
			continue
		}
		if err := c.writeThrough(item); err != nil {
			return fmt.Errorf("cache: sync inode %d: %w", item.number, err)
		}
		item.dirty = false
	}
	return nil
}

// Stats returns cumulative hit/miss counts, consumed by the metrics
// package.
func (c *InodeCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
