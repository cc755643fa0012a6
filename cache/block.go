// Package cache implements the write-back, LRU-bounded block and inode
// caches the engine is built on (spec.md §4.1/§4.2). Both caches are
// backed by hashicorp/golang-lru's simplelru.LRU, whose hash-table
// lookup plus intrusive usage list is exactly the data structure
// spec.md describes; its eviction callback is used directly as the
// write-back hook.
package cache

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
)

// Block is one cached sector: an owned fixed-size buffer plus a dirty
// flag. A dirty block is the authoritative copy; a clean block equals
// what is on disk.
type Block struct {
	Number uint32
	Data   [disk.SectorSize]byte
	dirty  bool
}

// Dirty reports whether this block differs from disk.
func (b *Block) Dirty() bool { return b.dirty }

// BlockCache is an LRU cache of disk sectors with write-back eviction.
type BlockCache struct {
	mu  sync.Mutex
	dev device.BlockDevice
	lru *simplelru.LRU

	hits, misses int64
}

// NewBlockCache constructs a block cache of the given capacity (in
// sectors) over dev. capacity must be at least 1.
func NewBlockCache(capacity int, dev device.BlockDevice) (*BlockCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache: block cache capacity must be >= 1, got %d", capacity)
	}
	c := &BlockCache{dev: dev}
	lru, err := simplelru.NewLRU(capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// onEvict is simplelru's eviction callback: it is invoked synchronously
// from within Add when the cache is at capacity and a new entry must
// displace the least-recently-used one. This is where a dirty block's
// write_sector writeback happens, per spec.md §4.1.
func (c *BlockCache) onEvict(key, value interface{}) {
	b := value.(*Block)
	if b.dirty {
		// Errors here are swallowed: eviction has no caller to report
		// to. Sync and Shutdown report write errors only for blocks
		// still resident when they run; a failed write-back during an
		// eviction is not reported anywhere.
		_ = c.dev.WriteSector(b.Number, b.Data[:])
	}
}

// GetBlock returns the cached block for sector n, loading it from the
// device on a miss.
func (c *BlockCache) GetBlock(n uint32) (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(n); ok {
		c.hits++
		return v.(*Block), nil
	}
	c.misses++

	b := &Block{Number: n}
	if err := c.dev.ReadSector(n, b.Data[:]); err != nil {
		return nil, fmt.Errorf("cache: read sector %d: %w", n, err)
	}
	c.lru.Add(n, b)
	return b, nil
}

// MarkDirty marks sector n's cached block dirty. n must already be
// resident (obtained via GetBlock); callers that violate this contract
// get a panic, matching spec.md's "it must be resident by contract".
func (c *BlockCache) MarkDirty(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Peek(n)
	if !ok {
		panic(fmt.Sprintf("cache: MarkDirty(%d) on non-resident block", n))
	}
	v.(*Block).dirty = true
}

// Sync writes back every dirty block, in LRU order, and clears their
// dirty flags. simplelru.Keys returns keys ordered oldest-to-newest,
// which is the LRU-to-MRU order spec.md's sync algorithm asks for.
func (c *BlockCache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.lru.Keys() {
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		b := v.(*Block)
		if !b.dirty {
			continue
		}
		if err := c.dev.WriteSector(b.Number, b.Data[:]); err != nil {
			return fmt.Errorf("cache: sync sector %d: %w", b.Number, err)
		}
		b.dirty = false
	}
	return nil
}

// Stats returns cumulative hit/miss counts, consumed by the metrics
// package.
func (c *BlockCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
