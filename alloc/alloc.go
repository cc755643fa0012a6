// Package alloc implements the free-list allocators for inodes and
// blocks (spec.md §4.3): two pop-from-head/push-to-head singly-linked
// stacks, bootstrapped by scanning every inode at startup.
package alloc

import (
	"fmt"

	"github.com/yfsproj/yfsd/cache"
	"github.com/yfsproj/yfsd/disk"
)

// Allocator owns the free inode and free block lists.
type Allocator struct {
	inodes *cache.InodeCache

	freeInodes []int32
	freeBlocks []uint32
}

// New constructs an allocator. Callers must call Bootstrap before use.
func New(inodes *cache.InodeCache) *Allocator {
	return &Allocator{inodes: inodes}
}

// AllocInode pops the head of the free inode list, bumps its Reuse
// counter, marks it dirty, and returns its number. It returns
// (0, ErrNoFreeInodes) on exhaustion. The returned inode's Type is
// still Free; callers (Create/Mkdir/Symlink) must set Type (and Nlink)
// before any other request can observe it, per spec.md §9's
// dirty-on-read-of-reuse note — safe here because the engine is
// strictly single-threaded.
func (a *Allocator) AllocInode() (int32, error) {
	if len(a.freeInodes) == 0 {
		return 0, ErrNoFreeInodes
	}
	n := a.freeInodes[len(a.freeInodes)-1]
	a.freeInodes = a.freeInodes[:len(a.freeInodes)-1]

	in, err := a.inodes.GetInode(n)
	if err != nil {
		return 0, err
	}
	in.Reuse++
	a.inodes.MarkInodeDirty(n)
	return n, nil
}

// FreeInode pushes n back onto the free inode list. Callers must have
// already reset the inode's Type to Free and Nlink to 0.
func (a *Allocator) FreeInode(n int32) {
	a.freeInodes = append(a.freeInodes, n)
}

// AllocBlock pops the head of the free block list. It returns
// (0, ErrNoFreeBlocks) on exhaustion.
func (a *Allocator) AllocBlock() (uint32, error) {
	if len(a.freeBlocks) == 0 {
		return 0, ErrNoFreeBlocks
	}
	n := a.freeBlocks[len(a.freeBlocks)-1]
	a.freeBlocks = a.freeBlocks[:len(a.freeBlocks)-1]
	return n, nil
}

// FreeBlock pushes n back onto the free block list.
func (a *Allocator) FreeBlock(n uint32) {
	a.freeBlocks = append(a.freeBlocks, n)
}

// FreeInodeCount and FreeBlockCount are used by tests asserting the
// round-trip laws in spec.md §8 ("mkdir then rmdir restores the free
// inode count").
func (a *Allocator) FreeInodeCount() int { return len(a.freeInodes) }
func (a *Allocator) FreeBlockCount() int { return len(a.freeBlocks) }

// ErrNoFreeInodes and ErrNoFreeBlocks signal allocator exhaustion.
var (
	ErrNoFreeInodes = fmt.Errorf("alloc: no free inodes")
	ErrNoFreeBlocks = fmt.Errorf("alloc: no free blocks")
)

// BlockWalker enumerates every data block reachable from an inode, the
// same logical-block walk reads and the bootstrap scan both use.
// Implemented in engine (which owns indirect-block decoding via the
// block cache) and injected here to avoid a cache<->engine import
// cycle.
type BlockWalker func(in *disk.Inode) ([]uint32, error)

// Bootstrap performs the scan described in spec.md §4.3: read the
// superblock, mark block 0 taken, walk every inode from disk.RootInode
// up, and push whichever of inodes/blocks are free.
func (a *Allocator) Bootstrap(sb disk.Superblock, walk BlockWalker) error {
	a.freeInodes = a.freeInodes[:0]
	a.freeBlocks = a.freeBlocks[:0]

	taken := make([]bool, sb.NumBlocks)
	taken[disk.SuperblockSector] = true
	for b := disk.FirstInodeSector; b < sb.FirstDataBlock(); b++ {
		if int32(b) < int32(len(taken)) {
			taken[b] = true
		}
	}

	for n := int32(disk.RootInode); n < sb.NumInodes; n++ {
		in, err := a.inodes.GetInode(n)
		if err != nil {
			return fmt.Errorf("alloc: bootstrap scan inode %d: %w", n, err)
		}
		if in.Type == disk.Free {
			a.freeInodes = append(a.freeInodes, n)
			continue
		}
		blocks, err := walk(in)
		if err != nil {
			return fmt.Errorf("alloc: bootstrap walk inode %d: %w", n, err)
		}
		for _, b := range blocks {
			if b > 0 && int(b) < len(taken) {
				taken[b] = true
			}
		}
	}

	for b := 1; b < len(taken); b++ {
		if !taken[b] {
			a.freeBlocks = append(a.freeBlocks, uint32(b))
		}
	}
	return nil
}
