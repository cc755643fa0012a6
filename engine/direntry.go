package engine

import "github.com/yfsproj/yfsd/disk"

// findEntry implements spec.md §4.5: a linear scan of dirInode's
// directory-entry array, remembering the first free slot (Inum == 0)
// seen along the way, and two distinct behaviors on a miss depending on
// create:
//
//   - create == false: report not-found.
//   - create == true: reuse the first free slot if one was seen,
//     otherwise append — allocating (and zeroing) a fresh block only
//     when the directory's current size lands exactly on a block
//     boundary.
//
// On a hit, inum and found=true are returned. On a miss with
// create==true, (block, offset) locate the slot the caller should
// write its new entry into via writeDirEntry; found is false either
// way so callers can't mistake a freshly allocated slot for an
// existing entry.
func (e *Engine) findEntry(dirInode int32, name string, create bool) (block uint32, offset int, inum int32, found bool, err error) {
	in, err := e.inodes.GetInode(dirInode)
	if err != nil {
		return 0, 0, 0, false, err
	}
	if in.Type != disk.Directory {
		return 0, 0, 0, false, ErrNotDirectory
	}

	var freeBlock uint32
	var freeOffset int
	haveFree := false

	numEntries := in.Size / disk.DirEntrySize
	for idx := int32(0); idx < numEntries; idx++ {
		k := idx / disk.EntriesPerBlock
		posInBlock := int(idx % disk.EntriesPerBlock)

		bn, err := e.blockNumberForRead(in, k)
		if err != nil {
			return 0, 0, 0, false, err
		}
		if bn == 0 {
			continue
		}
		b, err := e.blocks.GetBlock(bn)
		if err != nil {
			return 0, 0, 0, false, err
		}
		off := posInBlock * disk.DirEntrySize
		var de disk.DirEntry
		if err := de.UnmarshalBinary(b.Data[off : off+disk.DirEntrySize]); err != nil {
			return 0, 0, 0, false, err
		}

		if de.Inum == 0 {
			if !haveFree {
				freeBlock, freeOffset, haveFree = bn, off, true
			}
			continue
		}
		if disk.NameEquals(de.Name, name) {
			return bn, off, int32(de.Inum), true, nil
		}
	}

	if !create {
		return 0, 0, 0, false, nil
	}
	if len(name) > disk.DirNameLen {
		return 0, 0, 0, false, ErrNameTooLong
	}
	if haveFree {
		return freeBlock, freeOffset, 0, false, nil
	}

	k := numEntries / disk.EntriesPerBlock
	posInBlock := int(numEntries % disk.EntriesPerBlock)
	bn, err := e.blockNumberForWrite(dirInode, in, k)
	if err != nil {
		return 0, 0, 0, false, err
	}
	in.Size += disk.DirEntrySize
	e.inodes.MarkInodeDirty(dirInode)
	return bn, posInBlock * disk.DirEntrySize, 0, false, nil
}

// addDirEntry is the common find-or-fail-then-write pattern shared by
// Mkdir, Symlink, and Create's specific-inode-hint path: look up name
// in dirInode, fail with ErrExists if it's already occupied, otherwise
// write inum into the located (possibly freshly appended) slot.
func (e *Engine) addDirEntry(dirInode int32, name string, inum int32) error {
	block, offset, _, found, err := e.findEntry(dirInode, name, true)
	if err != nil {
		return err
	}
	if found {
		return ErrExists
	}
	return e.writeDirEntry(block, offset, inum, name)
}

// writeDirEntry writes {inum, name} into the slot findEntry located.
func (e *Engine) writeDirEntry(block uint32, offset int, inum int32, name string) error {
	var de disk.DirEntry
	de.Inum = int16(inum)
	de.SetName(name)
	enc, err := de.MarshalBinary()
	if err != nil {
		return err
	}
	b, err := e.blocks.GetBlock(block)
	if err != nil {
		return err
	}
	copy(b.Data[offset:offset+disk.DirEntrySize], enc)
	e.blocks.MarkDirty(block)
	return nil
}

// deleteDirEntry tombstones the entry at (block, offset): Inum = 0.
// Entries are never physically compacted, per spec.md §4.5.
func (e *Engine) deleteDirEntry(block uint32, offset int) error {
	return e.writeDirEntry(block, offset, 0, "")
}
