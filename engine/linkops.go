package engine

import "github.com/yfsproj/yfsd/disk"

// Link implements spec.md §4.6: resolve old (which must not name a
// directory), attach newPath to the same inode via Create's hint
// path, and bump the inode's link count.
func (e *Engine) Link(oldPath, newPath string, cwd int32) (int32, error) {
	oldInum, err := e.Resolve(oldPath, cwd)
	if err != nil {
		return 0, err
	}
	oldIn, err := e.inodes.GetInode(oldInum)
	if err != nil {
		return 0, err
	}
	if oldIn.Type == disk.Directory {
		return 0, ErrIsDirectory
	}

	newInum, err := e.Create(newPath, cwd, oldInum)
	if err != nil {
		return 0, err
	}

	in, err := e.inodes.GetInode(oldInum)
	if err != nil {
		return 0, err
	}
	in.Nlink++
	e.inodes.MarkInodeDirty(oldInum)

	return newInum, nil
}

// Unlink removes path's directory entry and drops the target inode's
// link count, freeing it once that count reaches zero. It refuses to
// remove a directory (Rmdir exists for that).
func (e *Engine) Unlink(path string, cwd int32) error {
	dirInode, leaf, err := e.resolveContainer(path, cwd, false)
	if err != nil {
		return err
	}
	block, offset, inum, found, err := e.findEntry(dirInode, leaf, false)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}

	in, err := e.inodes.GetInode(inum)
	if err != nil {
		return err
	}
	if in.Type == disk.Directory {
		return ErrIsDirectory
	}

	if err := e.deleteDirEntry(block, offset); err != nil {
		return err
	}

	in.Nlink--
	if in.Nlink <= 0 {
		if err := e.freeInodeBlocks(inum, in); err != nil {
			return err
		}
		in.Type = disk.Free
		in.Nlink = 0
		e.alloc.FreeInode(inum)
	}
	e.inodes.MarkInodeDirty(inum)
	return nil
}

// Symlink creates a new SYMLINK inode under linkPath holding target as
// its stored content. Unlike the source (spec.md §9 flags this as an
// anomaly), a pre-existing linkPath entry is rejected rather than
// silently overwritten — the same rule Mkdir already applies.
func (e *Engine) Symlink(target, linkPath string, cwd int32) (int32, error) {
	dirInode, leaf, err := e.resolveContainer(linkPath, cwd, true)
	if err != nil {
		return 0, err
	}
	if len(target) >= disk.MaxPathNameLen {
		return 0, ErrNameTooLong
	}

	newInum, err := e.alloc.AllocInode()
	if err != nil {
		return 0, ErrNoSpace
	}
	in, err := e.inodes.GetInode(newInum)
	if err != nil {
		return 0, err
	}
	in.Type = disk.Symlink
	in.Nlink = 1
	in.Size = 0
	in.Direct = [disk.NumDirect]int32{}
	in.Indirect = 0
	e.inodes.MarkInodeDirty(newInum)

	release := func() {
		if fin, gerr := e.inodes.GetInode(newInum); gerr == nil {
			_ = e.freeInodeBlocks(newInum, fin)
			fin.Type = disk.Free
			fin.Nlink = 0
			e.inodes.MarkInodeDirty(newInum)
		}
		e.alloc.FreeInode(newInum)
	}

	if err := e.writeSymlinkTarget(newInum, in, target); err != nil {
		release()
		return 0, err
	}

	if err := e.addDirEntry(dirInode, leaf, newInum); err != nil {
		release()
		return 0, err
	}
	return newInum, nil
}

// Readlink resolves path's containing directory with full symlink
// following but stops short of expanding the final segment itself
// (resolveLeafNoFollow), then returns the stored target string. It is
// an error to readlink something that isn't a symlink.
func (e *Engine) Readlink(path string, cwd int32) (string, error) {
	inum, err := e.resolveLeafNoFollow(path, cwd)
	if err != nil {
		return "", err
	}
	in, err := e.inodes.GetInode(inum)
	if err != nil {
		return "", err
	}
	if in.Type != disk.Symlink {
		return "", ErrInvalidArgument
	}
	return e.readSymlinkTarget(in)
}

// writeSymlinkTarget stores target as inodeNum's sole data block.
func (e *Engine) writeSymlinkTarget(inodeNum int32, in *disk.Inode, target string) error {
	bn, err := e.blockNumberForWrite(inodeNum, in, 0)
	if err != nil {
		return err
	}
	b, err := e.blocks.GetBlock(bn)
	if err != nil {
		return err
	}
	copy(b.Data[:], target)
	e.blocks.MarkDirty(bn)
	in.Size = int32(len(target))
	e.inodes.MarkInodeDirty(inodeNum)
	return nil
}
