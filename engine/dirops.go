package engine

import "github.com/yfsproj/yfsd/disk"

// Mkdir implements spec.md §4.6: allocate a new DIRECTORY inode, seed
// it with "." and ".." entries, and link it into its parent. New
// directories get Nlink == 2 (its own name in the parent, plus its own
// "."); the parent's Nlink is bumped to account for the child's ".."
// — the directory-nlink convention spec.md §9 leaves unstated for
// this rewrite and that this package resolves explicitly.
func (e *Engine) Mkdir(path string, cwd int32) (int32, error) {
	dirInode, leaf, err := e.resolveContainer(path, cwd, true)
	if err != nil {
		return 0, err
	}

	newInum, err := e.alloc.AllocInode()
	if err != nil {
		return 0, ErrNoSpace
	}
	in, err := e.inodes.GetInode(newInum)
	if err != nil {
		return 0, err
	}
	in.Type = disk.Directory
	in.Nlink = 2
	in.Size = 0
	in.Direct = [disk.NumDirect]int32{}
	in.Indirect = 0
	e.inodes.MarkInodeDirty(newInum)

	if err := e.addDirEntry(dirInode, leaf, newInum); err != nil {
		if fin, gerr := e.inodes.GetInode(newInum); gerr == nil {
			fin.Type = disk.Free
			fin.Nlink = 0
			e.inodes.MarkInodeDirty(newInum)
		}
		e.alloc.FreeInode(newInum)
		return 0, err
	}
	if err := e.addDirEntry(newInum, ".", newInum); err != nil {
		return 0, err
	}
	if err := e.addDirEntry(newInum, "..", dirInode); err != nil {
		return 0, err
	}

	parentIn, err := e.inodes.GetInode(dirInode)
	if err != nil {
		return 0, err
	}
	parentIn.Nlink++
	e.inodes.MarkInodeDirty(dirInode)

	return newInum, nil
}

// Rmdir implements spec.md §4.6: path must name a directory whose Size
// is no more than two entries ("." and ".."). Emptiness is judged by
// Size alone, so a directory that once held other entries is still
// rejected after they are unlinked, since tombstoned slots keep their
// place in Size. Its entry is tombstoned in
// the parent, its inode is freed, and the parent's Nlink is dropped to
// balance the accounting Mkdir performed.
func (e *Engine) Rmdir(path string, cwd int32) error {
	dirInode, leaf, err := e.resolveContainer(path, cwd, true)
	if err != nil {
		return err
	}
	if leaf == "." || leaf == ".." {
		return ErrInvalidArgument
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
	if in.Type != disk.Directory {
		return ErrNotDirectory
	}
	if in.Size > 2*disk.DirEntrySize {
		return ErrNotEmpty
	}

	if err := e.deleteDirEntry(block, offset); err != nil {
		return err
	}

	if err := e.freeInodeBlocks(inum, in); err != nil {
		return err
	}
	in.Type = disk.Free
	in.Nlink = 0
	e.inodes.MarkInodeDirty(inum)
	e.alloc.FreeInode(inum)

	parentIn, err := e.inodes.GetInode(dirInode)
	if err != nil {
		return err
	}
	parentIn.Nlink--
	e.inodes.MarkInodeDirty(dirInode)

	return nil
}

// Chdir resolves path and verifies it names a directory, returning the
// inode the caller should adopt as its new working directory.
func (e *Engine) Chdir(path string, cwd int32) (int32, error) {
	inum, err := e.Resolve(path, cwd)
	if err != nil {
		return 0, err
	}
	in, err := e.inodes.GetInode(inum)
	if err != nil {
		return 0, err
	}
	if in.Type != disk.Directory {
		return 0, ErrNotDirectory
	}
	return inum, nil
}
