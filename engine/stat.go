package engine

import "github.com/yfsproj/yfsd/disk"

// Stat mirrors the subset of inode metadata spec.md's stat operation
// reports back to the client, the same {inum, nlink, size, type}
// fields original_source/yfs.c's yfsStat populates into struct Stat.
type Stat struct {
	Inum  int32
	Type  disk.InodeType
	Nlink int16
	Size  int32
}

// Stat returns inodeNum's metadata.
func (e *Engine) Stat(inodeNum int32) (Stat, error) {
	in, err := e.inodes.GetInode(inodeNum)
	if err != nil {
		return Stat{}, err
	}
	return Stat{Inum: inodeNum, Type: in.Type, Nlink: in.Nlink, Size: in.Size}, nil
}
