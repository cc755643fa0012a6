package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
	"github.com/yfsproj/yfsd/transport"
)

// fakeRemote is a Remote backed by a single in-process buffer, mem,
// addressed from 0 — standing in for a transport.Bound in these
// in-process tests.
type fakeRemote struct{ mem []byte }

func (f fakeRemote) CopyTo(remote transport.RemoteAddr, local []byte, n int) error {
	copy(f.mem[int(remote):int(remote)+n], local[:n])
	return nil
}

func (f fakeRemote) CopyFrom(local []byte, remote transport.RemoteAddr, n int) error {
	copy(local[:n], f.mem[int(remote):int(remote)+n])
	return nil
}

// writeAll writes all of data to inum at offset via a fresh fakeRemote.
func writeAll(t *testing.T, e *Engine, inum int32, data []byte, offset int32) {
	t.Helper()
	n, err := e.Write(inum, 0, int32(len(data)), offset, fakeRemote{mem: data})
	require.NoError(t, err)
	require.Equal(t, int32(len(data)), n)
}

// readAt reads up to want bytes from inum at offset via a fresh
// fakeRemote, returning exactly what was read.
func readAt(t *testing.T, e *Engine, inum int32, want, offset int32) []byte {
	t.Helper()
	mem := make([]byte, want)
	n, err := e.Read(inum, 0, want, offset, fakeRemote{mem: mem})
	require.NoError(t, err)
	return mem[:n]
}

// newTestEngine formats a fresh image directly (mirroring what cmd/mkyfs
// does) and boots an Engine over it: a superblock, a ROOT DIRECTORY
// inode, and a root directory block holding "." and ".." both pointing
// at disk.RootInode.
func newTestEngine(t *testing.T, extraDataBlocks int, numInodes int32) *Engine {
	t.Helper()

	rootDirBlock := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes)
	numBlocks := rootDirBlock + 1 + int32(extraDataBlocks)

	dev := device.NewMemDevice(uint32(numBlocks))

	sb := disk.Superblock{NumBlocks: numBlocks, NumInodes: numInodes}
	sbBuf, err := sb.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, dev.WriteSector(disk.SuperblockSector, sbBuf))

	root := disk.Inode{Type: disk.Directory, Nlink: 2, Size: 2 * disk.DirEntrySize}
	root.Direct[0] = rootDirBlock
	rootBuf, err := root.MarshalBinary()
	require.NoError(t, err)
	var inodeSector [disk.SectorSize]byte
	copy(inodeSector[disk.InodeOffset(disk.RootInode):], rootBuf)
	require.NoError(t, dev.WriteSector(uint32(disk.InodeBlock(disk.RootInode)), inodeSector[:]))

	var dirSector [disk.SectorSize]byte
	putEntry := func(off int, inum int32, name string) {
		var de disk.DirEntry
		de.Inum = int16(inum)
		de.SetName(name)
		enc, err := de.MarshalBinary()
		require.NoError(t, err)
		copy(dirSector[off:off+disk.DirEntrySize], enc)
	}
	putEntry(0, disk.RootInode, ".")
	putEntry(disk.DirEntrySize, disk.RootInode, "..")
	require.NoError(t, dev.WriteSector(uint32(rootDirBlock), dirSector[:]))

	e, err := New(dev, Config{BlockCacheSize: 16, InodeCacheSize: 16}, nil, nil)
	require.NoError(t, err)
	return e
}

func TestMkdirRmdirNlinkAndFreeListRoundTrip(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	freeInodesBefore := e.FreeInodeCount()
	freeBlocksBefore := e.FreeBlockCount()

	sub, err := e.Mkdir("/sub", disk.RootInode)
	require.NoError(t, err)

	st, err := e.Stat(sub)
	require.NoError(t, err)
	require.Equal(t, disk.Directory, st.Type)
	require.Equal(t, int16(2), st.Nlink)

	rootSt, err := e.Stat(disk.RootInode)
	require.NoError(t, err)
	require.Equal(t, int16(3), rootSt.Nlink, "child's .. bumps the parent's link count")

	require.NoError(t, e.Rmdir("/sub", disk.RootInode))

	rootSt, err = e.Stat(disk.RootInode)
	require.NoError(t, err)
	require.Equal(t, int16(2), rootSt.Nlink)
	require.Equal(t, freeInodesBefore, e.FreeInodeCount())
	require.Equal(t, freeBlocksBefore, e.FreeBlockCount())
}

func TestMkdirDuplicateNameFails(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	_, err := e.Mkdir("/sub", disk.RootInode)
	require.NoError(t, err)
	_, err = e.Mkdir("/sub", disk.RootInode)
	require.ErrorIs(t, err, ErrExists)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	_, err := e.Mkdir("/sub", disk.RootInode)
	require.NoError(t, err)
	_, err = e.Mkdir("/sub/inner", disk.RootInode)
	require.NoError(t, err)

	err = e.Rmdir("/sub", disk.RootInode)
	require.ErrorIs(t, err, ErrNotEmpty)
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)

	data := []byte("hello, yfsd")
	writeAll(t, e, inum, data, 0)

	buf := readAt(t, e, inum, int32(len(data)), 0)
	require.Equal(t, data, buf)

	st, err := e.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, int32(len(data)), st.Size)
}

func TestCreateTruncatesExistingFile(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	writeAll(t, e, inum, []byte("some content"), 0)

	again, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	require.Equal(t, inum, again)

	st, err := e.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, int32(0), st.Size)
}

func TestReadPastEOFReturnsShortCount(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	writeAll(t, e, inum, []byte("abc"), 0)

	buf := readAt(t, e, inum, 10, 0)
	require.Equal(t, int32(3), int32(len(buf)))
}

func TestWriteAllocatesIndirectBlockOnFirstExtension(t *testing.T) {
	e := newTestEngine(t, 6, 16)
	inum, err := e.Create("/big", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)

	offset := int32(disk.NumDirect) * disk.SectorSize
	data := []byte{1, 2, 3, 4, 5}
	writeAll(t, e, inum, data, offset)

	in, err := e.inodes.GetInode(inum)
	require.NoError(t, err)
	require.NotZero(t, in.Indirect, "first write past NumDirect must allocate the indirect pointer block")

	buf := readAt(t, e, inum, int32(len(data)), offset)
	require.Equal(t, data, buf)
}

func TestLinkSharesInodeAndUnlinkFreesOnLastLink(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/a", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)

	linked, err := e.Link("/a", "/b", disk.RootInode)
	require.NoError(t, err)
	require.Equal(t, inum, linked)

	st, err := e.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, int16(2), st.Nlink)

	require.NoError(t, e.Unlink("/a", disk.RootInode))
	st, err = e.Stat(inum)
	require.NoError(t, err)
	require.Equal(t, int16(1), st.Nlink)

	freeBefore := e.FreeInodeCount()
	require.NoError(t, e.Unlink("/b", disk.RootInode))
	require.Equal(t, freeBefore+1, e.FreeInodeCount())
}

func TestUnlinkRejectsDirectory(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	_, err := e.Mkdir("/sub", disk.RootInode)
	require.NoError(t, err)
	err = e.Unlink("/sub", disk.RootInode)
	require.ErrorIs(t, err, ErrIsDirectory)
}

func TestSymlinkOpenFollowsButReadlinkDoesNot(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	target, err := e.Create("/target", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	writeAll(t, e, target, []byte("payload"), 0)

	_, err = e.Symlink("/target", "/link", disk.RootInode)
	require.NoError(t, err)

	opened, err := e.Open("/link", disk.RootInode)
	require.NoError(t, err)
	require.Equal(t, target, opened, "open must follow the symlink to its target")

	got, err := e.Readlink("/link", disk.RootInode)
	require.NoError(t, err)
	require.Equal(t, "/target", got)
}

func TestSymlinkRejectsPreexistingName(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	_, err := e.Create("/thing", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	_, err = e.Symlink("/whatever", "/thing", disk.RootInode)
	require.ErrorIs(t, err, ErrExists)
}

func TestTooManySymlinksIsRejected(t *testing.T) {
	e := newTestEngine(t, 32, 32)
	const chain = disk.MaxSymlinks + 2
	for i := 0; i < chain; i++ {
		from := symlinkName(i)
		to := symlinkName(i + 1)
		if i == chain-1 {
			to = "/target"
		}
		_, err := e.Symlink(to, from, disk.RootInode)
		require.NoError(t, err)
	}
	_, err := e.Create("/target", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)

	_, err = e.Open(symlinkName(0), disk.RootInode)
	require.ErrorIs(t, err, ErrTooManySymlinks)
}

func symlinkName(i int) string {
	return "/s" + string(rune('a'+i))
}

func TestChdirRejectsNonDirectory(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	_, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	_, err = e.Chdir("/file", disk.RootInode)
	require.ErrorIs(t, err, ErrNotDirectory)
}

func TestSeekClampsToFileBounds(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	writeAll(t, e, inum, []byte("0123456789"), 0)

	pos, err := e.Seek(inum, 5, SeekSet, 0)
	require.NoError(t, err)
	require.Equal(t, int32(5), pos)

	pos, err = e.Seek(inum, 100, SeekCur, pos)
	require.NoError(t, err)
	require.Equal(t, int32(10), pos, "seek past EOF clamps to size")

	pos, err = e.Seek(inum, -4, SeekEnd, pos)
	require.NoError(t, err)
	require.Equal(t, int32(6), pos)

	_, err = e.Seek(inum, 1, SeekEnd, pos)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSyncAndShutdown(t *testing.T) {
	e := newTestEngine(t, 8, 16)
	inum, err := e.Create("/file", disk.RootInode, disk.CreateNew)
	require.NoError(t, err)
	writeAll(t, e, inum, []byte("durable"), 0)
	require.NoError(t, e.Sync())
	require.NoError(t, e.Shutdown())
}
