package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yfsproj/yfsd/device"
	"github.com/yfsproj/yfsd/disk"
	"github.com/yfsproj/yfsd/engine"
	"github.com/yfsproj/yfsd/protocol"
	"github.com/yfsproj/yfsd/transport"
)

// newTestDispatcher formats a fresh in-memory image and boots a
// Dispatcher over it, mirroring engine's own newTestEngine helper.
func newTestDispatcher(t *testing.T) (*Dispatcher, *transport.Fake) {
	t.Helper()

	numInodes := int32(16)
	rootDirBlock := disk.FirstInodeSector + disk.InodeRegionBlocks(numInodes)
	numBlocks := rootDirBlock + 9

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

	eng, err := engine.New(dev, engine.Config{BlockCacheSize: 16, InodeCacheSize: 16}, nil, nil)
	require.NoError(t, err)

	tr := transport.NewFake()
	return New(eng, tr, nil, nil), tr
}

func TestServeOneCreateWriteRead(t *testing.T) {
	d, tr := newTestDispatcher(t)
	const sender = 1

	path := []byte("/file")
	pathAddr := tr.Bind(path)
	createReq, err := protocol.CreateRequest{
		Num: protocol.Create, CurrentInode: disk.RootInode,
		Addr: pathAddr, Len: int32(len(path)), Hint: disk.CreateNew,
	}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, createReq)
	require.NoError(t, d.ServeOne())

	var createReply protocol.InodeReply
	require.NoError(t, decodeInodeReply(tr.LastReply(sender), &createReply))
	require.Equal(t, int32(protocol.OK), createReply.Status)
	inum := createReply.Inode
	require.NotZero(t, inum)

	data := []byte("hello, dispatch")
	dataAddr := tr.Bind(data)
	writeReq, err := protocol.FileRequest{
		Num: protocol.Write, InodeNum: inum, Addr: dataAddr, Size: int32(len(data)), Offset: 0,
	}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, writeReq)
	require.NoError(t, d.ServeOne())

	var writeReply protocol.CountReply
	require.NoError(t, decodeCountReply(tr.LastReply(sender), &writeReply))
	require.Equal(t, int32(protocol.OK), writeReply.Status)
	require.Equal(t, int32(len(data)), writeReply.Count)

	readBuf := make([]byte, len(data))
	readAddr := tr.Bind(readBuf)
	readReq, err := protocol.FileRequest{
		Num: protocol.Read, InodeNum: inum, Addr: readAddr, Size: int32(len(data)), Offset: 0,
	}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, readReq)
	require.NoError(t, d.ServeOne())

	var readReply protocol.CountReply
	require.NoError(t, decodeCountReply(tr.LastReply(sender), &readReply))
	require.Equal(t, int32(protocol.OK), readReply.Status)
	require.Equal(t, data, readBuf[:readReply.Count])
}

func TestServeOneMkdirAndStat(t *testing.T) {
	d, tr := newTestDispatcher(t)
	const sender = 2

	path := []byte("/sub")
	addr := tr.Bind(path)
	mkdirReq, err := protocol.PathRequest{
		Num: protocol.Mkdir, CurrentInode: disk.RootInode, Addr: addr, Len: int32(len(path)),
	}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, mkdirReq)
	require.NoError(t, d.ServeOne())

	var mkdirReply protocol.InodeReply
	require.NoError(t, decodeInodeReply(tr.LastReply(sender), &mkdirReply))
	require.Equal(t, int32(protocol.OK), mkdirReply.Status)

	statBuf := make([]byte, 16)
	statAddr := tr.Bind(statBuf)
	statReq, err := protocol.StatRequest{
		Num: protocol.Stat, CurrentInode: disk.RootInode, Addr: addr, Len: int32(len(path)), StatAddr: statAddr,
	}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, statReq)
	require.NoError(t, d.ServeOne())

	var statReply protocol.GenericReply
	require.NoError(t, decodeGenericReply(tr.LastReply(sender), &statReply))
	require.Equal(t, int32(protocol.OK), statReply.Status)

	var rec statRecord
	require.NoError(t, decodeI32Fields(statBuf, &rec.Inum, &rec.Nlink, &rec.Size, &rec.Type))
	require.Equal(t, int32(disk.Directory), rec.Type)
	require.Equal(t, int32(2), rec.Nlink)
	require.NotZero(t, rec.Inum)
}

// statRecord mirrors protocol.StatRecord for test-side decoding; the
// wire type itself only exports MarshalBinary (the server never
// decodes one).
type statRecord struct {
	Inum, Nlink, Size, Type int32
}

func TestServeOneUnknownOpcodeIsInvalidArgument(t *testing.T) {
	d, tr := newTestDispatcher(t)
	const sender = 3
	req, err := protocol.GenericRequest{Num: 999}.MarshalBinary()
	require.NoError(t, err)
	tr.Enqueue(sender, req)
	require.NoError(t, d.ServeOne())

	var reply protocol.GenericReply
	require.NoError(t, decodeGenericReply(tr.LastReply(sender), &reply))
	require.Equal(t, int32(protocol.EInvalidArgument), reply.Status)
}

// The protocol reply structs don't export an UnmarshalBinary (the
// client side of this wire format is out of scope), so these tests
// decode the little-endian int32 header fields directly.

func decodeGenericReply(buf []byte, r *protocol.GenericReply) error {
	return decodeI32Fields(buf, &r.Status)
}

func decodeInodeReply(buf []byte, r *protocol.InodeReply) error {
	return decodeI32Fields(buf, &r.Status, &r.Inode)
}

func decodeCountReply(buf []byte, r *protocol.CountReply) error {
	return decodeI32Fields(buf, &r.Status, &r.Count)
}

func decodeI32Fields(buf []byte, fields ...*int32) error {
	for i, f := range fields {
		off := 4 * i
		*f = int32(uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24)
	}
	return nil
}
