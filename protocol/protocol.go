// Package protocol defines the wire shapes dispatch decodes requests
// into and encodes replies from. The message tags mirror the YFS_*
// constants in original_source/yalnix-file-system/message.h; the
// per-opcode structs mirror that file's message_path / message_file /
// message_link / message_readlink / message_seek / message_stat /
// message_generic shapes, minus their raw pointer fields — a pathname
// or data buffer's bytes travel separately, fetched or delivered by
// transport.Transport.CopyFrom/CopyTo, exactly as the pointer fields in
// the original structs pointed into the requesting process's own
// address space rather than carrying data inline.
package protocol

import (
	"encoding/binary"

	"github.com/yfsproj/yfsd/transport"
)

// Request tags, matching message.h's YFS_* numbering.
const (
	Open     int32 = 0
	Create   int32 = 1
	Read     int32 = 2
	Write    int32 = 3
	Seek     int32 = 4
	Link     int32 = 5
	Unlink   int32 = 6
	Symlink  int32 = 7
	Readlink int32 = 8
	Mkdir    int32 = 9
	Rmdir    int32 = 10
	Chdir    int32 = 11
	Stat     int32 = 12
	Sync     int32 = 13
	Shutdown int32 = 14
)

// ErrCode is the wire representation of an engine error. dispatch is
// the sole place that translates an engine sentinel error into one of
// these.
type ErrCode int32

const (
	OK ErrCode = iota
	EIO
	ENotFound
	ENotDirectory
	EIsDirectory
	EExists
	ENotEmpty
	ENoSpace
	ETooManySymlinks
	EInvalidArgument
	ENameTooLong
	ENotRegularFile
)

// MessageHeader is the first field of every request: the opcode. The
// dispatcher peeks this to decide which full struct to decode.
type MessageHeader struct {
	Num int32
}

func (h *MessageHeader) UnmarshalBinary(buf []byte) error {
	if len(buf) < 4 {
		return errShortBuffer
	}
	h.Num = int32(binary.LittleEndian.Uint32(buf[0:4]))
	return nil
}

// GenericRequest carries only the opcode, used by Sync and Shutdown.
type GenericRequest struct {
	Num int32
}

// PathRequest names one path relative to CurrentInode: Open, Mkdir,
// Rmdir, Chdir, Unlink. Addr/Len locate the pathname bytes in the
// client's own address space, exactly as message_path.pathname is a raw
// char* in message.h — the dispatcher must separately
// transport.Transport.CopyFrom them.
type PathRequest struct {
	Num          int32
	CurrentInode int32
	Addr         transport.RemoteAddr
	Len          int32
}

// CreateRequest extends PathRequest with the create hint (disk.CreateNew
// for ordinary create-or-truncate, or a specific inode number when
// invoked internally on Link's behalf).
type CreateRequest struct {
	Num          int32
	CurrentInode int32
	Addr         transport.RemoteAddr
	Len          int32
	Hint         int32
}

// FileRequest names an already-open inode plus a size/offset into its
// content, and the client buffer address to stream bytes to/from: Read,
// Write.
type FileRequest struct {
	Num      int32
	InodeNum int32
	Addr     transport.RemoteAddr
	Size     int32
	Offset   int32
}

// SeekRequest requests a new file position.
type SeekRequest struct {
	Num             int32
	InodeNum        int32
	CurrentPosition int32
	Offset          int32
	Whence          int32
}

// LinkRequest names two paths relative to CurrentInode: Link (old,
// new) and Symlink (target, link-path).
type LinkRequest struct {
	Num          int32
	CurrentInode int32
	OldAddr      transport.RemoteAddr
	OldLen       int32
	NewAddr      transport.RemoteAddr
	NewLen       int32
}

// ReadlinkRequest names a path and the client's buffer address/capacity
// for the returned target string.
type ReadlinkRequest struct {
	Num          int32
	CurrentInode int32
	PathAddr     transport.RemoteAddr
	PathLen      int32
	BufAddr      transport.RemoteAddr
	BufLen       int32
}

// StatRequest names a path plus the client's statbuf address, mirroring
// message_stat's {num, current_inode, pathname, len, statbuf} exactly:
// the filled record travels back via transport.Transport.CopyTo into
// StatAddr, not inline in the reply — the reply is just a status.
type StatRequest struct {
	Num          int32
	CurrentInode int32
	Addr         transport.RemoteAddr
	Len          int32
	StatAddr     transport.RemoteAddr
}

// StatRecord is the fixed-width record copied into a client's statbuf,
// mirroring struct Stat's {inum, nlink, size, type} fields in the order
// yfsStat populates them.
type StatRecord struct {
	Inum  int32
	Nlink int32
	Size  int32
	Type  int32
}

func (r StatRecord) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Inum)
	w.i32(r.Nlink)
	w.i32(r.Size)
	w.i32(r.Type)
	return w.buf, nil
}

// Reply shapes. Every reply leads with Status so a client can decode
// just the header to learn whether to bother decoding the rest.

type GenericReply struct {
	Status int32
}

type InodeReply struct {
	Status int32
	Inode  int32
}

type CountReply struct {
	Status int32
	Count  int32
}

type SeekReply struct {
	Status   int32
	Position int32
}

type ReadlinkReply struct {
	Status int32
	Len    int32
}

// wireWriter/wireReader accumulate a fixed-width little-endian record
// mixing int32 and transport.RemoteAddr (int64) fields, in field order —
// the same shape message.h's structs have when a pointer field (8
// bytes on a 64-bit host) sits alongside plain ints.
type wireWriter struct{ buf []byte }

func (w *wireWriter) i32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *wireWriter) addr(v transport.RemoteAddr) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

type wireReader struct {
	buf []byte
	off int
}

func (r *wireReader) i32() int32 {
	if r.off+4 > len(r.buf) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.buf[r.off : r.off+4]))
	r.off += 4
	return v
}

func (r *wireReader) addr() transport.RemoteAddr {
	if r.off+8 > len(r.buf) {
		return 0
	}
	v := transport.RemoteAddr(binary.LittleEndian.Uint64(r.buf[r.off : r.off+8]))
	r.off += 8
	return v
}

func (r *wireReader) need(n int) error {
	if len(r.buf) < n {
		return errShortBuffer
	}
	return nil
}

func (r GenericRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	return w.buf, nil
}
func (r *GenericRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4); err != nil {
		return err
	}
	r.Num = rd.i32()
	return nil
}

func (r PathRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.CurrentInode)
	w.addr(r.Addr)
	w.i32(r.Len)
	return w.buf, nil
}
func (r *PathRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.CurrentInode = rd.i32()
	r.Addr = rd.addr()
	r.Len = rd.i32()
	return nil
}

func (r CreateRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.CurrentInode)
	w.addr(r.Addr)
	w.i32(r.Len)
	w.i32(r.Hint)
	return w.buf, nil
}
func (r *CreateRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4 + 4); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.CurrentInode = rd.i32()
	r.Addr = rd.addr()
	r.Len = rd.i32()
	r.Hint = rd.i32()
	return nil
}

func (r FileRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.InodeNum)
	w.addr(r.Addr)
	w.i32(r.Size)
	w.i32(r.Offset)
	return w.buf, nil
}
func (r *FileRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4 + 4); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.InodeNum = rd.i32()
	r.Addr = rd.addr()
	r.Size = rd.i32()
	r.Offset = rd.i32()
	return nil
}

func (r SeekRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.InodeNum)
	w.i32(r.CurrentPosition)
	w.i32(r.Offset)
	w.i32(r.Whence)
	return w.buf, nil
}
func (r *SeekRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 * 5); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.InodeNum = rd.i32()
	r.CurrentPosition = rd.i32()
	r.Offset = rd.i32()
	r.Whence = rd.i32()
	return nil
}

func (r LinkRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.CurrentInode)
	w.addr(r.OldAddr)
	w.i32(r.OldLen)
	w.addr(r.NewAddr)
	w.i32(r.NewLen)
	return w.buf, nil
}
func (r *LinkRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4 + 8 + 4); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.CurrentInode = rd.i32()
	r.OldAddr = rd.addr()
	r.OldLen = rd.i32()
	r.NewAddr = rd.addr()
	r.NewLen = rd.i32()
	return nil
}

func (r ReadlinkRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.CurrentInode)
	w.addr(r.PathAddr)
	w.i32(r.PathLen)
	w.addr(r.BufAddr)
	w.i32(r.BufLen)
	return w.buf, nil
}
func (r *ReadlinkRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4 + 8 + 4); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.CurrentInode = rd.i32()
	r.PathAddr = rd.addr()
	r.PathLen = rd.i32()
	r.BufAddr = rd.addr()
	r.BufLen = rd.i32()
	return nil
}

func (r StatRequest) MarshalBinary() ([]byte, error) {
	var w wireWriter
	w.i32(r.Num)
	w.i32(r.CurrentInode)
	w.addr(r.Addr)
	w.i32(r.Len)
	w.addr(r.StatAddr)
	return w.buf, nil
}
func (r *StatRequest) UnmarshalBinary(buf []byte) error {
	rd := wireReader{buf: buf}
	if err := rd.need(4 + 4 + 8 + 4 + 8); err != nil {
		return err
	}
	r.Num = rd.i32()
	r.CurrentInode = rd.i32()
	r.Addr = rd.addr()
	r.Len = rd.i32()
	r.StatAddr = rd.addr()
	return nil
}

func encodeInt32s(vals ...int32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:4*i+4], uint32(v))
	}
	return buf
}

func (r GenericReply) MarshalBinary() ([]byte, error) { return encodeInt32s(r.Status), nil }
func (r InodeReply) MarshalBinary() ([]byte, error)   { return encodeInt32s(r.Status, r.Inode), nil }
func (r CountReply) MarshalBinary() ([]byte, error)   { return encodeInt32s(r.Status, r.Count), nil }
func (r SeekReply) MarshalBinary() ([]byte, error)    { return encodeInt32s(r.Status, r.Position), nil }
func (r ReadlinkReply) MarshalBinary() ([]byte, error) {
	return encodeInt32s(r.Status, r.Len), nil
}

type shortBufferError string

func (e shortBufferError) Error() string { return string(e) }

const errShortBuffer = shortBufferError("protocol: buffer too short")
