// Package dispatch implements the single receive/decode/invoke/reply
// loop spec.md §5 describes: one Dispatcher serves requests strictly
// sequentially against one Engine, mirroring the teacher's
// MountState.Loop (fuse/mountstate.go) translating raw FUSE requests
// into RawFileSystem calls, but without that loop's goroutine pool —
// this server has exactly one worker, by design (spec.md §5's
// single-threaded requirement).
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yfsproj/yfsd/disk"
	"github.com/yfsproj/yfsd/engine"
	"github.com/yfsproj/yfsd/metrics"
	"github.com/yfsproj/yfsd/protocol"
	"github.com/yfsproj/yfsd/transport"
)

// maxMessageSize bounds the fixed-width request structs protocol
// defines; the largest (LinkRequest/ReadlinkRequest) is 32 bytes, so
// this leaves generous headroom without needing a length-prefixed
// frame.
const maxMessageSize = 64

// Dispatcher binds one Engine to one Transport.
type Dispatcher struct {
	eng *engine.Engine
	tr  transport.Transport
	log *logrus.Entry
	met *metrics.Metrics
}

// New constructs a Dispatcher.
func New(eng *engine.Engine, tr transport.Transport, log *logrus.Entry, met *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if met == nil {
		met = metrics.NoOp()
	}
	return &Dispatcher{eng: eng, tr: tr, log: log, met: met}
}

// Serve runs ServeOne in a loop until ctx is cancelled or a
// non-recoverable transport error occurs.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.ServeOne(); err != nil {
			if errors.Is(err, transport.ErrNoRequest) {
				continue
			}
			return err
		}
	}
}

// ServeOne receives exactly one request, dispatches it, and replies.
func (d *Dispatcher) ServeOne() error {
	var raw [maxMessageSize]byte
	senderID, n, err := d.tr.Receive(raw[:])
	if err != nil {
		return err
	}

	reqID := uuid.New().String()
	start := time.Now()
	op, reply := d.handle(senderID, raw[:n])
	d.met.ObserveOp(op, start, replyErr(reply))

	d.log.WithFields(logrus.Fields{
		"request_id": reqID,
		"sender_id":  senderID,
		"op":         op,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("handled request")

	return d.tr.Reply(senderID, reply)
}

// replyErr is used only to decide whether ObserveOp should count an
// error; it inspects the encoded status word every reply leads with.
func replyErr(reply []byte) error {
	if len(reply) < 4 {
		return nil
	}
	status := int32(reply[0]) | int32(reply[1])<<8 | int32(reply[2])<<16 | int32(reply[3])<<24
	if protocol.ErrCode(status) != protocol.OK {
		return errStatus
	}
	return nil
}

var errStatus = errors.New("dispatch: non-OK status")

// toErrCode flattens an engine sentinel error to the wire protocol.ErrCode,
// the one boundary spec.md §7 calls for.
func toErrCode(err error) protocol.ErrCode {
	switch {
	case err == nil:
		return protocol.OK
	case errors.Is(err, engine.ErrNotFound):
		return protocol.ENotFound
	case errors.Is(err, engine.ErrNotDirectory):
		return protocol.ENotDirectory
	case errors.Is(err, engine.ErrIsDirectory):
		return protocol.EIsDirectory
	case errors.Is(err, engine.ErrExists):
		return protocol.EExists
	case errors.Is(err, engine.ErrNotEmpty):
		return protocol.ENotEmpty
	case errors.Is(err, engine.ErrNoSpace):
		return protocol.ENoSpace
	case errors.Is(err, engine.ErrTooManySymlinks):
		return protocol.ETooManySymlinks
	case errors.Is(err, engine.ErrInvalidArgument):
		return protocol.EInvalidArgument
	case errors.Is(err, engine.ErrNameTooLong):
		return protocol.ENameTooLong
	case errors.Is(err, engine.ErrTrailingSlash):
		return protocol.EInvalidArgument
	case errors.Is(err, engine.ErrNotRegularFile):
		return protocol.ENotRegularFile
	default:
		return protocol.EIO
	}
}

// handle decodes one request by opcode, invokes the matching engine
// operation, and encodes its reply. It returns an operation name (for
// metrics/logging) and the encoded reply bytes.
func (d *Dispatcher) handle(senderID int, msg []byte) (string, []byte) {
	var hdr protocol.MessageHeader
	if err := hdr.UnmarshalBinary(msg); err != nil {
		reply, _ := protocol.GenericReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return "decode", reply
	}

	switch hdr.Num {
	case protocol.Open:
		return "open", d.handleOpen(senderID, msg)
	case protocol.Create:
		return "create", d.handleCreate(senderID, msg)
	case protocol.Read:
		return "read", d.handleRead(senderID, msg)
	case protocol.Write:
		return "write", d.handleWrite(senderID, msg)
	case protocol.Seek:
		return "seek", d.handleSeek(msg)
	case protocol.Link:
		return "link", d.handleLink(senderID, msg)
	case protocol.Unlink:
		return "unlink", d.handlePath(senderID, msg, func(p string, cwd int32) error {
			return d.eng.Unlink(p, cwd)
		})
	case protocol.Symlink:
		return "symlink", d.handleLink(senderID, msg)
	case protocol.Readlink:
		return "readlink", d.handleReadlink(senderID, msg)
	case protocol.Mkdir:
		return "mkdir", d.handlePathInode(senderID, msg, d.eng.Mkdir)
	case protocol.Rmdir:
		return "rmdir", d.handlePath(senderID, msg, func(p string, cwd int32) error {
			return d.eng.Rmdir(p, cwd)
		})
	case protocol.Chdir:
		return "chdir", d.handlePathInode(senderID, msg, d.eng.Chdir)
	case protocol.Stat:
		return "stat", d.handleStat(senderID, msg)
	case protocol.Sync:
		return "sync", d.handleGeneric(d.eng.Sync)
	case protocol.Shutdown:
		return "shutdown", d.handleGeneric(d.eng.Shutdown)
	default:
		reply, _ := protocol.GenericReply{Status: int32(protocol.EInvalidArgument)}.MarshalBinary()
		return "unknown", reply
	}
}

func (d *Dispatcher) fetchPath(senderID int, addr transport.RemoteAddr, length int32) (string, error) {
	if length <= 0 || length >= disk.MaxPathNameLen {
		return "", engine.ErrNameTooLong
	}
	buf := make([]byte, length)
	if err := d.tr.CopyFrom(senderID, buf, addr, int(length)); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *Dispatcher) handleGeneric(op func() error) []byte {
	reply, _ := protocol.GenericReply{Status: int32(toErrCode(op()))}.MarshalBinary()
	return reply
}

// handlePathInode covers operations keyed by a single path that return
// an inode number (Mkdir, Chdir). The request shape is a
// protocol.PathRequest immediately followed, out of band, by the
// pathname bytes at a remote address the caller is expected to have
// already staged — see handlePath for the one that doesn't need the
// resulting inode.
func (d *Dispatcher) handlePathInode(senderID int, msg []byte, op func(path string, cwd int32) (int32, error)) []byte {
	var req protocol.PathRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.InodeReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	path, err := d.fetchPath(senderID, req.Addr, req.Len)
	if err == nil {
		var inum int32
		inum, err = op(path, req.CurrentInode)
		r, _ := protocol.InodeReply{Status: int32(toErrCode(err)), Inode: inum}.MarshalBinary()
		return r
	}
	r, _ := protocol.InodeReply{Status: int32(toErrCode(err))}.MarshalBinary()
	return r
}

func (d *Dispatcher) handlePath(senderID int, msg []byte, op func(path string, cwd int32) error) []byte {
	var req protocol.PathRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.GenericReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	path, err := d.fetchPath(senderID, req.Addr, req.Len)
	if err == nil {
		err = op(path, req.CurrentInode)
	}
	r, _ := protocol.GenericReply{Status: int32(toErrCode(err))}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleOpen(senderID int, msg []byte) []byte {
	return d.handlePathInode(senderID, msg, d.eng.Open)
}

func (d *Dispatcher) handleCreate(senderID int, msg []byte) []byte {
	var req protocol.CreateRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.InodeReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	path, err := d.fetchPath(senderID, req.Addr, req.Len)
	if err == nil {
		var inum int32
		inum, err = d.eng.Create(path, req.CurrentInode, req.Hint)
		r, _ := protocol.InodeReply{Status: int32(toErrCode(err)), Inode: inum}.MarshalBinary()
		return r
	}
	r, _ := protocol.InodeReply{Status: int32(toErrCode(err))}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleRead(senderID int, msg []byte) []byte {
	var req protocol.FileRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.CountReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	client := transport.Bound{T: d.tr, SenderID: senderID}
	n, err := d.eng.Read(req.InodeNum, req.Addr, req.Size, req.Offset, client)
	r, _ := protocol.CountReply{Status: int32(toErrCode(err)), Count: n}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleWrite(senderID int, msg []byte) []byte {
	var req protocol.FileRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.CountReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	client := transport.Bound{T: d.tr, SenderID: senderID}
	n, err := d.eng.Write(req.InodeNum, req.Addr, req.Size, req.Offset, client)
	r, _ := protocol.CountReply{Status: int32(toErrCode(err)), Count: n}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleSeek(msg []byte) []byte {
	var req protocol.SeekRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.SeekReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	pos, err := d.eng.Seek(req.InodeNum, req.Offset, req.Whence, req.CurrentPosition)
	r, _ := protocol.SeekReply{Status: int32(toErrCode(err)), Position: pos}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleLink(senderID int, msg []byte) []byte {
	var req protocol.LinkRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.InodeReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	oldPath, err := d.fetchPath(senderID, req.OldAddr, req.OldLen)
	if err != nil {
		r, _ := protocol.InodeReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	newPath, err := d.fetchPath(senderID, req.NewAddr, req.NewLen)
	if err != nil {
		r, _ := protocol.InodeReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}

	var inum int32
	if req.Num == protocol.Symlink {
		inum, err = d.eng.Symlink(oldPath, newPath, req.CurrentInode)
	} else {
		inum, err = d.eng.Link(oldPath, newPath, req.CurrentInode)
	}
	r, _ := protocol.InodeReply{Status: int32(toErrCode(err)), Inode: inum}.MarshalBinary()
	return r
}

func (d *Dispatcher) handleReadlink(senderID int, msg []byte) []byte {
	var req protocol.ReadlinkRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.ReadlinkReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	path, err := d.fetchPath(senderID, req.PathAddr, req.PathLen)
	if err != nil {
		r, _ := protocol.ReadlinkReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	target, err := d.eng.Readlink(path, req.CurrentInode)
	if err != nil {
		r, _ := protocol.ReadlinkReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	n := int32(len(target))
	if n > req.BufLen {
		n = req.BufLen
	}
	if err := d.tr.CopyTo(senderID, req.BufAddr, []byte(target)[:n], int(n)); err != nil {
		r, _ := protocol.ReadlinkReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	r, _ := protocol.ReadlinkReply{Status: int32(protocol.OK), Len: n}.MarshalBinary()
	return r
}

// handleStat mirrors message_stat/yfsStat: the record is copied into
// the client's own statbuf via CopyTo, not returned inline — the reply
// is just a status, same as every other operation that doesn't hand
// back an inode number.
func (d *Dispatcher) handleStat(senderID int, msg []byte) []byte {
	var req protocol.StatRequest
	if err := req.UnmarshalBinary(msg); err != nil {
		r, _ := protocol.GenericReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	path, err := d.fetchPath(senderID, req.Addr, req.Len)
	if err != nil {
		r, _ := protocol.GenericReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	inum, err := d.eng.Resolve(path, req.CurrentInode)
	if err != nil {
		r, _ := protocol.GenericReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	st, err := d.eng.Stat(inum)
	if err != nil {
		r, _ := protocol.GenericReply{Status: int32(toErrCode(err))}.MarshalBinary()
		return r
	}
	rec, _ := protocol.StatRecord{
		Inum:  st.Inum,
		Nlink: int32(st.Nlink),
		Size:  st.Size,
		Type:  int32(st.Type),
	}.MarshalBinary()
	if err := d.tr.CopyTo(senderID, req.StatAddr, rec, len(rec)); err != nil {
		r, _ := protocol.GenericReply{Status: int32(protocol.EIO)}.MarshalBinary()
		return r
	}
	r, _ := protocol.GenericReply{Status: int32(protocol.OK)}.MarshalBinary()
	return r
}
