package transport

import (
	"errors"
	"sync"
)

// Fake is an in-process Transport test double — the same role
// fuse/dummyfuse.go's DummyFuse plays for the raw FUSE interface: a
// minimal stand-in a test can drive directly without a real kernel or
// IPC layer underneath. It resolves each RemoteAddr against a registry
// of byte slices the test binds ahead of time, standing in for the
// real cross-address-space copy a kernel would perform.
type Fake struct {
	mu      sync.Mutex
	pending []fakeRequest
	replies map[int][]byte
	remotes map[RemoteAddr][]byte
	next    RemoteAddr
}

type fakeRequest struct {
	senderID int
	msg      []byte
}

// NewFake constructs an empty Fake transport.
func NewFake() *Fake {
	return &Fake{replies: map[int][]byte{}, remotes: map[RemoteAddr][]byte{}}
}

// Bind registers buf as the memory backing a fresh RemoteAddr and
// returns that address, for a test to embed into a request it Enqueues.
func (f *Fake) Bind(buf []byte) RemoteAddr {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	addr := f.next
	f.remotes[addr] = buf
	// Reserve the whole [addr, addr+len(buf)) range so no later Bind
	// hands out an address that falls inside this buffer.
	f.next += RemoteAddr(len(buf))
	return addr
}

// Enqueue stages a request as though senderID had sent msg, to be
// returned by a future Receive call.
func (f *Fake) Enqueue(senderID int, msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fakeRequest{senderID, append([]byte(nil), msg...)})
}

// Receive implements Transport, except that it never blocks: with
// nothing queued it returns ErrNoRequest at once.
func (f *Fake) Receive(msg []byte) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return 0, 0, ErrNoRequest
	}
	req := f.pending[0]
	f.pending = f.pending[1:]
	n := copy(msg, req.msg)
	return req.senderID, n, nil
}

// Reply implements Transport, recording msg for LastReply.
func (f *Fake) Reply(senderID int, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[senderID] = append([]byte(nil), msg...)
	return nil
}

// LastReply returns the most recent reply sent to senderID.
func (f *Fake) LastReply(senderID int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies[senderID]
}

// resolve finds the Bind-registered buffer that addr falls within and
// returns the sub-slice starting at addr's offset into it. Engine
// callers compute addr as base+offset per translated block (see
// engine.Read/Write), so an exact-match lookup on the base address
// alone isn't enough once a request spans more than one block.
func (f *Fake) resolve(addr RemoteAddr, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for base, buf := range f.remotes {
		if addr < base {
			continue
		}
		off := int(addr - base)
		if off+n <= len(buf) {
			return buf[off : off+n], nil
		}
	}
	return nil, ErrUnknownRemote
}

// CopyFrom implements Transport by copying out of the slice bound to
// remote.
func (f *Fake) CopyFrom(senderID int, local []byte, remote RemoteAddr, n int) error {
	buf, err := f.resolve(remote, n)
	if err != nil {
		return err
	}
	copy(local[:n], buf)
	return nil
}

// CopyTo implements Transport by copying into the slice bound to
// remote.
func (f *Fake) CopyTo(senderID int, remote RemoteAddr, local []byte, n int) error {
	buf, err := f.resolve(remote, n)
	if err != nil {
		return err
	}
	copy(buf, local[:n])
	return nil
}

// ErrNoRequest is returned by Receive when nothing is queued.
var ErrNoRequest = errors.New("transport: no pending request")

// ErrUnknownRemote is returned when a RemoteAddr was never Bind'd.
var ErrUnknownRemote = errors.New("transport: unknown remote address")
