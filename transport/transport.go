// Package transport names the four IPC primitives spec.md treats as
// external collaborators: receiving a request message, replying to
// one, and copying bytes into or out of the requesting client's own
// memory. Only the interface is consumed here — the real
// implementation (kernel IPC, cross-address-space copy) is out of
// scope, mirroring how the teacher's RawFileSystem is decoupled from
// its actual kernel transport (fuse/fuse.go's mount/device plumbing).
package transport

// RemoteAddr is an opaque pointer into a requesting client's own
// address space, exactly as message.h's message_path.pathname and
// message_file.buf are raw char*/void* values the server never
// dereferences directly — it hands them back to copy_from/copy_to and
// lets that primitive do the cross-address-space copy. Only a
// Transport implementation may interpret the value; dispatch just
// decodes it off the wire and forwards it.
type RemoteAddr int64

// Transport is the per-server collaborator a Dispatcher drives its
// request loop through.
type Transport interface {
	// Receive blocks for the next request, decoding it into msg, and
	// returns the sender's id and the number of bytes written.
	Receive(msg []byte) (senderID int, n int, err error)

	// Reply sends msg back to the client identified by senderID.
	Reply(senderID int, msg []byte) error

	// CopyFrom copies n bytes out of the client senderID's memory at
	// remote into local.
	CopyFrom(senderID int, local []byte, remote RemoteAddr, n int) error

	// CopyTo copies n bytes of local into the client senderID's memory
	// at remote.
	CopyTo(senderID int, remote RemoteAddr, local []byte, n int) error
}

// Bound binds a Transport to one senderID for the duration of a single
// request, satisfying engine.Remote without threading senderID through
// every call.
type Bound struct {
	T        Transport
	SenderID int
}

func (b Bound) CopyTo(remote RemoteAddr, local []byte, n int) error {
	return b.T.CopyTo(b.SenderID, remote, local, n)
}

func (b Bound) CopyFrom(local []byte, remote RemoteAddr, n int) error {
	return b.T.CopyFrom(b.SenderID, local, remote, n)
}
