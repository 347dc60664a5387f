// Package packets implements protocol layers as offset addressed views into an mbuf.Mbuf.
//
// A layer is created by parsing bytes already present in its envelope or by
// pushing a zeroed header into it, and ends with Remove (the header bytes are
// cut out of the buffer) or Deparse (the buffer is left untouched). Both hand
// the envelope back to the caller, after which the layer is detached and must
// not be used any more.
package packets

import (
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/pkg/errors"
)

// ErrPacketDetached is returned (or panicked with) when a removed or deparsed packet is used
var ErrPacketDetached = errors.New("Packet has been detached from its envelope")

// Envelope is the context a packet is encapsulated in. This is either the raw
// buffer or the packet of the next lower layer.
type Envelope interface {
	// Mbuf returns the buffer backing the envelope
	Mbuf() *mbuf.Mbuf

	// PayloadOffset returns the offset of the first byte following the envelope's header
	PayloadOffset() int
}

// Packet is the contract every protocol layer implements. E is the type of
// the envelope the layer is parsed from or pushed into.
type Packet[E Envelope] interface {
	// Mbuf returns the buffer shared by all layers of the packet
	Mbuf() *mbuf.Mbuf

	// PayloadOffset returns Offset() + HeaderLen(), where the next layer starts
	PayloadOffset() int

	// Envelope returns the encapsulating layer
	Envelope() E

	// Offset returns the offset of the header inside the buffer
	Offset() int

	// HeaderLen returns the instance length of the header
	HeaderLen() int

	// Len returns the number of bytes from the start of the header to the end of the buffer
	Len() int

	// Remove cuts the header out of the buffer and returns the envelope
	Remove() (E, error)

	// Deparse returns the envelope without modifying the buffer
	Deparse() E
}

// handle is the ownership token a packet holds on its envelope. It is given
// up exactly once by release.
type handle[E Envelope] struct {
	env      E
	attached bool
}

func attach[E Envelope](env E) handle[E] {
	return handle[E]{
		env:      env,
		attached: true,
	}
}

func (h *handle[E]) get() E {
	if !h.attached {
		panic(ErrPacketDetached)
	}

	return h.env
}

func (h *handle[E]) release() (E, error) {
	var zero E
	if !h.attached {
		return zero, ErrPacketDetached
	}

	env := h.env
	h.env = zero
	h.attached = false

	return env, nil
}

// view re-derives n bytes at offset from the envelope's buffer. Any failure
// means the buffer was resized behind the packet's back.
func view(env Envelope, offset, n int) []byte {
	b, err := env.Mbuf().ReadData(offset, n)
	if err != nil {
		panic(errors.Wrap(err, "Header no longer backed by buffer"))
	}

	return b
}

// ensureLen checks the buffer holds a header of headerLen bytes at offset
func ensureLen(env Envelope, offset, headerLen int) error {
	available := env.Mbuf().DataLen()
	if offset+headerLen > available {
		return &mbuf.OutOfBufferError{
			Required:  offset + headerLen,
			Available: available,
		}
	}

	return nil
}
