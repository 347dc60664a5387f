// Package mbuf provides fixed capacity packet buffers with in place insertion and removal of bytes
package mbuf

import (
	"github.com/pkg/errors"
)

const (
	// DefaultCapacity is large enough for a jumbo-less Ethernet frame including two VLAN tags
	DefaultCapacity = 2048
)

// Unmarshaler is a fixed layout value that can be decoded from a byte range
type Unmarshaler interface {
	SizeOf() int
	UnmarshalFrom(b []byte)
}

// Marshaler is a fixed layout value that can be encoded into a byte range
type Marshaler interface {
	SizeOf() int
	MarshalTo(b []byte)
}

// Mbuf is a contiguous byte region with a fixed capacity and a current data length.
// Copying the *Mbuf handle does not copy the bytes.
type Mbuf struct {
	buf     []byte
	dataLen int
	pool    *Pool
	// pooled is set while m sits in its pool
	pooled bool
}

// New creates an empty Mbuf with the given capacity
func New(capacity int) *Mbuf {
	return &Mbuf{
		buf: make([]byte, capacity),
	}
}

// FromBytes creates an Mbuf of DefaultCapacity holding a copy of data
func FromBytes(data []byte) (*Mbuf, error) {
	m := New(DefaultCapacity)
	err := m.load(data)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Mbuf) load(data []byte) error {
	if len(data) > len(m.buf) {
		return errors.Wrapf(ErrCapacityExceeded, "%d bytes do not fit into %d", len(data), len(m.buf))
	}

	m.dataLen = copy(m.buf, data)
	return nil
}

// Mbuf returns m itself. A raw buffer is the outermost envelope of every packet.
func (m *Mbuf) Mbuf() *Mbuf {
	return m
}

// PayloadOffset of a raw buffer is always 0
func (m *Mbuf) PayloadOffset() int {
	return 0
}

// DataLen returns the number of occupied bytes
func (m *Mbuf) DataLen() int {
	return m.dataLen
}

// Capacity returns the size of the backing memory
func (m *Mbuf) Capacity() int {
	return len(m.buf)
}

// Data returns the occupied bytes. The slice is only valid until the next Extend or Shrink.
func (m *Mbuf) Data() []byte {
	return m.buf[:m.dataLen]
}

func (m *Mbuf) checkRange(offset, n int) error {
	if offset < 0 || n < 0 || offset+n > m.dataLen {
		return rangeInvalid(offset, n, m.dataLen)
	}

	return nil
}

// ReadData returns a mutable view of n bytes at offset
func (m *Mbuf) ReadData(offset, n int) ([]byte, error) {
	err := m.checkRange(offset, n)
	if err != nil {
		return nil, err
	}

	return m.buf[offset : offset+n : offset+n], nil
}

// WriteData copies b into the buffer at offset. The range must already be occupied.
func (m *Mbuf) WriteData(offset int, b []byte) error {
	err := m.checkRange(offset, len(b))
	if err != nil {
		return err
	}

	copy(m.buf[offset:], b)
	return nil
}

// ReadHeader decodes h from the bytes at offset
func (m *Mbuf) ReadHeader(offset int, h Unmarshaler) error {
	b, err := m.ReadData(offset, h.SizeOf())
	if err != nil {
		return err
	}

	h.UnmarshalFrom(b)
	return nil
}

// WriteHeader encodes h into the bytes at offset
func (m *Mbuf) WriteHeader(offset int, h Marshaler) error {
	b, err := m.ReadData(offset, h.SizeOf())
	if err != nil {
		return err
	}

	h.MarshalTo(b)
	return nil
}

// Extend inserts n zero bytes at offset, moving the trailing data towards the end
func (m *Mbuf) Extend(offset, n int) error {
	if offset < 0 || n < 0 || offset > m.dataLen {
		return rangeInvalid(offset, n, m.dataLen)
	}

	if m.dataLen+n > len(m.buf) {
		return errors.Wrapf(ErrCapacityExceeded, "unable to extend %d bytes by %d, capacity %d", m.dataLen, n, len(m.buf))
	}

	copy(m.buf[offset+n:m.dataLen+n], m.buf[offset:m.dataLen])
	clear(m.buf[offset : offset+n])
	m.dataLen += n

	return nil
}

// Shrink removes n bytes at offset, moving the trailing data towards the front
func (m *Mbuf) Shrink(offset, n int) error {
	err := m.checkRange(offset, n)
	if err != nil {
		return err
	}

	copy(m.buf[offset:], m.buf[offset+n:m.dataLen])
	m.dataLen -= n
	clear(m.buf[m.dataLen : m.dataLen+n])

	return nil
}

// Reset drops all data
func (m *Mbuf) Reset() {
	clear(m.buf[:m.dataLen])
	m.dataLen = 0
}

// Free hands m back to the pool it came from. m must not be used afterwards.
func (m *Mbuf) Free() {
	if m.pool == nil {
		return
	}

	m.pool.Put(m)
}
