package packets

import (
	"fmt"

	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/pkg/errors"

	hnet "github.com/bio-routing/framehouse/pkg/net"
)

const (
	// EthernetHeaderSize is the nominal size of an Ethernet header, i.e. without VLAN tags
	EthernetHeaderSize = 14

	chunkOffset = 2 * hnet.MacAddrSize
)

// EthernetHeader is the untagged layout of an Ethernet II header
//
//	+-----------+-----------+----------+
//	|  Dst MAC  |  Src MAC  |   Type   |
//	+-----------+-----------+----------+
//	   6 bytes     6 bytes    2 bytes
//
// The type field doubles as the tag protocol identifier of 802.1Q (0x8100)
// and 802.1ad (0x88a8) tagged frames, in which case the real EtherType
// follows the tag(s).
type EthernetHeader struct {
	Dst        hnet.MacAddr
	Src        hnet.MacAddr
	TypeOrTPID uint16
}

// SizeOf returns the nominal header size
func (h *EthernetHeader) SizeOf() int {
	return EthernetHeaderSize
}

// UnmarshalFrom decodes h from b
func (h *EthernetHeader) UnmarshalFrom(b []byte) {
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.TypeOrTPID = ntohs(b[12:14])
}

// MarshalTo encodes h into b
func (h *EthernetHeader) MarshalTo(b []byte) {
	copy(b[0:6], h.Dst[:])
	copy(b[6:12], h.Src[:])
	htons(b[12:14], h.TypeOrTPID)
}

var _ Packet[*mbuf.Mbuf] = (*Ethernet)(nil)

// Ethernet is an Ethernet II frame, optionally tagged as per IEEE 802.1Q or
// double tagged as per IEEE 802.1ad. The frame check sequence is not part of
// the buffer.
type Ethernet struct {
	envelope handle[*mbuf.Mbuf]
	offset   int
}

// ParseEthernet parses the Ethernet header at the payload offset of m
func ParseEthernet(m *mbuf.Mbuf) (*Ethernet, error) {
	offset := m.PayloadOffset()

	err := ensureLen(m, offset, EthernetHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read ethernet header")
	}

	e := &Ethernet{
		envelope: attach(m),
		offset:   offset,
	}

	// Only the nominal 14 bytes are known to be there. The tags, if any, must
	// be confirmed before anything looks past the marker.
	err = ensureLen(m, offset, e.HeaderLen())
	if err != nil {
		return nil, errors.Wrap(err, "Truncated VLAN tagged ethernet header")
	}

	return e, nil
}

// PushEthernet inserts a zeroed, untagged Ethernet header at the payload offset of m
func PushEthernet(m *mbuf.Mbuf) (*Ethernet, error) {
	offset := m.PayloadOffset()

	err := m.Extend(offset, EthernetHeaderSize)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to make room for ethernet header")
	}

	err = m.WriteHeader(offset, &EthernetHeader{})
	if err != nil {
		return nil, errors.Wrap(err, "Unable to write ethernet header")
	}

	return &Ethernet{
		envelope: attach(m),
		offset:   offset,
	}, nil
}

func (e *Ethernet) header() []byte {
	return view(e.envelope.get(), e.offset, EthernetHeaderSize)
}

func (e *Ethernet) chunk(c Header) []byte {
	return view(e.envelope.get(), e.offset+chunkOffset, c.SizeOf())
}

// Src returns the source MAC address
func (e *Ethernet) Src() hnet.MacAddr {
	var src hnet.MacAddr
	copy(src[:], e.header()[6:12])
	return src
}

// SetSrc sets the source MAC address
func (e *Ethernet) SetSrc(src hnet.MacAddr) {
	copy(e.header()[6:12], src[:])
}

// Dst returns the destination MAC address
func (e *Ethernet) Dst() hnet.MacAddr {
	var dst hnet.MacAddr
	copy(dst[:], e.header()[0:6])
	return dst
}

// SetDst sets the destination MAC address
func (e *Ethernet) SetDst(dst hnet.MacAddr) {
	copy(e.header()[0:6], dst[:])
}

// SwapAddresses exchanges source and destination MAC address
func (e *Ethernet) SwapAddresses() {
	src, dst := e.Src(), e.Dst()
	e.SetSrc(dst)
	e.SetDst(src)
}

// vlanMarker returns the field that is either the EtherType or a tag protocol identifier
func (e *Ethernet) vlanMarker() uint16 {
	return ntohs(e.header()[12:14])
}

// IsVlan8021Q checks if the frame carries a single 802.1Q tag
func (e *Ethernet) IsVlan8021Q() bool {
	return e.vlanMarker() == tpid8021Q
}

// IsVlan8021AD checks if the frame is double tagged as per 802.1ad
func (e *Ethernet) IsVlan8021AD() bool {
	return e.vlanMarker() == tpid8021AD
}

// EtherType returns the protocol identifier of the payload
func (e *Ethernet) EtherType() EtherType {
	switch e.vlanMarker() {
	case tpid8021Q:
		c := &chunk8021Q{}
		c.UnmarshalFrom(e.chunk(c))
		return EtherType(c.etherType)
	case tpid8021AD:
		c := &chunk8021AD{}
		c.UnmarshalFrom(e.chunk(c))
		return EtherType(c.etherType)
	default:
		return EtherType(e.vlanMarker())
	}
}

// SetEtherType sets the protocol identifier of the payload. The tags are left untouched.
// On an untagged frame a tag protocol identifier is only accepted if the bytes
// following the header can hold the tag(s) it announces.
func (e *Ethernet) SetEtherType(t EtherType) error {
	switch e.vlanMarker() {
	case tpid8021Q:
		c := &chunk8021Q{}
		b := e.chunk(c)
		c.UnmarshalFrom(b)
		c.etherType = uint16(t)
		c.MarshalTo(b)
	case tpid8021AD:
		c := &chunk8021AD{}
		b := e.chunk(c)
		c.UnmarshalFrom(b)
		c.etherType = uint16(t)
		c.MarshalTo(b)
	default:
		err := ensureLen(e.envelope.get(), e.offset, headerLenFor(uint16(t)))
		if err != nil {
			return errors.Wrapf(err, "Unable to set ether type %s", t)
		}

		htons(e.header()[12:14], uint16(t))
	}

	return nil
}

// VlanTags returns copies of the VLAN tags present, outer tag first
func (e *Ethernet) VlanTags() []VlanTag {
	switch e.vlanMarker() {
	case tpid8021Q:
		c := &chunk8021Q{}
		c.UnmarshalFrom(e.chunk(c))
		return []VlanTag{c.tag}
	case tpid8021AD:
		c := &chunk8021AD{}
		c.UnmarshalFrom(e.chunk(c))
		return []VlanTag{c.stag, c.ctag}
	default:
		return nil
	}
}

// Envelope returns the buffer the frame lives in
func (e *Ethernet) Envelope() *mbuf.Mbuf {
	return e.envelope.get()
}

// Mbuf returns the buffer the frame lives in
func (e *Ethernet) Mbuf() *mbuf.Mbuf {
	return e.envelope.get()
}

// Offset returns the offset of the header in the buffer
func (e *Ethernet) Offset() int {
	return e.offset
}

// HeaderLen returns 14, 18 or 22 depending on the number of VLAN tags
func (e *Ethernet) HeaderLen() int {
	return headerLenFor(e.vlanMarker())
}

func headerLenFor(marker uint16) int {
	switch marker {
	case tpid8021Q:
		return EthernetHeaderSize + VlanTagSize
	case tpid8021AD:
		return EthernetHeaderSize + 2*VlanTagSize
	default:
		return EthernetHeaderSize
	}
}

// PayloadOffset returns the offset of the first byte after the header
func (e *Ethernet) PayloadOffset() int {
	return e.offset + e.HeaderLen()
}

// Len returns the length of the frame including its payload
func (e *Ethernet) Len() int {
	return e.Mbuf().DataLen() - e.offset
}

// Remove cuts the header out of the buffer and hands the buffer back
func (e *Ethernet) Remove() (*mbuf.Mbuf, error) {
	if !e.envelope.attached {
		return nil, ErrPacketDetached
	}

	err := e.Mbuf().Shrink(e.offset, e.HeaderLen())
	if err != nil {
		return nil, errors.Wrap(err, "Unable to remove ethernet header")
	}

	return e.envelope.release()
}

// Deparse hands the buffer back without touching it
func (e *Ethernet) Deparse() *mbuf.Mbuf {
	m, err := e.envelope.release()
	if err != nil {
		panic(err)
	}

	return m
}

func (e *Ethernet) String() string {
	return fmt.Sprintf("ethernet src=%s dst=%s ether_type=%s vlan=%t offset=%d len=%d header_len=%d",
		e.Src(), e.Dst(), e.EtherType(), e.IsVlan8021Q() || e.IsVlan8021AD(), e.Offset(), e.Len(), e.HeaderLen())
}
