package packets

// Tag protocol identifiers
const (
	tpid8021Q  uint16 = 0x8100
	tpid8021AD uint16 = 0x88a8
)

// VlanTagSize is the size of a VLAN tag in bytes
const VlanTagSize = 4

// VlanTag is an IEEE 802.1Q tag
//
//	+-----------+---------+-------+---------+
//	|  16 bits  | 3 bits  | 1 bit | 12 bits |
//	+-----------+---------+-------+---------+
//	|   TPID    |   PCP   |  DEI  |   VID   |
//	+-----------+---------+-------+---------+
type VlanTag struct {
	TPID uint16
	TCI  uint16
}

// SizeOf returns the size of a VLAN tag
func (t *VlanTag) SizeOf() int {
	return VlanTagSize
}

// UnmarshalFrom decodes t from b
func (t *VlanTag) UnmarshalFrom(b []byte) {
	t.TPID = ntohs(b[0:2])
	t.TCI = ntohs(b[2:4])
}

// MarshalTo encodes t into b
func (t *VlanTag) MarshalTo(b []byte) {
	htons(b[0:2], t.TPID)
	htons(b[2:4], t.TCI)
}

// Priority returns the 3-bit priority code point
func (t VlanTag) Priority() uint8 {
	return uint8(t.TCI >> 13)
}

// SetPriority sets the priority code point. Only the lower 3 bits of p are used.
func (t *VlanTag) SetPriority(p uint8) {
	t.TCI = t.TCI&0x1fff | uint16(p&0x07)<<13
}

// DropEligible returns the drop eligible indicator
func (t VlanTag) DropEligible() bool {
	return t.TCI&0x1000 != 0
}

// SetDropEligible sets the drop eligible indicator
func (t *VlanTag) SetDropEligible(dei bool) {
	t.TCI &^= 0x1000
	if dei {
		t.TCI |= 0x1000
	}
}

// Identifier returns the 12-bit VLAN ID
func (t VlanTag) Identifier() uint16 {
	return t.TCI & 0x0fff
}

// SetIdentifier sets the VLAN ID. Only the lower 12 bits of id are used.
func (t *VlanTag) SetIdentifier(id uint16) {
	t.TCI = t.TCI&0xf000 | id&0x0fff
}

// chunk8021Q is the part of a single tagged header following the source address
type chunk8021Q struct {
	tag       VlanTag
	etherType uint16
}

func (c *chunk8021Q) SizeOf() int {
	return VlanTagSize + 2
}

func (c *chunk8021Q) UnmarshalFrom(b []byte) {
	c.tag.UnmarshalFrom(b[0:4])
	c.etherType = ntohs(b[4:6])
}

func (c *chunk8021Q) MarshalTo(b []byte) {
	c.tag.MarshalTo(b[0:4])
	htons(b[4:6], c.etherType)
}

// chunk8021AD is the part of a double tagged header following the source address.
// The service tag comes first, followed by the customer tag.
type chunk8021AD struct {
	stag      VlanTag
	ctag      VlanTag
	etherType uint16
}

func (c *chunk8021AD) SizeOf() int {
	return 2*VlanTagSize + 2
}

func (c *chunk8021AD) UnmarshalFrom(b []byte) {
	c.stag.UnmarshalFrom(b[0:4])
	c.ctag.UnmarshalFrom(b[4:8])
	c.etherType = ntohs(b[8:10])
}

func (c *chunk8021AD) MarshalTo(b []byte) {
	c.stag.MarshalTo(b[0:4])
	c.ctag.MarshalTo(b[4:8])
	htons(b[8:10], c.etherType)
}
