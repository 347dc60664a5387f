package packets

// udpPacket is an untagged IPv4/UDP frame
var udpPacket = []byte{
	// ethernet header
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	0x08, 0x00,
	// ipv4 header
	0x45, 0x00, 0x00, 0x26, 0xab, 0x49, 0x40, 0x00, 0xff, 0x11,
	0xf7, 0x00, 0x8b, 0x85, 0xd9, 0x6e, 0x8b, 0x85, 0xe9, 0x02,
	// udp header
	0x99, 0xd0, 0x04, 0x3f, 0x00, 0x12, 0x72, 0x28,
	// udp payload
	0x68, 0x65, 0x6c, 0x6c, 0x6f, 0x20, 0x77, 0x6f, 0x72, 0x6c,
	0x64, 0x21, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// arpPacket is an untagged 64 byte ARP reply
var arpPacket = []byte{
	// ethernet header
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	0x08, 0x06,
	// payload
	0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x02, 0x00, 0x19,
	0x06, 0xea, 0xb8, 0xc1, 0xc0, 0xa8, 0x7b, 0x01, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xc0, 0xa8, 0x7b, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// vlan8021QPacket is an ARP reply with a single 802.1Q tag
var vlan8021QPacket = []byte{
	// ethernet header
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	// tpid
	0x81, 0x00,
	// tci
	0x00, 0x7b,
	// ether type
	0x08, 0x06,
	// payload
	0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x02, 0x00, 0x19,
	0x06, 0xea, 0xb8, 0xc1, 0xc0, 0xa8, 0x7b, 0x01, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xc0, 0xa8, 0x7b, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// vlan8021ADPacket is an ARP reply double tagged as per 802.1ad
var vlan8021ADPacket = []byte{
	// ethernet header
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	// s-tag tpid
	0x88, 0xa8,
	// s-tag tci
	0x00, 0x1e,
	// c-tag tpid
	0x81, 0x00,
	// c-tag tci
	0x20, 0x65,
	// ether type
	0x08, 0x06,
	// payload
	0x00, 0x01, 0x08, 0x00, 0x06, 0x04, 0x00, 0x02, 0x00, 0x19,
	0x06, 0xea, 0xb8, 0xc1, 0xc0, 0xa8, 0x7b, 0x01, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xc0, 0xa8, 0x7b, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}
