// Package net provides link layer address types
package net

import (
	gonet "net"

	"github.com/pkg/errors"
)

// MacAddrSize is the size of a MAC address in bytes
const MacAddrSize = 6

// MacAddr is a 48-bit IEEE 802 MAC address. It is kept in wire order.
type MacAddr [MacAddrSize]byte

// MacAddrFromBytes creates a MacAddr from the first 6 bytes of b
func MacAddrFromBytes(b []byte) (MacAddr, error) {
	var m MacAddr
	if len(b) < MacAddrSize {
		return m, errors.Errorf("Invalid MAC address length: %d", len(b))
	}

	copy(m[:], b)
	return m, nil
}

// ParseMacAddr parses a colon, dash or dot separated 48-bit address
func ParseMacAddr(s string) (MacAddr, error) {
	hw, err := gonet.ParseMAC(s)
	if err != nil {
		return MacAddr{}, errors.Wrapf(err, "Unable to parse MAC address %q", s)
	}

	if len(hw) != MacAddrSize {
		return MacAddr{}, errors.Errorf("Not a 48-bit MAC address: %q", s)
	}

	return MacAddrFromBytes(hw)
}

// String formats m as six colon separated lower case hex octets
func (m MacAddr) String() string {
	return gonet.HardwareAddr(m[:]).String()
}

// IsBroadcast checks if m is ff:ff:ff:ff:ff:ff
func (m MacAddr) IsBroadcast() bool {
	return m == MacAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// IsMulticast checks the group bit of the first octet
func (m MacAddr) IsMulticast() bool {
	return m[0]&0x01 != 0
}
