package packets

import (
	"encoding/binary"

	"github.com/bio-routing/framehouse/pkg/mbuf"
)

// Header is a fixed layout wire header. SizeOf returns the nominal size, which
// may be smaller than the instance length when optional parts are present.
type Header interface {
	mbuf.Marshaler
	mbuf.Unmarshaler
}

// Header fields are kept in network byte order inside the buffer and are
// converted on every access.

func ntohs(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func htons(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}
