// Package framedecoder fills frame records from sampled Ethernet headers
package framedecoder

import (
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/bio-routing/framehouse/pkg/packets"
	"github.com/pkg/errors"
)

// Decode parses the Ethernet header at the start of data and sets EtherType,
// the VLAN ids and the priority of fr. It returns the number of VLAN tags found.
// data is copied into an Mbuf taken from pool that is returned before Decode returns.
func Decode(pool *mbuf.Pool, data []byte, fr *frame.Frame) (int, error) {
	m, err := pool.FromBytes(data)
	if err != nil {
		return 0, errors.Wrap(err, "Unable to load sampled frame")
	}
	defer m.Free()

	eth, err := packets.ParseEthernet(m)
	if err != nil {
		return 0, err
	}
	defer eth.Deparse()

	fr.EtherType = uint16(eth.EtherType())

	tags := eth.VlanTags()
	switch len(tags) {
	case 0:
	case 1:
		fr.OuterVLAN = tags[0].Identifier()
		fr.Priority = tags[0].Priority()
	default:
		fr.OuterVLAN = tags[0].Identifier()
		fr.InnerVLAN = tags[1].Identifier()
		fr.Priority = tags[0].Priority()
	}

	return len(tags), nil
}
