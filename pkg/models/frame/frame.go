package frame

import (
	"github.com/bio-routing/framehouse/pkg/packets"

	bnet "github.com/bio-routing/bio-rd/net"
	log "github.com/sirupsen/logrus"
)

// Frame is the layer 2 view of one or more sampled Ethernet frames
type Frame struct {
	Agent      bnet.IP
	IntIn      uint32
	IntOut     uint32
	EtherType  uint16
	OuterVLAN  uint16
	InnerVLAN  uint16
	Priority   uint8
	Packets    uint64
	Size       uint64
	Samplerate uint64
	Timestamp  int64
}

// Add adds up two frame records
func (fr *Frame) Add(a *Frame) {
	fr.Size += a.Size
	fr.Packets += a.Packets
}

// Fields returns fr as log fields
func (fr *Frame) Fields() log.Fields {
	return log.Fields{
		"agent":      fr.Agent.String(),
		"int_in":     fr.IntIn,
		"int_out":    fr.IntOut,
		"ether_type": packets.EtherType(fr.EtherType).String(),
		"outer_vlan": fr.OuterVLAN,
		"inner_vlan": fr.InnerVLAN,
		"priority":   fr.Priority,
		"packets":    fr.Packets,
		"bytes":      fr.Size,
		"samplerate": fr.Samplerate,
		"timestamp":  fr.Timestamp,
	}
}
