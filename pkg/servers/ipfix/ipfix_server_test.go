package ipfix

import (
	"encoding/binary"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/bio-routing/framehouse/pkg/packet/ipfix"
)

var testAgent = bnet.IPv4FromOctets(198, 51, 100, 1)

const testAgentStr = "198.51.100.1"

type msg []byte

func (m msg) u16(v ...uint16) msg {
	for _, x := range v {
		m = binary.BigEndian.AppendUint16(m, x)
	}
	return m
}

func (m msg) u32(v ...uint32) msg {
	for _, x := range v {
		m = binary.BigEndian.AppendUint32(m, x)
	}
	return m
}

func (m msg) raw(b ...byte) msg {
	return append(m, b...)
}

func set(id uint16, body msg) msg {
	return msg{}.u16(id, uint16(len(body)+4)).raw(body...)
}

func message(domainID uint32, sets ...msg) []byte {
	body := msg{}
	for _, s := range sets {
		body = body.raw(s...)
	}

	return msg{}.u16(10, uint16(len(body)+16)).u32(1700000000, 1, domainID).raw(body...)
}

var (
	frameTemplate = set(ipfix.TemplateSetID, msg{}.
		u16(256, 5).
		u16(ipfix.IngressInterface, 4).
		u16(ipfix.EgressInterface, 4).
		u16(ipfix.DataLinkFrameSize, 2).
		u16(ipfix.Dot1qVlanID, 2).
		u16(ipfix.DataLinkFrameSection, 0xffff))

	samplingTemplate = set(ipfix.OptionsTemplateSetID, msg{}.
		u16(257, 2, 1).
		u16(149, 4).
		u16(ipfix.SamplingPacketInterval, 4))

	taggedFrame = []byte{
		0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 2,
		0x81, 0x00, 0x60, 0x0a,
		0x08, 0x00,
	}

	untaggedFrame = []byte{
		0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 2,
		0x08, 0x06,
	}
)

func record(intIn, intOut uint32, size, vlan uint16, frame []byte) msg {
	return msg{}.u32(intIn, intOut).u16(size, vlan).raw(byte(len(frame))).raw(frame...)
}

func newTestServer() (*IPFIXServer, chan *frame.Frame, *mbuf.Pool) {
	pool := mbuf.NewPool(mbuf.DefaultCapacity)
	out := make(chan *frame.Frame, 16)
	return newIPFIXServer(prometheus.NewRegistry(), pool, out), out, pool
}

func TestProcessPacket(t *testing.T) {
	ipf, out, pool := newTestServer()

	ipf.processPacket(testAgent, message(42,
		frameTemplate,
		samplingTemplate,
		set(257, msg{}.u32(1, 2048)),
	))
	assert.Len(t, out, 0)
	assert.Equal(t, uint64(2048), ipf.sampleRateCache.getRate(testAgent, 42))

	ipf.processPacket(testAgent, message(42, set(256, msg{}.
		raw(record(3, 4, 1514, 0, taggedFrame)...).
		raw(record(5, 6, 64, 77, untaggedFrame)...))))

	require.Len(t, out, 2)

	assert.Equal(t, &frame.Frame{
		Agent:      testAgent,
		IntIn:      3,
		IntOut:     4,
		EtherType:  0x0800,
		OuterVLAN:  10,
		Priority:   3,
		Packets:    1,
		Size:       1514,
		Samplerate: 2048,
		Timestamp:  1700000000,
	}, <-out)

	untagged := <-out
	assert.Equal(t, uint16(0x0806), untagged.EtherType)
	assert.Equal(t, uint16(77), untagged.OuterVLAN)
	assert.Equal(t, uint64(64), untagged.Size)

	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.framesDecoded.WithLabelValues(testAgentStr, "IPv4")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.framesDecoded.WithLabelValues(testAgentStr, "ARP")))
	assert.Equal(t, int64(0), pool.Stats().InUse)
}

func TestProcessPacketTemplatesPerDomain(t *testing.T) {
	ipf, out, _ := newTestServer()

	ipf.processPacket(testAgent, message(1, frameTemplate))
	ipf.processPacket(testAgent, message(2, set(256, record(3, 4, 64, 0, untaggedFrame))))

	assert.Len(t, out, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.templateMissing.WithLabelValues(testAgentStr)))

	ipf.processPacket(bnet.IPv4FromOctets(198, 51, 100, 2), message(1, set(256, record(3, 4, 64, 0, untaggedFrame))))
	assert.Len(t, out, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.templateMissing.WithLabelValues("198.51.100.2")))
}

func TestProcessPacketDropsMalformedRecords(t *testing.T) {
	ipf, out, pool := newTestServer()

	ipf.processPacket(testAgent, message(1, frameTemplate, set(256, msg{}.
		raw(record(1, 2, 64, 0, nil)...).
		raw(record(1, 2, 64, 0, taggedFrame[:15])...))))

	assert.Len(t, out, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.recordNoData.WithLabelValues(testAgentStr)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.recordEthernetTruncated.WithLabelValues(testAgentStr)))
	assert.Equal(t, int64(0), pool.Stats().InUse)
}

func TestProcessPacketDecodeError(t *testing.T) {
	ipf, out, _ := newTestServer()

	ipf.processPacket(testAgent, []byte{0, 9, 0, 16})

	assert.Len(t, out, 0)
	assert.Equal(t, float64(1), testutil.ToFloat64(ipf.packetDecodeErrors.WithLabelValues(testAgentStr)))
}

func TestGenerateFieldMap(t *testing.T) {
	fm := generateFieldMap(&ipfix.TemplateRecords{
		Records: []*ipfix.TemplateRecord{
			{Type: ipfix.PacketDeltaCount, Length: 8},
			{Type: 0x8000 | ipfix.IngressInterface, Length: 4, EnterpriseNumber: 9},
			{Type: ipfix.SamplerRandomInterval, Length: 4},
			{Type: ipfix.DataLinkFrameSection, Length: 0xffff},
		},
	})

	assert.Equal(t, 0, fm.packets)
	assert.Equal(t, -1, fm.intIn)
	assert.Equal(t, 2, fm.samplingInterval)
	assert.Equal(t, 3, fm.frameSection)
}

func TestMakeTemplateKey(t *testing.T) {
	assert.Equal(t, "192.0.2.1|7|256", makeTemplateKey("192.0.2.1", 7, 256, make([]string, 3)))
}
