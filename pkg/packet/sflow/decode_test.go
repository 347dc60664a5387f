package sflow

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type datagram []byte

func (d datagram) u32(v ...uint32) datagram {
	for _, x := range v {
		d = binary.BigEndian.AppendUint32(d, x)
	}
	return d
}

func (d datagram) raw(b []byte) datagram {
	return append(d, b...)
}

// record prefixes body with format and length
func record(format uint32, body datagram) datagram {
	return datagram{}.u32(format, uint32(len(body))).raw(body)
}

func header(numSamples uint32) datagram {
	return datagram{}.
		u32(5, addressTypeIPv4).
		raw([]byte{10, 0, 0, 1}).
		u32(0, 42, 1000, numSamples)
}

var sampledFrame = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
	0x81, 0x00, 0x00, 0x64,
	0x08, 0x00,
	0x45,
}

func rawPacketHeader(frame []byte) datagram {
	body := datagram{}.u32(HeaderProtocolEthernet, 1518, 4, uint32(len(frame))).raw(frame)
	for len(body)%4 != 0 {
		body = append(body, 0)
	}
	return record(formatRawPacketHeader, body)
}

func TestDecodeFlowSample(t *testing.T) {
	sample := datagram{}.
		u32(7, 3, 1024, 4096, 0, 11, 12, 3).
		raw(rawPacketHeader(sampledFrame)).
		raw(record(formatExtendedSwitchData, datagram{}.u32(100, 0, 200, 0))).
		raw(record(formatExtendedRouterData, datagram{}.u32(addressTypeIPv4).raw([]byte{192, 0, 2, 1}).u32(24, 16)))

	raw := header(1).raw(record(formatFlowSample, sample))

	p, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, &Header{
		Version:          5,
		AgentAddressType: addressTypeIPv4,
		AgentAddress:     net.IP{10, 0, 0, 1},
		SequenceNumber:   42,
		SysUpTime:        1000,
		NumSamples:       1,
	}, p.Header)

	require.Len(t, p.FlowSamples, 1)
	fs := p.FlowSamples[0]

	assert.Equal(t, &FlowSampleHeader{
		SequenceNumber:     7,
		SourceIDClassIndex: 3,
		SamplingRate:       1024,
		SamplePool:         4096,
		InputIf:            11,
		OutputIf:           12,
		FlowRecord:         3,
	}, fs.FlowSampleHeader)
	assert.Equal(t, &RawPacketHeader{
		HeaderProtocol: HeaderProtocolEthernet,
		FrameLength:    1518,
		PayloadRemoved: 4,
		HeaderLength:   uint32(len(sampledFrame)),
	}, fs.RawPacketHeader)
	assert.Equal(t, sampledFrame, fs.Data)
	assert.Equal(t, &ExtendedSwitchData{IncomingVLAN: 100, OutgoingVLAN: 200}, fs.ExtendedSwitchData)
	assert.Equal(t, &ExtendedRouterData{
		AddressType:            addressTypeIPv4,
		NextHop:                net.IP{192, 0, 2, 1},
		NextHopSourceMask:      24,
		NextHopDestinationMask: 16,
	}, fs.ExtendedRouterData)
}

func TestDecodeExpandedFlowSample(t *testing.T) {
	sample := datagram{}.
		u32(7, 0, 3, 512, 4096, 1, 0, 21, 0, 22, 1).
		raw(rawPacketHeader(sampledFrame))

	p, err := Decode(header(1).raw(record(formatExpandedFlowSample, sample)))
	require.NoError(t, err)

	require.Len(t, p.FlowSamples, 1)
	fsh := p.FlowSamples[0].FlowSampleHeader
	assert.Equal(t, uint32(512), fsh.SamplingRate)
	assert.Equal(t, uint32(1), fsh.DroppedPackets)
	assert.Equal(t, uint32(21), fsh.InputIf)
	assert.Equal(t, uint32(22), fsh.OutputIf)
	assert.Equal(t, uint32(3), fsh.SourceIDClassIndex)
	assert.Equal(t, sampledFrame, p.FlowSamples[0].Data)
}

func TestDecodeSkipsUnknownSamplesAndRecords(t *testing.T) {
	counterSample := record(2, datagram{}.u32(1, 2, 3))
	enterpriseSample := record(1<<12|formatFlowSample, datagram{}.u32(1))
	flowSample := record(formatFlowSample, datagram{}.
		u32(1, 1, 1, 1, 0, 1, 2, 2).
		raw(record(2000, datagram{}.u32(0xdeadbeef))).
		raw(rawPacketHeader(sampledFrame)))

	p, err := Decode(header(3).raw(counterSample).raw(enterpriseSample).raw(flowSample))
	require.NoError(t, err)

	require.Len(t, p.FlowSamples, 1)
	assert.NotNil(t, p.FlowSamples[0].RawPacketHeader)
	assert.Nil(t, p.FlowSamples[0].ExtendedSwitchData)
}

func TestDecodeIPv6Agent(t *testing.T) {
	agent := net.ParseIP("2001:db8::1")
	raw := datagram{}.u32(5, addressTypeIPv6).raw(agent).u32(1, 2, 3, 0)

	p, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, agent, p.Header.AgentAddress)
	assert.Empty(t, p.FlowSamples)
}

func TestDecodeErrors(t *testing.T) {
	valid := header(1).raw(record(formatFlowSample, datagram{}.
		u32(1, 1, 1, 1, 0, 1, 2, 1).
		raw(rawPacketHeader(sampledFrame))))

	tests := []struct {
		name      string
		raw       []byte
		truncated bool
	}{
		{
			name:      "empty",
			raw:       []byte{},
			truncated: true,
		},
		{
			name: "version 4",
			raw:  datagram{}.u32(4, addressTypeIPv4).raw([]byte{10, 0, 0, 1}).u32(0, 0, 0, 0),
		},
		{
			name: "unknown agent address type",
			raw:  datagram{}.u32(5, 3),
		},
		{
			name:      "sample count beyond datagram",
			raw:       header(2).raw(record(2, datagram{})),
			truncated: true,
		},
		{
			name:      "cut in the middle of the sampled header",
			raw:       valid[:len(valid)-8],
			truncated: true,
		},
		{
			name: "raw header length beyond record",
			raw: header(1).raw(record(formatFlowSample, datagram{}.
				u32(1, 1, 1, 1, 0, 1, 2, 1).
				raw(record(formatRawPacketHeader, datagram{}.u32(1, 64, 0, 64).raw(sampledFrame))))),
			truncated: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := Decode(test.raw)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Equal(t, test.truncated, errors.Is(err, ErrTruncated), "unexpected error %v", err)
		})
	}
}
