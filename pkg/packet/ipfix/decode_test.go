package ipfix

import (
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func message(sets ...msg) msg {
	body := msg{}
	for _, s := range sets {
		body = body.raw(s...)
	}

	return msg{}.u16(10, uint16(len(body)+16)).u32(1700000000, 7, 42).raw(body...)
}

var frameTemplate = set(TemplateSetID, msg{}.
	u16(256, 4).
	u16(IngressInterface, 4).
	u16(EgressInterface, 4).
	u16(DataLinkFrameSize, 2).
	u16(DataLinkFrameSection, variableLength))

func TestDecodeTemplatesAndData(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5}
	data := set(256, msg{}.
		u32(3, 4).u16(1514).raw(byte(len(frame))).raw(frame...).
		u32(5, 6).u16(64).raw(0).
		raw(0, 0, 0))

	p, err := Decode(message(frameTemplate, data))
	require.NoError(t, err)

	assert.Equal(t, &Header{
		Version:        10,
		Length:         uint16(len(message(frameTemplate, data))),
		ExportTime:     1700000000,
		SequenceNumber: 7,
		DomainID:       42,
	}, p.Header)

	require.Len(t, p.Templates, 1)
	tmpl := p.Templates[0]
	assert.Equal(t, uint16(256), tmpl.TemplateID)
	assert.False(t, tmpl.IsOptions())
	assert.Equal(t, []*TemplateRecord{
		{Type: IngressInterface, Length: 4},
		{Type: EgressInterface, Length: 4},
		{Type: DataLinkFrameSize, Length: 2},
		{Type: DataLinkFrameSection, Length: variableLength},
	}, tmpl.Records)

	require.Len(t, p.DataSets, 1)
	records, err := tmpl.DecodeFlowSet(p.DataSets[0])
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, uint64(3), Uint(records[0].Values[0]))
	assert.Equal(t, uint64(4), Uint(records[0].Values[1]))
	assert.Equal(t, uint64(1514), Uint(records[0].Values[2]))
	assert.Equal(t, frame, records[0].Values[3])

	assert.Equal(t, uint64(5), Uint(records[1].Values[0]))
	assert.Empty(t, records[1].Values[3])
}

func TestDecodeLongVariableLength(t *testing.T) {
	frame := make([]byte, 300)
	frame[299] = 0xff

	data := set(256, msg{}.u32(1, 2).u16(300).raw(255).u16(300).raw(frame...))

	p, err := Decode(message(frameTemplate, data))
	require.NoError(t, err)

	records, err := p.Templates[0].DecodeFlowSet(p.DataSets[0])
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, frame, records[0].Values[3])
}

func TestDecodeOptionsTemplate(t *testing.T) {
	optTmpl := set(OptionsTemplateSetID, msg{}.
		u16(257, 2, 1).
		u16(149, 4).
		u16(SamplingPacketInterval, 4))

	p, err := Decode(message(optTmpl))
	require.NoError(t, err)

	require.Len(t, p.OptionsTemplateRecords, 1)
	tmpl := p.OptionsTemplateRecords[0]
	assert.True(t, tmpl.IsOptions())
	assert.Equal(t, uint16(1), tmpl.ScopeFieldCount)
	assert.True(t, tmpl.Records[1].IsIANA(SamplingPacketInterval))
}

func TestDecodeEnterpriseField(t *testing.T) {
	tmpl := set(TemplateSetID, msg{}.
		u16(258, 2).
		u16(enterpriseBit|12, 2).u32(2636).
		u16(IngressInterface, 4))

	p, err := Decode(message(tmpl))
	require.NoError(t, err)

	require.Len(t, p.Templates, 1)
	recs := p.Templates[0].Records
	assert.Equal(t, uint32(2636), recs[0].EnterpriseNumber)
	assert.Equal(t, uint16(12), recs[0].ElementID())
	assert.False(t, recs[0].IsIANA(12))
	assert.True(t, recs[1].IsIANA(IngressInterface))
}

func TestDecodeTemplateWithdrawal(t *testing.T) {
	p, err := Decode(message(set(TemplateSetID, msg{}.u16(256, 0))))
	require.NoError(t, err)
	assert.Empty(t, p.Templates)
}

func TestDecodeErrors(t *testing.T) {
	valid := message(frameTemplate)

	tests := []struct {
		name      string
		raw       []byte
		truncated bool
	}{
		{
			name:      "short header",
			raw:       valid[:10],
			truncated: true,
		},
		{
			name: "netflow v9",
			raw:  msg{}.u16(9, 16).u32(0, 0, 0),
		},
		{
			name:      "length beyond datagram",
			raw:       valid[:len(valid)-2],
			truncated: true,
		},
		{
			name:      "set length beyond message",
			raw:       message(msg{}.u16(256, 64).u32(0)),
			truncated: true,
		},
		{
			name:      "template cut short",
			raw:       message(set(TemplateSetID, msg{}.u16(256, 2).u16(IngressInterface, 4))),
			truncated: true,
		},
		{
			name: "options template without scope",
			raw:  message(set(OptionsTemplateSetID, msg{}.u16(257, 1, 0).u16(SamplingPacketInterval, 4))),
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

func TestDecodeFlowSetTruncated(t *testing.T) {
	tmpl := &TemplateRecords{
		TemplateID: 256,
		Records: []*TemplateRecord{
			{Type: IngressInterface, Length: 4},
			{Type: DataLinkFrameSection, Length: variableLength},
		},
	}

	_, err := tmpl.DecodeFlowSet(&Set{Records: msg{}.u32(1).raw(10, 1, 2)})
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestUint(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected uint64
	}{
		{name: "1 byte", input: []byte{0x2a}, expected: 42},
		{name: "2 bytes", input: []byte{0x05, 0xea}, expected: 1514},
		{name: "3 bytes", input: []byte{0x01, 0x00, 0x00}, expected: 65536},
		{name: "4 bytes", input: []byte{0x00, 0x00, 0x04, 0x00}, expected: 1024},
		{name: "8 bytes", input: []byte{0, 0, 0, 1, 0, 0, 0, 0}, expected: 1 << 32},
		{name: "empty", input: []byte{}, expected: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Uint(test.input))
		})
	}
}
