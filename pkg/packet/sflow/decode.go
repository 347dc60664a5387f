// Copyright 2017 EXARING AG. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sflow

import (
	"net"

	"github.com/bio-routing/tflow2/convert"
	"github.com/pkg/errors"
)

const (
	addressTypeIPv4 = 1
	addressTypeIPv6 = 2

	// numPreAllocSamples is the number of flow samples to pre allocate
	numPreAllocSamples = 8
)

// ErrTruncated is returned when a datagram ends in the middle of a structure
var ErrTruncated = errors.New("Truncated sflow datagram")

// reader walks a datagram in network byte order
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errors.Wrapf(ErrTruncated, "%d bytes required at offset %d, %d available", n, r.pos, r.remaining())
	}

	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}

	return convert.Uint32b(b), nil
}

func (r *reader) uint32s(dst ...*uint32) error {
	for _, d := range dst {
		v, err := r.uint32()
		if err != nil {
			return err
		}

		*d = v
	}

	return nil
}

func (r *reader) address(addrType uint32) (net.IP, error) {
	var n int
	switch addrType {
	case addressTypeIPv4:
		n = net.IPv4len
	case addressTypeIPv6:
		n = net.IPv6len
	default:
		return nil, errors.Errorf("Unknown address type %d", addrType)
	}

	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}

	return net.IP(b), nil
}

// Decode decodes an sflow version 5 datagram. Counter samples and unknown
// records are skipped. Byte slices of the result point into raw.
func Decode(raw []byte) (*Packet, error) {
	r := &reader{buf: raw}

	h, err := decodeHeader(r)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to decode header")
	}

	p := &Packet{
		Header:      h,
		FlowSamples: make([]*FlowSample, 0, numPreAllocSamples),
	}

	for i := uint32(0); i < h.NumSamples; i++ {
		var format, length uint32
		err := r.uint32s(&format, &length)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to decode header of sample %d", i)
		}

		data, err := r.bytes(int(length))
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to read sample %d", i)
		}

		sr := &reader{buf: data}
		switch format {
		case formatFlowSample:
			fs, err := decodeFlowSample(sr)
			if err != nil {
				return nil, errors.Wrapf(err, "Unable to decode flow sample %d", i)
			}
			p.FlowSamples = append(p.FlowSamples, fs)
		case formatExpandedFlowSample:
			fs, err := decodeExpandedFlowSample(sr)
			if err != nil {
				return nil, errors.Wrapf(err, "Unable to decode expanded flow sample %d", i)
			}
			p.FlowSamples = append(p.FlowSamples, fs)
		}
	}

	return p, nil
}

func decodeHeader(r *reader) (*Header, error) {
	h := &Header{}
	err := r.uint32s(&h.Version, &h.AgentAddressType)
	if err != nil {
		return nil, err
	}

	if h.Version != 5 {
		return nil, errors.Errorf("Incompatible protocol version v%d, only v5 is supported", h.Version)
	}

	h.AgentAddress, err = r.address(h.AgentAddressType)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read agent address")
	}

	err = r.uint32s(&h.SubAgentID, &h.SequenceNumber, &h.SysUpTime, &h.NumSamples)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func decodeFlowSample(r *reader) (*FlowSample, error) {
	fsh := &FlowSampleHeader{}
	err := r.uint32s(
		&fsh.SequenceNumber,
		&fsh.SourceIDClassIndex,
		&fsh.SamplingRate,
		&fsh.SamplePool,
		&fsh.DroppedPackets,
		&fsh.InputIf,
		&fsh.OutputIf,
		&fsh.FlowRecord,
	)
	if err != nil {
		return nil, err
	}

	return decodeFlowRecords(r, fsh)
}

func decodeExpandedFlowSample(r *reader) (*FlowSample, error) {
	efsh := &ExpandedFlowSampleHeader{}
	err := r.uint32s(
		&efsh.SequenceNumber,
		&efsh.SourceIDType,
		&efsh.SourceIDIndex,
		&efsh.SamplingRate,
		&efsh.SamplePool,
		&efsh.DroppedPackets,
		&efsh.InputIfFormat,
		&efsh.InputIf,
		&efsh.OutputIfFormat,
		&efsh.OutputIf,
		&efsh.FlowRecord,
	)
	if err != nil {
		return nil, err
	}

	return decodeFlowRecords(r, efsh.toFlowSampleHeader())
}

func decodeFlowRecords(r *reader, fsh *FlowSampleHeader) (*FlowSample, error) {
	fs := &FlowSample{
		FlowSampleHeader: fsh,
	}

	for i := uint32(0); i < fsh.FlowRecord; i++ {
		var format, length uint32
		err := r.uint32s(&format, &length)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to decode header of flow record %d", i)
		}

		data, err := r.bytes(int(length))
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to read flow record %d", i)
		}

		rr := &reader{buf: data}
		switch format {
		case formatRawPacketHeader:
			err = decodeRawPacketHeader(rr, fs)
		case formatExtendedSwitchData:
			fs.ExtendedSwitchData, err = decodeExtendedSwitchData(rr)
		case formatExtendedRouterData:
			fs.ExtendedRouterData, err = decodeExtendedRouterData(rr)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "Unable to decode flow record %d (format %d)", i, format)
		}
	}

	return fs, nil
}

func decodeRawPacketHeader(r *reader, fs *FlowSample) error {
	rph := &RawPacketHeader{}
	err := r.uint32s(&rph.HeaderProtocol, &rph.FrameLength, &rph.PayloadRemoved, &rph.HeaderLength)
	if err != nil {
		return err
	}

	data, err := r.bytes(int(rph.HeaderLength))
	if err != nil {
		return errors.Wrap(err, "Unable to read sampled header")
	}

	fs.RawPacketHeader = rph
	if len(data) > 0 {
		fs.Data = data
	}

	return nil
}

func decodeExtendedSwitchData(r *reader) (*ExtendedSwitchData, error) {
	esd := &ExtendedSwitchData{}
	err := r.uint32s(&esd.IncomingVLAN, &esd.IncomingPriority, &esd.OutgoingVLAN, &esd.OutgoingPriority)
	if err != nil {
		return nil, err
	}

	return esd, nil
}

func decodeExtendedRouterData(r *reader) (*ExtendedRouterData, error) {
	erd := &ExtendedRouterData{}
	err := r.uint32s(&erd.AddressType)
	if err != nil {
		return nil, err
	}

	erd.NextHop, err = r.address(erd.AddressType)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read next hop")
	}

	err = r.uint32s(&erd.NextHopSourceMask, &erd.NextHopDestinationMask)
	if err != nil {
		return nil, err
	}

	return erd, nil
}
