// Copyright 2017 Google Inc. All Rights Reserved.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ipfix

import (
	"github.com/bio-routing/tflow2/convert"
	"github.com/pkg/errors"
)

const (
	sizeOfHeader        = 16
	sizeOfSetHeader     = 4
	numPreAllocRecs     = 20
	maxFieldsPerRecord  = 512
	shortVariableLength = 255
)

// ErrTruncated is returned when a message ends in the middle of a structure
var ErrTruncated = errors.New("Truncated IPFIX message")

// errorIncompatibleVersion returns an error in case the detected version is not supported
func errorIncompatibleVersion(version uint16) error {
	return errors.Errorf("IPFIX: Incompatible protocol version v%d, only v10 is supported", version)
}

func truncated(what string, required, available int) error {
	return errors.Wrapf(ErrTruncated, "%s: %d bytes required, %d available", what, required, available)
}

// Decode converts a raw IPFIX message to a Packet. Byte slices of the result point into raw.
func Decode(raw []byte) (*Packet, error) {
	if len(raw) < sizeOfHeader {
		return nil, truncated("header", sizeOfHeader, len(raw))
	}

	h := &Header{
		Version:        convert.Uint16b(raw[0:2]),
		Length:         convert.Uint16b(raw[2:4]),
		ExportTime:     convert.Uint32b(raw[4:8]),
		SequenceNumber: convert.Uint32b(raw[8:12]),
		DomainID:       convert.Uint32b(raw[12:16]),
	}

	if h.Version != 10 {
		return nil, errorIncompatibleVersion(h.Version)
	}

	if int(h.Length) < sizeOfHeader || int(h.Length) > len(raw) {
		return nil, truncated("message", int(h.Length), len(raw))
	}

	packet := &Packet{
		Header:    h,
		Templates: make([]*TemplateRecords, 0, numPreAllocRecs),
	}

	data := raw[sizeOfHeader:h.Length]
	for len(data) > 0 {
		if len(data) < sizeOfSetHeader {
			return nil, truncated("set header", sizeOfSetHeader, len(data))
		}

		sh := SetHeader{
			SetID:  convert.Uint16b(data[0:2]),
			Length: convert.Uint16b(data[2:4]),
		}

		if int(sh.Length) < sizeOfSetHeader || int(sh.Length) > len(data) {
			return nil, truncated("set", int(sh.Length), len(data))
		}

		body := data[sizeOfSetHeader:sh.Length]
		switch {
		case sh.SetID == TemplateSetID:
			err := decodeTemplate(packet, body)
			if err != nil {
				return nil, errors.Wrap(err, "Unable to decode template")
			}
		case sh.SetID == OptionsTemplateSetID:
			err := decodeOptionsTemplate(packet, body)
			if err != nil {
				return nil, errors.Wrap(err, "Unable to decode options template")
			}
		case sh.SetID >= MinDataSetID:
			packet.DataSets = append(packet.DataSets, &Set{
				Header:  sh,
				Records: body,
			})
		}

		data = data[sh.Length:]
	}

	return packet, nil
}

// decodeTemplate decodes the template records of a template set
func decodeTemplate(packet *Packet, b []byte) error {
	// a template record is at least 4 bytes, anything shorter is padding
	for len(b) >= 4 {
		tmpl := &TemplateRecords{
			TemplateID: convert.Uint16b(b[0:2]),
		}
		fieldCount := convert.Uint16b(b[2:4])
		b = b[4:]

		// withdrawals carry no fields
		if fieldCount == 0 {
			continue
		}

		var err error
		tmpl.Records, b, err = decodeFieldSpecifiers(b, fieldCount)
		if err != nil {
			return errors.Wrapf(err, "Template %d", tmpl.TemplateID)
		}

		packet.Templates = append(packet.Templates, tmpl)
	}

	return nil
}

// decodeOptionsTemplate decodes the template records of an options template set
func decodeOptionsTemplate(packet *Packet, b []byte) error {
	for len(b) >= 6 {
		tmpl := &TemplateRecords{
			TemplateID:      convert.Uint16b(b[0:2]),
			ScopeFieldCount: convert.Uint16b(b[4:6]),
		}
		fieldCount := convert.Uint16b(b[2:4])
		b = b[6:]

		if fieldCount == 0 {
			continue
		}

		if tmpl.ScopeFieldCount == 0 || tmpl.ScopeFieldCount > fieldCount {
			return errors.Errorf("Options template %d: invalid scope field count %d of %d fields", tmpl.TemplateID, tmpl.ScopeFieldCount, fieldCount)
		}

		var err error
		tmpl.Records, b, err = decodeFieldSpecifiers(b, fieldCount)
		if err != nil {
			return errors.Wrapf(err, "Options template %d", tmpl.TemplateID)
		}

		packet.OptionsTemplateRecords = append(packet.OptionsTemplateRecords, tmpl)
	}

	return nil
}

func decodeFieldSpecifiers(b []byte, fieldCount uint16) ([]*TemplateRecord, []byte, error) {
	if fieldCount > maxFieldsPerRecord {
		return nil, nil, errors.Errorf("Too many fields: %d", fieldCount)
	}

	recs := make([]*TemplateRecord, 0, fieldCount)
	for i := uint16(0); i < fieldCount; i++ {
		if len(b) < 4 {
			return nil, nil, truncated("field specifier", 4, len(b))
		}

		rec := &TemplateRecord{
			Type:   convert.Uint16b(b[0:2]),
			Length: convert.Uint16b(b[2:4]),
		}
		b = b[4:]

		if rec.isEnterprise() {
			if len(b) < 4 {
				return nil, nil, truncated("enterprise number", 4, len(b))
			}

			rec.EnterpriseNumber = convert.Uint32b(b[0:4])
			b = b[4:]
		}

		recs = append(recs, rec)
	}

	return recs, b, nil
}

// minRecordLength returns the least number of bytes a record of t occupies
func (t *TemplateRecords) minRecordLength() int {
	n := 0
	for _, rec := range t.Records {
		if rec.Length == variableLength {
			n++
			continue
		}

		n += int(rec.Length)
	}

	return n
}

// DecodeFlowSet decodes the records of a data set described by t
func (t *TemplateRecords) DecodeFlowSet(set *Set) ([]FlowDataRecord, error) {
	minLen := t.minRecordLength()
	if minLen == 0 {
		return nil, errors.Errorf("Template %d describes empty records", t.TemplateID)
	}

	b := set.Records
	records := make([]FlowDataRecord, 0, len(b)/minLen)

	// trailing bytes shorter than a record are padding
	for len(b) >= minLen {
		r := FlowDataRecord{
			Values: make([][]byte, len(t.Records)),
		}

		for i, rec := range t.Records {
			n := int(rec.Length)
			if rec.Length == variableLength {
				if len(b) < 1 {
					return nil, truncated("variable length", 1, 0)
				}

				n = int(b[0])
				b = b[1:]
				if n == shortVariableLength {
					if len(b) < 2 {
						return nil, truncated("variable length", 2, len(b))
					}

					n = int(convert.Uint16b(b[0:2]))
					b = b[2:]
				}
			}

			if len(b) < n {
				return nil, truncated("field value", n, len(b))
			}

			r.Values[i] = b[:n:n]
			b = b[n:]
		}

		records = append(records, r)
	}

	return records, nil
}

// Uint decodes an unsigned integer of reduced size encoding (RFC 7011, 6.2)
func Uint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(convert.Uint16b(b))
	case 4:
		return uint64(convert.Uint32b(b))
	}

	v := uint64(0)
	for _, x := range b {
		v = v<<8 | uint64(x)
	}

	return v
}
