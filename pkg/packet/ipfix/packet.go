package ipfix

// Set IDs as per RFC 7011
const (
	// TemplateSetID is the set ID reserved for template sets
	TemplateSetID = 2

	// OptionsTemplateSetID is the set ID reserved for options template sets
	OptionsTemplateSetID = 3

	// MinDataSetID is the lowest set ID of a data set
	MinDataSetID = 256
)

// Information elements
const (
	OctetDeltaCount        = 1
	PacketDeltaCount       = 2
	IngressInterface       = 10
	EgressInterface        = 14
	SamplingInterval       = 34
	SamplerRandomInterval  = 50
	VlanID                 = 58
	Dot1qVlanID            = 243
	Dot1qCustomerVlanID    = 245
	SamplingPacketInterval = 305
	DataLinkFrameSize      = 312
	DataLinkFrameSection   = 315
)

const (
	enterpriseBit  = 0x8000
	variableLength = 0xffff
)

// Packet is a decoded representation of a single IPFIX message
type Packet struct {
	Header                 *Header
	Templates              []*TemplateRecords
	OptionsTemplateRecords []*TemplateRecords
	DataSets               []*Set
}

// Header is an IPFIX message header
type Header struct {
	Version        uint16
	Length         uint16
	ExportTime     uint32
	SequenceNumber uint32
	DomainID       uint32
}

// SetHeader is the header of a set
type SetHeader struct {
	SetID  uint16
	Length uint16
}

// Set is a data set. Records holds the undecoded records, padding included.
type Set struct {
	Header  SetHeader
	Records []byte
}

// TemplateRecords is a single template that describes the structure of a data record
type TemplateRecords struct {
	TemplateID uint16

	// ScopeFieldCount is the number of leading scope fields of an options template, 0 otherwise
	ScopeFieldCount uint16

	// Records are the field specifiers in record order
	Records []*TemplateRecord
}

// IsOptions checks if the template describes options records
func (t *TemplateRecords) IsOptions() bool {
	return t.ScopeFieldCount > 0
}

// TemplateRecord is a field specifier
type TemplateRecord struct {
	// Type is the information element identifier including the enterprise bit
	Type             uint16
	Length           uint16
	EnterpriseNumber uint32
}

func (t *TemplateRecord) isEnterprise() bool {
	return t.Type&enterpriseBit != 0
}

// ElementID returns the information element identifier without the enterprise bit
func (t *TemplateRecord) ElementID() uint16 {
	return t.Type &^ enterpriseBit
}

// IsIANA checks if the field is an IANA assigned information element with id
func (t *TemplateRecord) IsIANA(id uint16) bool {
	return !t.isEnterprise() && t.Type == id
}

// FlowDataRecord is a decoded data record. Values are ordered like the fields of its template.
type FlowDataRecord struct {
	Values [][]byte
}
