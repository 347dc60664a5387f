// Package ipfix provides IPFIX collection services via UDP. Data link frame sections
// are decoded into frame records that are passed on to the aggregator layer.
package ipfix

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/framedecoder"
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/bio-routing/framehouse/pkg/packet/ipfix"
	"github.com/bio-routing/framehouse/pkg/packets"
	log "github.com/sirupsen/logrus"
)

const maxDatagramSize = 8960

var labels = []string{
	"agent",
}

// fieldMap describes what information is at what index in the slice
// that we get from decoding a data record
type fieldMap struct {
	intIn            int
	intOut           int
	packets          int
	octets           int
	frameSize        int
	frameSection     int
	samplingInterval int
	vlan             int
	customerVlan     int
}

// IPFIXServer represents an IPFIX collector instance
type IPFIXServer struct {
	// tmplCache is used to save received templates
	// for later lookup in order to decode data sets
	tmplCache                *templateCache
	sampleRateCache          *sampleRateCache
	conn                     *net.UDPConn
	pool                     *mbuf.Pool
	output                   chan<- *frame.Frame
	wg                       sync.WaitGroup
	stopCh                   chan struct{}
	packetsReceived          *prometheus.CounterVec
	packetDecodeErrors       *prometheus.CounterVec
	templateMissing          *prometheus.CounterVec
	setDecodeErrors          *prometheus.CounterVec
	recordNoData             *prometheus.CounterVec
	recordEthernetDecodeErrs *prometheus.CounterVec
	recordEthernetTruncated  *prometheus.CounterVec
	framesDecoded            *prometheus.CounterVec
}

// New creates and starts a new `IPFIXServer` instance. Decoded frame records are sent to output.
func New(listen string, numReaders int, pool *mbuf.Pool, output chan<- *frame.Frame) (*IPFIXServer, error) {
	ipf := newIPFIXServer(prometheus.DefaultRegisterer, pool, output)

	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to resolve UDP address")
	}

	con, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "ListenUDP failed")
	}
	ipf.conn = con

	ipf.startService(numReaders)
	return ipf, nil
}

func newIPFIXServer(reg prometheus.Registerer, pool *mbuf.Pool, output chan<- *frame.Frame) *IPFIXServer {
	factory := promauto.With(reg)

	return &IPFIXServer{
		tmplCache:       newTemplateCache(),
		sampleRateCache: newSampleRateCache(),
		pool:            pool,
		output:          output,
		stopCh:          make(chan struct{}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "received_packets",
			Help:      "Received IPFIX packets",
		}, labels),
		packetDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "packet_decode_errors",
			Help:      "IPFIX packets that could not be decoded",
		}, labels),
		templateMissing: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "template_missing",
			Help:      "Data sets received before their template",
		}, labels),
		setDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "set_decode_errors",
			Help:      "Data sets not matching their template",
		}, labels),
		recordNoData: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "records_no_data_link_frame",
			Help:      "Data records without data link frame section",
		}, labels),
		recordEthernetDecodeErrs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "records_ethernet_decode_errors",
			Help:      "Data records ethernet decode errors",
		}, labels),
		recordEthernetTruncated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "records_ethernet_truncated",
			Help:      "Data records with an ethernet header cut short",
		}, labels),
		framesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "ipfix",
			Name:      "frames_decoded",
			Help:      "Ethernet frames decoded from data records",
		}, []string{"agent", "ether_type"}),
	}
}

func (ipf *IPFIXServer) startService(numReaders int) {
	for i := 0; i < numReaders; i++ {
		ipf.wg.Add(1)
		go func() {
			defer ipf.wg.Done()
			err := ipf.packetWorker()
			if err != nil {
				log.WithError(err).Error("packetWorker failed")
			}
		}()
	}
}

// Stop closes the socket and stops the workers
func (ipf *IPFIXServer) Stop() {
	log.Info("Stopping IPFIX server")
	close(ipf.stopCh)
	ipf.conn.Close()
	ipf.wg.Wait()
}

// packetWorker reads IPFIX packets from the socket and processes them
func (ipf *IPFIXServer) packetWorker() error {
	buffer := make([]byte, maxDatagramSize)
	for {
		if ipf.stopped() {
			return nil
		}

		length, remote, err := ipf.conn.ReadFromUDP(buffer)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			if ipf.stopped() {
				return nil
			}

			return errors.Wrap(err, "ReadFromUDP failed")
		}

		remote4 := remote.IP.To4()
		if remote4 != nil {
			remote.IP = remote4
		}

		remoteAddr, err := bnet.IPFromBytes([]byte(remote.IP))
		if err != nil {
			return errors.Wrapf(err, "Unable to convert net.IP to bnet.IP: %q", remote)
		}

		ipf.packetsReceived.WithLabelValues(remoteAddr.String()).Inc()
		ipf.processPacket(remoteAddr, buffer[:length])
	}
}

func (ipf *IPFIXServer) stopped() bool {
	select {
	case <-ipf.stopCh:
		return true
	default:
		return false
	}
}

func (ipf *IPFIXServer) processPacket(agent bnet.IP, buffer []byte) {
	agentStr := agent.String()

	pkt, err := ipfix.Decode(buffer)
	if err != nil {
		ipf.packetDecodeErrors.WithLabelValues(agentStr).Inc()
		log.WithError(err).WithField("agent", agentStr).Error("Unable to decode IPFIX packet")
		return
	}

	ipf.updateTemplateCache(agent, pkt)
	ipf.processDataSets(agent, pkt)
}

// processDataSets decodes every data set of pkt with its cached template
func (ipf *IPFIXServer) processDataSets(agent bnet.IP, pkt *ipfix.Packet) {
	agentStr := agent.String()
	domainID := pkt.Header.DomainID
	keyParts := make([]string, 3)

	for _, set := range pkt.DataSets {
		template := ipf.tmplCache.getTemplate(agent, domainID, set.Header.SetID)
		if template == nil {
			ipf.templateMissing.WithLabelValues(agentStr).Inc()
			log.Debugf("Template for given set not found: %s", makeTemplateKey(agentStr, domainID, set.Header.SetID, keyParts))
			continue
		}

		records, err := template.DecodeFlowSet(set)
		if err != nil {
			ipf.setDecodeErrors.WithLabelValues(agentStr).Inc()
			log.WithError(err).WithField("agent", agentStr).Warning("Unable to decode data set")
			continue
		}

		fm := generateFieldMap(template)
		if template.IsOptions() {
			ipf.processOptions(agent, domainID, fm, records)
			continue
		}

		ipf.processFlowSet(agent, pkt.Header, fm, records)
	}
}

// processOptions picks up the sampling interval announced by an options record
func (ipf *IPFIXServer) processOptions(agent bnet.IP, domainID uint32, fm *fieldMap, records []ipfix.FlowDataRecord) {
	if fm.samplingInterval < 0 {
		return
	}

	for _, r := range records {
		ipf.sampleRateCache.setRate(agent, domainID, ipfix.Uint(r.Values[fm.samplingInterval]))
	}
}

// processFlowSet generates frame records from data records and pushes them into the output channel
func (ipf *IPFIXServer) processFlowSet(agent bnet.IP, h *ipfix.Header, fm *fieldMap, records []ipfix.FlowDataRecord) {
	agentStr := agent.String()

	for _, r := range records {
		if fm.frameSection < 0 || len(r.Values[fm.frameSection]) == 0 {
			ipf.recordNoData.WithLabelValues(agentStr).Inc()
			continue
		}

		fr := ipf.newFrame(agent, h, fm, r)

		tags, err := framedecoder.Decode(ipf.pool, r.Values[fm.frameSection], fr)
		if err != nil {
			if mbuf.IsOutOfBuffer(err) {
				ipf.recordEthernetTruncated.WithLabelValues(agentStr).Inc()
			} else {
				ipf.recordEthernetDecodeErrs.WithLabelValues(agentStr).Inc()
			}
			log.WithError(err).WithField("agent", agentStr).Debug("Unable to decode ethernet frame")
			continue
		}

		if tags == 0 {
			if fm.vlan >= 0 {
				fr.OuterVLAN = uint16(ipfix.Uint(r.Values[fm.vlan]))
			}

			if fm.customerVlan >= 0 {
				fr.InnerVLAN = uint16(ipfix.Uint(r.Values[fm.customerVlan]))
			}
		}

		ipf.framesDecoded.WithLabelValues(agentStr, packets.EtherType(fr.EtherType).String()).Inc()
		ipf.output <- fr
	}
}

func (ipf *IPFIXServer) newFrame(agent bnet.IP, h *ipfix.Header, fm *fieldMap, r ipfix.FlowDataRecord) *frame.Frame {
	fr := &frame.Frame{
		Agent:     agent,
		Packets:   1,
		Timestamp: int64(h.ExportTime),
	}

	if fm.intIn >= 0 {
		fr.IntIn = uint32(ipfix.Uint(r.Values[fm.intIn]))
	}

	if fm.intOut >= 0 {
		fr.IntOut = uint32(ipfix.Uint(r.Values[fm.intOut]))
	}

	if fm.packets >= 0 {
		fr.Packets = ipfix.Uint(r.Values[fm.packets])
	}

	switch {
	case fm.frameSize >= 0:
		fr.Size = ipfix.Uint(r.Values[fm.frameSize])
	case fm.octets >= 0:
		fr.Size = ipfix.Uint(r.Values[fm.octets])
	default:
		fr.Size = uint64(len(r.Values[fm.frameSection]))
	}

	if fm.samplingInterval >= 0 {
		fr.Samplerate = ipfix.Uint(r.Values[fm.samplingInterval])
	} else {
		fr.Samplerate = ipf.sampleRateCache.getRate(agent, h.DomainID)
	}

	return fr
}

// generateFieldMap processes a template and populates a fieldMap accordingly
// the fieldMap can then be used to read fields from a data record
func generateFieldMap(template *ipfix.TemplateRecords) *fieldMap {
	fm := fieldMap{
		intIn:            -1,
		intOut:           -1,
		packets:          -1,
		octets:           -1,
		frameSize:        -1,
		frameSection:     -1,
		samplingInterval: -1,
		vlan:             -1,
		customerVlan:     -1,
	}

	// enterprise specific fields carry the enterprise bit and never match
	for i, f := range template.Records {
		switch f.Type {
		case ipfix.IngressInterface:
			fm.intIn = i
		case ipfix.EgressInterface:
			fm.intOut = i
		case ipfix.PacketDeltaCount:
			fm.packets = i
		case ipfix.OctetDeltaCount:
			fm.octets = i
		case ipfix.DataLinkFrameSize:
			fm.frameSize = i
		case ipfix.DataLinkFrameSection:
			fm.frameSection = i
		case ipfix.SamplingPacketInterval, ipfix.SamplingInterval, ipfix.SamplerRandomInterval:
			fm.samplingInterval = i
		case ipfix.VlanID, ipfix.Dot1qVlanID:
			fm.vlan = i
		case ipfix.Dot1qCustomerVlanID:
			fm.customerVlan = i
		}
	}

	return &fm
}

// updateTemplateCache updates the template cache
func (ipf *IPFIXServer) updateTemplateCache(remote bnet.IP, p *ipfix.Packet) {
	for _, tr := range p.Templates {
		ipf.tmplCache.setTemplate(remote, p.Header.DomainID, tr)
	}

	for _, tr := range p.OptionsTemplateRecords {
		ipf.tmplCache.setTemplate(remote, p.Header.DomainID, tr)
	}
}

// makeTemplateKey creates a string of the 3 tuple router address, source id and template id
func makeTemplateKey(addr string, sourceID uint32, templateID uint16, keyParts []string) string {
	keyParts[0] = addr
	keyParts[1] = strconv.Itoa(int(sourceID))
	keyParts[2] = strconv.Itoa(int(templateID))
	return strings.Join(keyParts, "|")
}
