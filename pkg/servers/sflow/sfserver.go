// Package sflow provides sflow collection services via UDP and passes frame records into the aggregator layer
package sflow

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/framedecoder"
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/bio-routing/framehouse/pkg/packet/sflow"
	"github.com/bio-routing/framehouse/pkg/packets"
	log "github.com/sirupsen/logrus"
)

const maxDatagramSize = 8960

var labels = []string{
	"agent",
}

// SflowServer represents a sflow Collector instance
type SflowServer struct {
	conn                     *net.UDPConn
	pool                     *mbuf.Pool
	output                   chan<- *frame.Frame
	timeNow                  func() time.Time
	wg                       sync.WaitGroup
	stopCh                   chan struct{}
	packetsReceived          *prometheus.CounterVec
	packetDecodeErrors       *prometheus.CounterVec
	flowSamplesReceived      *prometheus.CounterVec
	flowNoRawPktHeader       *prometheus.CounterVec
	flowNoData               *prometheus.CounterVec
	flowUnknownProtocol      *prometheus.CounterVec
	flowEthernetDecodeErrors *prometheus.CounterVec
	flowEthernetTruncated    *prometheus.CounterVec
	framesDecoded            *prometheus.CounterVec
}

// New creates and starts a new `SflowServer` instance. Decoded frame records are sent to output.
func New(listen string, numReaders int, pool *mbuf.Pool, output chan<- *frame.Frame) (*SflowServer, error) {
	sfs := newSflowServer(prometheus.DefaultRegisterer, pool, output)

	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to resolve UDP address")
	}

	con, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "ListenUDP failed")
	}
	sfs.conn = con

	sfs.startService(numReaders)
	return sfs, nil
}

func newSflowServer(reg prometheus.Registerer, pool *mbuf.Pool, output chan<- *frame.Frame) *SflowServer {
	factory := promauto.With(reg)

	return &SflowServer{
		pool:    pool,
		output:  output,
		timeNow: time.Now,
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "received_packets",
			Help:      "Received sflow packets",
		}, labels),
		packetDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "packet_decode_errors",
			Help:      "Sflow packets that could not be decoded",
		}, labels),
		flowSamplesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_samples_received",
			Help:      "Flow samples received",
		}, labels),
		flowNoRawPktHeader: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_samples_no_raw_pkt_header",
			Help:      "Flow samples without raw packet header",
		}, labels),
		flowNoData: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_no_data",
			Help:      "Flow samples without data",
		}, labels),
		flowUnknownProtocol: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_samples_unknown_protocol",
			Help:      "Flow samples unknown protocol",
		}, labels),
		flowEthernetDecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_samples_ethernet_decode_errors",
			Help:      "Flow samples ethernet decode errors",
		}, labels),
		flowEthernetTruncated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "flow_samples_ethernet_truncated",
			Help:      "Flow samples with an ethernet header cut short",
		}, labels),
		framesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framehouse",
			Subsystem: "sflow",
			Name:      "frames_decoded",
			Help:      "Ethernet frames decoded from flow samples",
		}, []string{"agent", "ether_type"}),
		stopCh: make(chan struct{}),
	}
}

func (sfs *SflowServer) startService(numReaders int) {
	for i := 0; i < numReaders; i++ {
		sfs.wg.Add(1)
		go func() {
			defer sfs.wg.Done()
			err := sfs.packetWorker()
			if err != nil {
				log.WithError(err).Error("packetWorker failed")
			}
		}()
	}
}

// Stop closes the socket and stops the workers
func (sfs *SflowServer) Stop() {
	log.Info("Stopping SflowServer")
	close(sfs.stopCh)
	sfs.conn.Close()
	sfs.wg.Wait()
}

// packetWorker reads sflow packets from the socket and processes them
func (sfs *SflowServer) packetWorker() error {
	buffer := make([]byte, maxDatagramSize)
	for {
		if sfs.stopped() {
			return nil
		}

		length, remote, err := sfs.conn.ReadFromUDP(buffer)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			if sfs.stopped() {
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

		sfs.packetsReceived.WithLabelValues(remoteAddr.String()).Inc()
		sfs.processPacket(remoteAddr, buffer[:length])
	}
}

func (sfs *SflowServer) stopped() bool {
	select {
	case <-sfs.stopCh:
		return true
	default:
		return false
	}
}

// processPacket decodes a raw sflow packet and passes a frame record per sampled Ethernet frame on
func (sfs *SflowServer) processPacket(agent bnet.IP, buffer []byte) {
	agentStr := agent.String()

	p, err := sflow.Decode(buffer)
	if err != nil {
		sfs.packetDecodeErrors.WithLabelValues(agentStr).Inc()
		log.WithError(err).WithField("agent", agentStr).Error("Unable to decode sflow packet")
		return
	}

	for _, fs := range p.FlowSamples {
		sfs.flowSamplesReceived.WithLabelValues(agentStr).Inc()

		if fs.RawPacketHeader == nil {
			sfs.flowNoRawPktHeader.WithLabelValues(agentStr).Inc()
			continue
		}

		if fs.Data == nil {
			sfs.flowNoData.WithLabelValues(agentStr).Inc()
			continue
		}

		if fs.RawPacketHeader.HeaderProtocol != sflow.HeaderProtocolEthernet {
			sfs.flowUnknownProtocol.WithLabelValues(agentStr).Inc()
			continue
		}

		fr, err := sfs.decodeFrame(agent, fs)
		if err != nil {
			if mbuf.IsOutOfBuffer(err) {
				sfs.flowEthernetTruncated.WithLabelValues(agentStr).Inc()
			} else {
				sfs.flowEthernetDecodeErrors.WithLabelValues(agentStr).Inc()
			}
			log.WithError(err).WithField("agent", agentStr).Debug("Unable to decode ethernet frame")
			continue
		}

		sfs.framesDecoded.WithLabelValues(agentStr, packets.EtherType(fr.EtherType).String()).Inc()
		sfs.output <- fr
	}
}

// decodeFrame derives a frame record from the sampled Ethernet header of fs
func (sfs *SflowServer) decodeFrame(agent bnet.IP, fs *sflow.FlowSample) (*frame.Frame, error) {
	fr := &frame.Frame{
		Agent:      agent,
		IntIn:      fs.FlowSampleHeader.InputIf,
		IntOut:     fs.FlowSampleHeader.OutputIf,
		Packets:    1,
		Size:       uint64(fs.RawPacketHeader.FrameLength),
		Samplerate: uint64(fs.FlowSampleHeader.SamplingRate),
		Timestamp:  sfs.timeNow().Unix(),
	}

	tags, err := framedecoder.Decode(sfs.pool, fs.Data, fr)
	if err != nil {
		return nil, err
	}

	if tags == 0 && fs.ExtendedSwitchData != nil {
		fr.OuterVLAN = uint16(fs.ExtendedSwitchData.IncomingVLAN)
		fr.Priority = uint8(fs.ExtendedSwitchData.IncomingPriority)
	}

	return fr, nil
}
