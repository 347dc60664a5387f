package aggregator

import (
	"time"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/models/frame"
)

// DefaultWindow is the aggregation window used when none is configured
const DefaultWindow = 10 * time.Second

// Key identifies frames that get summed up within a window
type Key struct {
	Agent     bnet.IP
	IntIn     uint32
	IntOut    uint32
	EtherType uint16
	OuterVLAN uint16
	InnerVLAN uint16
}

// Aggregator sums up frame records per key and emits a batch per window
type Aggregator struct {
	window    time.Duration
	data      map[Key]*frame.Frame
	stopCh    chan struct{}
	ingress   chan *frame.Frame
	output    chan []*frame.Frame
	lastFlush time.Time
	timeNow   func() time.Time
}

// New creates and starts an aggregator. A window <= 0 selects DefaultWindow.
func New(window time.Duration, output chan []*frame.Frame) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}

	a := &Aggregator{
		window:  window,
		data:    make(map[Key]*frame.Frame),
		stopCh:  make(chan struct{}),
		ingress: make(chan *frame.Frame),
		output:  output,
		timeNow: time.Now,
	}

	go a.service()
	return a
}

// Stop stops the service loop
func (a *Aggregator) Stop() {
	close(a.stopCh)
}

// FrameToKey returns the aggregation key of fr
func FrameToKey(fr *frame.Frame) Key {
	return Key{
		Agent:     fr.Agent,
		IntIn:     fr.IntIn,
		IntOut:    fr.IntOut,
		EtherType: fr.EtherType,
		OuterVLAN: fr.OuterVLAN,
		InnerVLAN: fr.InnerVLAN,
	}
}

// IsStopped checks if Stop was called
func (a *Aggregator) IsStopped() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

func (a *Aggregator) service() {
	for {
		select {
		case <-a.stopCh:
			return
		case fr := <-a.ingress:
			a.Ingest(fr)
		}
	}
}

// Ingest adds fr to the current window, flushing the previous one first if it is over
func (a *Aggregator) Ingest(fr *frame.Frame) {
	normalizedIngestTime := a.timeNow().Truncate(a.window)

	timeSinceLastFlush := normalizedIngestTime.Sub(a.lastFlush)
	if timeSinceLastFlush >= a.window {
		a.flush()
		a.lastFlush = normalizedIngestTime
	}

	fr.Timestamp = normalizedIngestTime.Unix()
	a.add(fr)
}

func (a *Aggregator) add(fr *frame.Frame) {
	k := FrameToKey(fr)

	if _, exists := a.data[k]; !exists {
		a.data[k] = fr
		return
	}

	a.data[k].Add(fr)
}

// GetIngress returns the channel frame records are fed through
func (a *Aggregator) GetIngress() chan<- *frame.Frame {
	return a.ingress
}

func (a *Aggregator) flush() {
	s := make([]*frame.Frame, len(a.data))

	i := 0
	for _, fr := range a.data {
		s[i] = fr
		i++
	}

	a.output <- s
	a.data = make(map[Key]*frame.Frame)
}
