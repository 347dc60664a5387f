package framehouse

import (
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bio-routing/framehouse/pkg/clickhousegw"
	"github.com/bio-routing/framehouse/pkg/intfmapper"
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/models/frame"
	"github.com/bio-routing/framehouse/pkg/servers/aggregator"
	"github.com/bio-routing/framehouse/pkg/servers/ipfix"
	"github.com/bio-routing/framehouse/pkg/servers/sflow"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bnet "github.com/bio-routing/bio-rd/net"
	log "github.com/sirupsen/logrus"
)

// InterfaceResolver resolves interface indices of an agent to names
type InterfaceResolver interface {
	Resolve(agent bnet.IP, ifID uint32) string
}

// Framehouse is an sflow collector keeping per window statistics of sampled Ethernet frames
type Framehouse struct {
	cfg          *Config
	ifMapper     *intfmapper.IntfMapper
	ifResolver   InterfaceResolver
	agentNames   map[bnet.IP]string
	agentNamesMu sync.RWMutex
	pool         *mbuf.Pool
	agg          *aggregator.Aggregator
	sfs          *sflow.SflowServer
	ifxs         *ipfix.IPFIXServer
	chgw         *clickhousegw.ClickHouseGateway
	framesRX     chan []*frame.Frame
}

// Config is a framehouse instances configuration
type Config struct {
	ChCfg             *clickhousegw.ClickhouseConfig
	ListenSflow       string
	ListenIPFIX       string
	ListenHTTP        string
	Readers           int
	AggregationWindow time.Duration
	MbufCapacity      int
}

// New creates a new framehouse instance and starts collecting
func New(cfg *Config) (*Framehouse, error) {
	fh := &Framehouse{
		cfg:        cfg,
		ifMapper:   intfmapper.New(),
		agentNames: make(map[bnet.IP]string),
		pool:       mbuf.NewPool(cfg.MbufCapacity),
		framesRX:   make(chan []*frame.Frame, 1024),
	}
	fh.ifResolver = fh.ifMapper

	if cfg.ChCfg != nil {
		chgw, err := clickhousegw.New(cfg.ChCfg)
		if err != nil {
			return nil, errors.Wrap(err, "Unable to create clickhouse gateway")
		}
		fh.chgw = chgw
	}

	readers := cfg.Readers
	if readers <= 0 {
		readers = runtime.NumCPU()
	}

	fh.agg = aggregator.New(cfg.AggregationWindow, fh.framesRX)
	sfs, err := sflow.New(cfg.ListenSflow, readers, fh.pool, fh.agg.GetIngress())
	if err != nil {
		fh.stop()
		return nil, errors.Wrap(err, "Unable to start sflow server")
	}
	fh.sfs = sfs
	log.WithField("address", cfg.ListenSflow).Info("Listening for sflow packets")

	if cfg.ListenIPFIX != "" {
		ifxs, err := ipfix.New(cfg.ListenIPFIX, readers, fh.pool, fh.agg.GetIngress())
		if err != nil {
			fh.stop()
			return nil, errors.Wrap(err, "Unable to start IPFIX server")
		}
		fh.ifxs = ifxs
		log.WithField("address", cfg.ListenIPFIX).Info("Listening for IPFIX packets")
	}

	registerPoolMetrics(prometheus.DefaultRegisterer, fh.pool)
	return fh, nil
}

func registerPoolMetrics(reg prometheus.Registerer, pool *mbuf.Pool) {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "framehouse",
		Subsystem: "mbuf",
		Name:      "in_use",
		Help:      "Mbufs currently taken from the pool",
	}, func() float64 {
		return float64(pool.Stats().InUse)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "framehouse",
		Subsystem: "mbuf",
		Name:      "created",
		Help:      "Mbufs allocated by the pool",
	}, func() float64 {
		return float64(pool.Stats().Created)
	})
}

// AddAgent names an agent and polls its interface names if snmpCfg is set
func (f *Framehouse) AddAgent(name string, addr bnet.IP, snmpCfg *intfmapper.SNMPConfig) {
	f.agentNamesMu.Lock()
	f.agentNames[addr] = name
	f.agentNamesMu.Unlock()

	if snmpCfg != nil {
		f.ifMapper.AddDevice(addr, snmpCfg)
	}
}

func (f *Framehouse) agentName(addr bnet.IP) string {
	f.agentNamesMu.RLock()
	defer f.agentNamesMu.RUnlock()

	return f.agentNames[addr]
}

// Run serves HTTP and consumes aggregated frames until stopCh is closed
func (f *Framehouse) Run(stopCh <-chan struct{}) {
	go func() {
		err := http.ListenAndServe(f.cfg.ListenHTTP, f.httpHandler())
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}()
	log.WithField("address", f.cfg.ListenHTTP).Info("Listening for HTTP requests")

	for {
		select {
		case <-stopCh:
			f.stop()
			return
		case frames := <-f.framesRX:
			f.process(frames)
		}
	}
}

func (f *Framehouse) stop() {
	if f.sfs != nil {
		f.sfs.Stop()
	}

	if f.ifxs != nil {
		f.ifxs.Stop()
	}

	f.agg.Stop()
	f.ifMapper.Stop()

	if f.chgw != nil {
		f.chgw.Close()
	}
}

func (f *Framehouse) process(frames []*frame.Frame) {
	f.logFrames(frames)

	if f.chgw == nil {
		return
	}

	err := f.chgw.Insert(frames)
	if err != nil {
		log.WithError(err).Error("Insert failed")
	}
}

func (f *Framehouse) logFrames(frames []*frame.Frame) {
	log.WithField("count", len(frames)).Info("Aggregated frames")

	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}

	for _, fr := range frames {
		l := log.WithFields(fr.Fields())
		if name := f.agentName(fr.Agent); name != "" {
			l = l.WithField("agent_name", name)
		}

		if name := f.ifResolver.Resolve(fr.Agent, fr.IntIn); name != "" {
			l = l.WithField("int_in_name", name)
		}

		if name := f.ifResolver.Resolve(fr.Agent, fr.IntOut); name != "" {
			l = l.WithField("int_out_name", name)
		}

		l.Debug("Frame")
	}
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("PANIC: %v\n%s", err, debug.Stack())
				http.Error(w,
					fmt.Sprintf("Internal server error: %v", err),
					http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (f *Framehouse) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recoveryMiddleware(promhttp.Handler()))
	return mux
}
