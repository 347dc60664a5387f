package intfmapper

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/pkg/errors"

	bnet "github.com/bio-routing/bio-rd/net"
	log "github.com/sirupsen/logrus"
)

const (
	ifNameOID      = "1.3.6.1.2.1.31.1.1.1.1"
	snmpPort       = 161
	timeout        = time.Second * 30
	updateInterval = time.Minute * 2
)

type device struct {
	addr           bnet.IP
	snmpCfg        *SNMPConfig
	interfacesByID map[uint32]string
	interfacesMu   sync.RWMutex
	stopCh         chan struct{}
	wg             sync.WaitGroup
}

func newDevice(addr bnet.IP, snmpCfg *SNMPConfig) *device {
	return &device{
		addr:           addr,
		snmpCfg:        snmpCfg,
		interfacesByID: make(map[uint32]string),
		stopCh:         make(chan struct{}),
	}
}

func (d *device) update(interfacesByID map[uint32]string) {
	d.interfacesMu.Lock()
	defer d.interfacesMu.Unlock()

	d.interfacesByID = interfacesByID
}

func (d *device) startCollector() {
	d.wg.Add(1)
	go d.collector()
}

func (d *device) stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *device) collector() {
	defer d.wg.Done()

	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		err := d.collect()
		if err != nil {
			log.WithError(err).WithField("device", d.addr.String()).Warning("Collecting interface names failed")
		}

		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func snmpClient(addr bnet.IP, cfg *SNMPConfig) *gosnmp.GoSNMP {
	s := &gosnmp.GoSNMP{
		Target:                  addr.String(),
		Port:                    snmpPort,
		Community:               cfg.Community,
		Version:                 gosnmp.Version2c,
		Timeout:                 timeout,
		Retries:                 0,
		ExponentialTimeout:      false,
		UseUnconnectedUDPSocket: true,
		MaxRepetitions:          gosnmp.Default.MaxRepetitions,
	}

	if cfg.Version == 3 {
		s.Community = ""
		s.Version = gosnmp.Version3
		s.SecurityModel = gosnmp.UserSecurityModel
		s.MsgFlags = gosnmp.AuthPriv
		s.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.User,
			AuthenticationProtocol:   gosnmp.SHA,
			AuthenticationPassphrase: cfg.AuthPassphrase,
			PrivacyProtocol:          gosnmp.AES,
			PrivacyPassphrase:        cfg.PrivacyPassphrase,
		}
	}

	return s
}

func (d *device) collect() error {
	interfaces, err := Walk(d.addr, d.snmpCfg)
	if err != nil {
		return err
	}

	d.update(interfaces)
	return nil
}

// Walk fetches the ifName table of the device at addr
func Walk(addr bnet.IP, cfg *SNMPConfig) (map[uint32]string, error) {
	s := snmpClient(addr, cfg)

	err := s.Connect()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to connect")
	}
	defer s.Conn.Close()

	interfaces := make(map[uint32]string)
	err = s.BulkWalk(ifNameOID, func(pdu gosnmp.SnmpPDU) error {
		id, name, err := parseIfName(pdu)
		if err != nil {
			return err
		}

		interfaces[id] = name
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "BulkWalk failed for "+addr.String())
	}

	return interfaces, nil
}

func parseIfName(pdu gosnmp.SnmpPDU) (uint32, string, error) {
	oid := strings.Split(pdu.Name, ".")
	id, err := strconv.ParseUint(oid[len(oid)-1], 10, 32)
	if err != nil {
		return 0, "", errors.Wrap(err, "Unable to convert interface id")
	}

	if pdu.Type != gosnmp.OctetString {
		return 0, "", errors.Errorf("Unexpected PDU type: %d", pdu.Type)
	}

	b, ok := pdu.Value.([]byte)
	if !ok {
		return 0, "", errors.Errorf("Unexpected PDU value type %T", pdu.Value)
	}

	return uint32(id), string(b), nil
}

func (d *device) resolve(ifID uint32) string {
	d.interfacesMu.RLock()
	defer d.interfacesMu.RUnlock()

	return d.interfacesByID[ifID]
}
