package intfmapper

import (
	"sync"

	bnet "github.com/bio-routing/bio-rd/net"
)

// SNMPConfig holds the SNMP credentials of a device
type SNMPConfig struct {
	Version           uint8  `yaml:"version"`
	Community         string `yaml:"community"`
	User              string `yaml:"user"`
	AuthPassphrase    string `yaml:"auth_passphrase"`
	PrivacyPassphrase string `yaml:"privacy_passphrase"`
}

// IntfMapper maps sflow interface indices to interface names per agent
type IntfMapper struct {
	devices   map[bnet.IP]*device
	devicesMu sync.RWMutex
}

// New creates a new IntfMapper
func New() *IntfMapper {
	return &IntfMapper{
		devices: make(map[bnet.IP]*device),
	}
}

// AddDevice starts polling interface names of the device at addr
func (im *IntfMapper) AddDevice(addr bnet.IP, snmpCfg *SNMPConfig) {
	im.devicesMu.Lock()
	defer im.devicesMu.Unlock()

	if _, exists := im.devices[addr]; exists {
		return
	}

	d := newDevice(addr, snmpCfg)
	d.startCollector()
	im.devices[addr] = d
}

// Resolve gets the name of interface ifID of agent. Unknown interfaces resolve to "".
func (im *IntfMapper) Resolve(agent bnet.IP, ifID uint32) string {
	im.devicesMu.RLock()
	d, exists := im.devices[agent]
	im.devicesMu.RUnlock()

	if !exists {
		return ""
	}

	return d.resolve(ifID)
}

// Stop stops all collectors
func (im *IntfMapper) Stop() {
	im.devicesMu.Lock()
	defer im.devicesMu.Unlock()

	for _, d := range im.devices {
		d.stop()
	}
}
