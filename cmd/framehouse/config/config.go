package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	bnet "github.com/bio-routing/bio-rd/net"
	"github.com/bio-routing/framehouse/pkg/clickhousegw"
	"github.com/bio-routing/framehouse/pkg/intfmapper"
	"github.com/bio-routing/framehouse/pkg/mbuf"
	"github.com/bio-routing/framehouse/pkg/servers/aggregator"
	log "github.com/sirupsen/logrus"
)

const (
	listenSFlowDefault = ":6343"
	listenHTTPDefault  = ":9991"
	listenIPFIXDefault = ":4739"

	clickhouseAddressDefault  = "localhost:9000"
	clickhouseDatabaseDefault = "framehouse"
)

// Config represents a config file
type Config struct {
	ListenSFlow       string                         `yaml:"listen_sflow"`
	ListenIPFIX       string                         `yaml:"listen_ipfix"`
	ListenHTTP        string                         `yaml:"listen_http"`
	AggregationWindow time.Duration                  `yaml:"aggregation_window"`
	MbufCapacity      int                            `yaml:"mbuf_capacity"`
	Readers           int                            `yaml:"readers"`
	LogLevel          string                         `yaml:"log_level"`
	Agents            []*Agent                       `yaml:"agents"`
	Clickhouse        *clickhousegw.ClickhouseConfig `yaml:"clickhouse"`
	logLevel          log.Level
}

func (c *Config) load() error {
	if c.ListenSFlow == "" {
		c.ListenSFlow = listenSFlowDefault
	}

	if c.ListenIPFIX == "" {
		c.ListenIPFIX = listenIPFIXDefault
	}

	if c.ListenHTTP == "" {
		c.ListenHTTP = listenHTTPDefault
	}

	if c.AggregationWindow == 0 {
		c.AggregationWindow = aggregator.DefaultWindow
	}

	if c.AggregationWindow < time.Second {
		return errors.Errorf("Aggregation window %s is below one second", c.AggregationWindow)
	}

	if c.MbufCapacity == 0 {
		c.MbufCapacity = mbuf.DefaultCapacity
	}

	if c.MbufCapacity < 0 {
		return errors.Errorf("Invalid mbuf capacity %d", c.MbufCapacity)
	}

	if c.LogLevel == "" {
		c.LogLevel = log.InfoLevel.String()
	}

	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "Unable to parse log level")
	}
	c.logLevel = lvl

	if c.Clickhouse != nil {
		err := loadClickhouse(c.Clickhouse)
		if err != nil {
			return errors.Wrap(err, "Unable to load clickhouse config")
		}
	}

	for _, a := range c.Agents {
		err := a.load()
		if err != nil {
			return errors.Wrapf(err, "Unable to load config for agent %q", a.Name)
		}
	}

	return nil
}

func loadClickhouse(ch *clickhousegw.ClickhouseConfig) error {
	if ch.Address == "" {
		ch.Address = clickhouseAddressDefault
	}

	if ch.Database == "" {
		ch.Database = clickhouseDatabaseDefault
	}

	if ch.Sharded && ch.Cluster == "" {
		return errors.New("Sharded setup requires a cluster")
	}

	return nil
}

// GetLogLevel gets the parsed log level
func (c *Config) GetLogLevel() log.Level {
	return c.logLevel
}

// Agent represents an sflow agent known by name. Interface names are polled via SNMP if configured.
type Agent struct {
	Name    string                 `yaml:"name"`
	Address string                 `yaml:"address"`
	SNMP    *intfmapper.SNMPConfig `yaml:"snmp"`
	address bnet.IP
}

// GetAddress gets an agents address
func (a *Agent) GetAddress() bnet.IP {
	return a.address
}

func (a *Agent) load() error {
	addr, err := bnet.IPFromString(a.Address)
	if err != nil {
		return errors.Wrapf(err, "Invalid agent IP address %q", a.Address)
	}

	a.address = addr

	if a.SNMP != nil && a.SNMP.Version != 2 && a.SNMP.Version != 3 {
		if a.SNMP.Version != 0 {
			return errors.Errorf("Unsupported SNMP version %d", a.SNMP.Version)
		}

		a.SNMP.Version = 2
	}

	return nil
}

// GetConfig gets the configuration
func GetConfig(fp string) (*Config, error) {
	fc, err := os.ReadFile(fp)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read file")
	}

	c := &Config{}
	err = yaml.Unmarshal(fc, c)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal")
	}

	err = c.load()
	if err != nil {
		return nil, errors.Wrap(err, "Invalid config")
	}

	return c, nil
}
