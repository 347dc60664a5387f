package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bio-routing/framehouse/pkg/intfmapper"

	bnet "github.com/bio-routing/bio-rd/net"
	log "github.com/sirupsen/logrus"
)

var (
	target      = flag.String("target", "", "Target device")
	community   = flag.String("community", "public", "SNMP community")
	snmpVersion = flag.Uint("snmp.version", 2, "SNMP version (2 or 3)")
	user        = flag.String("snmp.user", "", "SNMPv3 user")
	authPass    = flag.String("snmp.auth-passphrase", "", "SNMPv3 authentication passphrase")
	privPass    = flag.String("snmp.privacy-passphrase", "", "SNMPv3 privacy passphrase")
	interval    = flag.Duration("interval", 0, "Repeat the walk at this interval (0 walks once)")
)

func main() {
	flag.Parse()

	if *target == "" {
		log.Panic("No target given")
	}

	if *snmpVersion != 2 && *snmpVersion != 3 {
		log.Panicf("Unsupported SNMP version %d", *snmpVersion)
	}

	t, err := bnet.IPFromString(*target)
	if err != nil {
		log.WithError(err).Panic("Unable to parse target IP address")
	}

	cfg := &intfmapper.SNMPConfig{
		Version:           uint8(*snmpVersion),
		Community:         *community,
		User:              *user,
		AuthPassphrase:    *authPass,
		PrivacyPassphrase: *privPass,
	}

	for {
		collect(t, cfg)
		if *interval <= 0 {
			return
		}

		time.Sleep(*interval)
	}
}

func collect(t bnet.IP, cfg *intfmapper.SNMPConfig) {
	interfaces, err := intfmapper.Walk(t, cfg)
	if err != nil {
		log.WithError(err).Errorf("Collect failed")
		return
	}

	ids := make([]uint32, 0, len(interfaces))
	for id := range interfaces {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fmt.Fprintf(os.Stdout, "%s\t%d\t%s\n", t.String(), id, interfaces[id])
	}
}
