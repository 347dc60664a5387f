package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bio-routing/framehouse/cmd/framehouse/config"
	"github.com/bio-routing/framehouse/pkg/framehouse"

	log "github.com/sirupsen/logrus"
)

var (
	configFilePath = flag.String("config.file", "config.yaml", "Config file path (YAML)")
)

func main() {
	flag.Parse()

	cfg, err := config.GetConfig(*configFilePath)
	if err != nil {
		log.WithError(err).Fatal("Unable to get config")
	}
	log.SetLevel(cfg.GetLogLevel())

	fh, err := framehouse.New(&framehouse.Config{
		ChCfg:             cfg.Clickhouse,
		ListenSflow:       cfg.ListenSFlow,
		ListenIPFIX:       cfg.ListenIPFIX,
		ListenHTTP:        cfg.ListenHTTP,
		Readers:           cfg.Readers,
		AggregationWindow: cfg.AggregationWindow,
		MbufCapacity:      cfg.MbufCapacity,
	})
	if err != nil {
		log.WithError(err).Fatal("Unable to start framehouse")
	}

	for _, a := range cfg.Agents {
		fh.AddAgent(a.Name, a.GetAddress(), a.SNMP)
	}

	stopCh := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("Shutting down")
		close(stopCh)
	}()

	fh.Run(stopCh)
}
