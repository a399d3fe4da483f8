package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/hdscan/internal/config"
	"github.com/tdex-network/hdscan/pkg/crawler"
	"github.com/tdex-network/hdscan/pkg/stats"
	"github.com/urfave/cli/v2"
)

var watch = cli.Command{
	Name:   "watch",
	Usage:  "periodically resync the address space and log every index change",
	Action: watchAction,
}

func watchAction(ctx *cli.Context) error {
	manager, err := initManager(ctx)
	if err != nil {
		return err
	}

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	if interval := config.GetStatsInterval(); interval > 0 {
		stats.EnableStatistics(statsCtx, interval, profilerDumpFile())
	}

	crawlerSvc := crawler.NewService(crawler.Opts{
		Interval:          config.GetResyncInterval(),
		RequestsPerSecond: float64(config.GetInt(config.ExplorerRequestsPerSecondKey)),
		Burst:             1,
		ErrorHandler: func(err error) {
			log.WithError(err).Warn("resync failed")
		},
	})
	observable := crawler.NewResyncObservable(
		manager, config.GetExplorerRequestTimeout()*10,
	)
	crawlerSvc.AddObservable(observable)
	go crawlerSvc.Start()

	go func() {
		for event := range crawlerSvc.GetEventChannel() {
			e, ok := event.(crawler.IndexEvent)
			if !ok {
				continue
			}
			entry := log.WithFields(log.Fields{
				"previous": e.Previous,
				"current":  e.Current,
			})
			if e.EventType == crawler.IndexAdvanced {
				addr, _ := manager.CurrentAddress()
				entry.WithField("address", addr).Info("current index advanced")
				continue
			}
			entry.Debug("current index unchanged")
		}
	}()

	log.Infof("watching address space %s", manager.ID())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	crawlerSvc.RemoveObservable(observable)
	crawlerSvc.Stop()
	stopStats()

	log.Info("exiting")
	return nil
}
