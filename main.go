package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cometflow/config"
	"cometflow/internal/aggregator"
	"cometflow/internal/cache"
	"cometflow/internal/channel"
	"cometflow/internal/dashboard"
	"cometflow/internal/dedup"
	"cometflow/internal/storage"
	"cometflow/logger"
	"cometflow/models"
	"cometflow/reader/cobs"
	"cometflow/reader/horizons"
	"cometflow/reader/theskylive"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Cometflow.Name,
		"version": cfg.Cometflow.Version,
		"comets":  len(cfg.Comets),
	}).Info("starting cometflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.LiveBuffer)
	defer channels.Close()

	var disk storage.Store
	if cfg.Cache.DiskEnabled {
		badgerStore, err := storage.OpenBadger(cfg.Cache.Dir, log)
		if err != nil {
			log.WithError(err).Error("failed to open cache storage")
			os.Exit(1)
		}
		defer badgerStore.Close()
		disk = badgerStore
	} else {
		log.WithComponent("main").Info("disk cache disabled; running memory-only")
	}

	policy := cache.Policy{
		MaxAge:        cfg.Cache.MaxAge(),
		StaleWindow:   cfg.Cache.StaleWindow(),
		SchemaVersion: cfg.Cache.SchemaVersion,
	}
	records := cache.New[models.EnhancedCometData](policy, disk, log)
	positions := cache.New[map[string]models.EquatorialPosition](policy, disk, log)

	var obsSource aggregator.ObservationSource
	if cfg.Source.COBS.Enabled {
		obsSource = cobs.NewClient(cfg)
	}
	var ephSource aggregator.EphemerisSource
	if cfg.Source.Horizons.Enabled {
		ephSource = horizons.NewClient(cfg)
	}
	var liveSource aggregator.LiveSource
	if cfg.Source.TheSkyLive.Enabled {
		liveSource = theskylive.NewClient(cfg)
	}

	engine := aggregator.NewEngine(cfg, obsSource, ephSource, liveSource, records, positions, dedup.New(), channels)
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start aggregation engine")
		os.Exit(1)
	}

	var streamReader *theskylive.StreamReader
	if cfg.Source.TheSkyLive.Enabled && cfg.Source.TheSkyLive.LiveStream {
		designations := make([]string, 0, len(cfg.Comets))
		for _, comet := range cfg.Comets {
			designations = append(designations, comet.Designation)
		}
		streamReader = theskylive.NewStreamReader(cfg, channels, designations)
		if err := streamReader.Start(ctx); err != nil {
			log.WithError(err).Warn("live stream reader failed to start")
			streamReader = nil
		}
	}

	server := dashboard.NewServer(cfg.Dashboard, engine, log)
	serverErr := make(chan error, 1)
	if server != nil {
		go func() {
			serverErr <- server.Run(ctx)
		}()
		log.WithFields(logger.Fields{"address": server.Address()}).Info("dashboard server started")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("dashboard server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		if streamReader != nil {
			log.Info("stopping live stream reader")
			streamReader.Stop()
		}
		log.Info("stopping aggregation engine")
		engine.Stop()
		if server != nil {
			<-serverErr
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("cometflow stopped")
}
