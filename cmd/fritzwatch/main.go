package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fritzwatch/internal/api"
	"fritzwatch/internal/config"
	"fritzwatch/internal/forward"
	"fritzwatch/internal/fritz"
	"fritzwatch/internal/logging"
	"fritzwatch/internal/logparse"
	"fritzwatch/internal/ping"
	"fritzwatch/internal/poll"
	"fritzwatch/internal/recent"
	"fritzwatch/internal/stats"
	"fritzwatch/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "fritzwatch.yaml", "path to config file")
	flag.Parse()

	if err := run(config.ResolvePath(*configPath)); err != nil {
		fmt.Fprintln(os.Stderr, "fritzwatch:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting", "version", version, "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Device.Timezone)
	if err != nil {
		return fmt.Errorf("load device timezone: %w", err)
	}
	parser := logparse.NewParser(loc)

	client, err := fritz.NewClient(cfg.Device, store, logger)
	if err != nil {
		return fmt.Errorf("build device client: %w", err)
	}

	statsStore := stats.NewStore()
	recentBuf := recent.NewBuffer(1000)

	var forwarder poll.Forwarder
	if kf := forward.NewKafka(cfg.Forward, logger); kf != nil {
		defer kf.Close()
		forwarder = kf
	}

	if cfg.Ping.Enabled {
		prober := ping.NewProber(manager, store, logger)
		go func() {
			if err := prober.Run(ctx); err != nil {
				logger.Error("ping loop failed", "err", err)
			}
		}()
	}

	api.Start(ctx, manager, store, statsStore, recentBuf, logger, version)

	go manager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "poll_interval", next.Poll.Interval.String())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	driver := poll.NewDriver(manager, client, parser, store, forwarder, statsStore, recentBuf, logger)
	if err := driver.Run(ctx); err != nil {
		return fmt.Errorf("poll driver: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
