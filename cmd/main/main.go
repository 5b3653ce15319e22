package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"tickstream/src/broker"
	"tickstream/src/config"
	"tickstream/src/engine"
	"tickstream/src/feed"
	"tickstream/src/interfaces"
	"tickstream/src/logger"
	"tickstream/src/network"
	"tickstream/src/server"
	"tickstream/src/storage"
	"tickstream/src/utils"
)

func main() {
	configPath := flag.String("config", "config/default.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to the credentials .env file")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.Name)
	log.Info("Starting %s on %s:%d", cfg.Name, cfg.Host, cfg.Port)

	// -----------------------------------------------------------------------------
	// Storage
	// -----------------------------------------------------------------------------

	var store interfaces.IWatchlistStore
	switch cfg.Storage.DBType {
	case "postgres":
		store, err = storage.NewPostgresStore(cfg.Storage.DBConnectionString, log)
	default:
		store, err = storage.NewSQLiteStore(cfg.Storage.DBPath, log)
	}
	if err != nil {
		log.Critical("Storage setup failed: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		log.Critical("Storage initialization failed: %v", err)
		os.Exit(1)
	}

	// -----------------------------------------------------------------------------
	// Broker, feed, engine, server
	// -----------------------------------------------------------------------------

	netMgr := network.NewAsyncNetworkManager(cfg.MConfig, log)
	brokerSession := broker.NewSession(cfg, netMgr, log)
	scheduler := utils.NewMarketScheduler(cfg.Broker.Exchanges, log)
	feedSession := feed.NewSession(cfg.MConfig, brokerSession, scheduler, log)

	eng := engine.NewEngine(cfg.MConfig, brokerSession, feedSession, store, log)
	feedSession.SetAuthErrorHandler(eng.HandleAuthFailure)

	srv := server.NewServer(cfg, brokerSession, store, feedSession, scheduler, log)
	srv.AttachEngine(eng)
	eng.AttachPublisher(srv.Hub)

	// -----------------------------------------------------------------------------
	// Lifecycle
	// -----------------------------------------------------------------------------

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if err := feedSession.Start(ctx, &wg); err != nil {
		log.Critical("Feed start failed: %v", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx, &wg); err != nil {
		log.Critical("Engine start failed: %v", err)
		os.Exit(1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx, &wg); err != nil {
			log.Error("HTTP server failed: %v", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received %v, shutting down", sig)
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()
	log.Info("Shutdown complete")
}
