// Package main runs the transfer routing and status reconciliation engine:
// it wires the route registry, chain identity mapper, protocol adapters,
// persistence and orchestrator together and serves the HTTP API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/bridgeflow/transfer_engine/internal/adapter"
	"github.com/bridgeflow/transfer_engine/internal/adapter/cctp"
	"github.com/bridgeflow/transfer_engine/internal/adapter/snowbridge"
	"github.com/bridgeflow/transfer_engine/internal/adapter/xcm"
	"github.com/bridgeflow/transfer_engine/internal/chainid"
	"github.com/bridgeflow/transfer_engine/internal/config"
	"github.com/bridgeflow/transfer_engine/internal/events"
	"github.com/bridgeflow/transfer_engine/internal/httpapi"
	"github.com/bridgeflow/transfer_engine/internal/logging"
	"github.com/bridgeflow/transfer_engine/internal/metrics"
	"github.com/bridgeflow/transfer_engine/internal/orchestrator"
	"github.com/bridgeflow/transfer_engine/internal/route"
	"github.com/bridgeflow/transfer_engine/internal/signer"
	"github.com/bridgeflow/transfer_engine/internal/storage"
	"github.com/bridgeflow/transfer_engine/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "Path to engine config")
	flag.Parse()

	// Secrets come from the environment; .env is a local convenience.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("engine")
	logger.SetLevel(logging.ParseLevel(cfg.LogLevel))

	mapper, err := chainid.NewMapper(cfg.ChainMappings())
	if err != nil {
		log.Fatalf("chain identity mapper: %v", err)
	}
	routes := route.NewRegistry(cfg.RouteTable())

	sg, err := signer.NewHMACSigner([]byte(cfg.SignerKey))
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	snowbridgeAdapter, err := snowbridge.New(snowbridge.Config{
		RPC: adapter.RPCConfig{
			URL:               cfg.Adapters.Snowbridge.RPCURL,
			Timeout:           cfg.Adapters.Snowbridge.Timeout.Std(),
			RequestsPerSecond: cfg.Adapters.Snowbridge.RequestsPerSecond,
		},
		SourceDeadline:      cfg.Adapters.Snowbridge.SourceDeadline.Std(),
		DestinationDeadline: cfg.Adapters.Snowbridge.DestinationDeadline.Std(),
	}, mapper, sg)
	if err != nil {
		log.Fatalf("snowbridge adapter: %v", err)
	}

	xcmAdapter, err := xcm.New(xcm.Config{
		RPC: adapter.RPCConfig{
			URL:               cfg.Adapters.XCM.RPCURL,
			Timeout:           cfg.Adapters.XCM.Timeout.Std(),
			RequestsPerSecond: cfg.Adapters.XCM.RequestsPerSecond,
		},
		Deadline: cfg.Adapters.XCM.SourceDeadline.Std(),
	}, mapper, sg)
	if err != nil {
		log.Fatalf("xcm adapter: %v", err)
	}

	cctpAdapter, err := cctp.New(cctp.Config{
		RPC: adapter.RPCConfig{
			URL:               cfg.Adapters.CCTP.RPCURL,
			Timeout:           cfg.Adapters.CCTP.Timeout.Std(),
			RequestsPerSecond: cfg.Adapters.CCTP.RequestsPerSecond,
		},
		BurnDeadline: cfg.Adapters.CCTP.SourceDeadline.Std(),
		MintDeadline: cfg.Adapters.CCTP.DestinationDeadline.Std(),
	}, mapper, sg)
	if err != nil {
		log.Fatalf("cctp adapter: %v", err)
	}

	adapters, err := adapter.NewRegistry(snowbridgeAdapter, xcmAdapter, cctpAdapter)
	if err != nil {
		log.Fatalf("adapter registry: %v", err)
	}

	var store storage.TransactionStore
	switch cfg.Persistence.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Persistence.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer db.Close()
		if err := postgres.Apply(context.Background(), db); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
		store = postgres.New(db)
	default:
		store = storage.NewMemory()
	}

	eventLog := events.NewRingBuffer(2000)
	collector := metrics.NewCollector("transfer_engine")
	sink := storage.NewSink(store, storage.DefaultSinkConfig(), logger.WithComponent("sink"), eventLog, collector)
	defer sink.Close()

	orch, err := orchestrator.New(orchestrator.Config{
		PollInitialBackoff: cfg.Orchestrator.PollInitialBackoff.Std(),
		PollMaxBackoff:     cfg.Orchestrator.PollMaxBackoff.Std(),
		PollJitter:         cfg.Orchestrator.PollJitter,
		MaxPollRetries:     cfg.Orchestrator.MaxPollRetries,
		ToleranceBps:       cfg.Orchestrator.ToleranceBps,
	}, orchestrator.Deps{
		Routes:   routes,
		Mapper:   mapper,
		Adapters: adapters,
		Store:    store,
		Sink:     sink,
		Logger:   logger.WithComponent("orchestrator"),
		Events:   eventLog,
		Metrics:  collector,
	})
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Hydrate(ctx); err != nil {
		logger.Warn(ctx, "hydration failed", map[string]interface{}{"error": err.Error()})
	}

	api := httpapi.NewServer(httpapi.Config{
		JWTSecret: []byte(cfg.HTTP.JWTSecret),
	}, orch, store, eventLog, collector, logger.WithComponent("httpapi"))

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "http server listening", map[string]interface{}{"addr": cfg.HTTP.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	orch.Stop()
}
