// Package main wires high-level dependencies, exposes the HTTP router, and
// keeps the server lifecycle small. Business logic lives in the internal
// service packages.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Atmajo/credora-server/internal/aggregator"
	"github.com/Atmajo/credora-server/internal/chain"
	credhandler "github.com/Atmajo/credora-server/internal/credentials/handler"
	credmetrics "github.com/Atmajo/credora-server/internal/credentials/metrics"
	credservice "github.com/Atmajo/credora-server/internal/credentials/service"
	credstore "github.com/Atmajo/credora-server/internal/credentials/store"
	"github.com/Atmajo/credora-server/internal/events"
	insthandler "github.com/Atmajo/credora-server/internal/institutions/handler"
	instservice "github.com/Atmajo/credora-server/internal/institutions/service"
	inststore "github.com/Atmajo/credora-server/internal/institutions/store"
	jwttoken "github.com/Atmajo/credora-server/internal/jwt_token"
	"github.com/Atmajo/credora-server/internal/ledger"
	"github.com/Atmajo/credora-server/internal/lifecycle"
	txhandler "github.com/Atmajo/credora-server/internal/lifecycle/handler"
	lifecyclemetrics "github.com/Atmajo/credora-server/internal/lifecycle/metrics"
	lifecyclestore "github.com/Atmajo/credora-server/internal/lifecycle/store"
	"github.com/Atmajo/credora-server/internal/metadata"
	"github.com/Atmajo/credora-server/internal/platform/config"
	"github.com/Atmajo/credora-server/internal/platform/database"
	"github.com/Atmajo/credora-server/internal/platform/health"
	"github.com/Atmajo/credora-server/internal/platform/logger"
	"github.com/Atmajo/credora-server/internal/platform/middleware"
	platformredis "github.com/Atmajo/credora-server/internal/platform/redis"
	"github.com/Atmajo/credora-server/internal/registry"
	httptransport "github.com/Atmajo/credora-server/internal/transport/http"
	"github.com/Atmajo/credora-server/pkg/ethutil"
)

const accessTokenTTL = time.Hour

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)

	log.Info("initializing credora-server",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	owner, err := ethutil.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		log.Error("invalid registry owner address", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	rdb, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		go recordRedisStats(ctx, rdb)
	}

	backend := chain.NewSimulated()
	go backend.StartMining(ctx, cfg.MiningInterval)

	eventOpts := []events.Option{
		events.WithBlockFn(backend.Height),
		events.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := events.NewKafkaSink(events.KafkaConfig{
			Brokers: strings.Join(cfg.KafkaBrokers, ","),
			Topic:   "credora.contract-events",
		})
		if err != nil {
			log.Error("kafka sink init failed", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		eventOpts = append(eventOpts, events.WithSink(sink))
	}
	eventLog := events.NewLog(eventOpts...)

	reg := registry.New(owner, registry.WithEmitter(eventLog))
	led := ledger.New(reg, ledger.WithEmitter(eventLog))
	agg := aggregator.New(led, reg, aggregator.WithEmitter(eventLog))

	var txStore lifecycle.Store = lifecyclestore.NewInMemory()
	if rdb != nil {
		txStore = lifecyclestore.NewRedis(rdb.Client)
	}
	manager := lifecycle.New(backend, txStore,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(lifecyclemetrics.New()),
		lifecycle.WithPollInterval(cfg.PollInterval),
		lifecycle.WithConfirmTimeout(cfg.ConfirmTimeout),
		lifecycle.WithMinConfirmations(cfg.MinConfirmations),
	)

	var credRecords credservice.CredentialStore = credstore.NewMemory()
	var instRecords instservice.InstitutionStore = inststore.NewMemory()
	if pool != nil {
		credRecords = credstore.NewPostgres(pool.DB())
		instRecords = inststore.NewPostgres(pool.DB())
	}

	meta := metadata.NewInMemory(cfg.MetadataBaseURL)

	credSvc := credservice.NewService(led, agg, manager, credRecords, meta,
		credservice.WithLogger(log),
		credservice.WithMetrics(credmetrics.New()),
	)
	instSvc := instservice.NewService(reg, manager, instRecords,
		instservice.WithLogger(log),
	)

	jwtSvc := jwttoken.NewService(cfg.JWTSigningKey, "credora-server", accessTokenTTL)

	healthHandler := health.New(cfg.Environment)
	healthHandler.RegisterCheck("chain", func() error {
		_, err := backend.BlockNumber(context.Background())
		return err
	})
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer checkCancel()
			return pool.Health(checkCtx)
		})
	}
	if rdb != nil {
		healthHandler.RegisterCheck("redis", func() error {
			checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer checkCancel()
			return rdb.Health(checkCtx)
		})
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Credentials:  credhandler.New(credSvc, log),
		Institutions: insthandler.New(instSvc, log),
		Transactions: txhandler.New(manager, log),
		Transport:    httptransport.NewHandler(eventLog, backend, backend.Height, log),
		Health:       healthHandler,
		Auth:         middleware.RequireAuth(jwtSvc, log),
		Admin:        middleware.RequireAdmin(log),
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

func recordRedisStats(ctx context.Context, rdb *platformredis.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rdb.RecordPoolStats()
		}
	}
}
