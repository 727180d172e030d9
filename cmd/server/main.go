package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"time"

	"skyreg/internal/audit"
	"skyreg/internal/egress"
	"skyreg/internal/online"
	"skyreg/internal/platform/config"
	"skyreg/internal/platform/httpserver"
	"skyreg/internal/platform/logger"
	"skyreg/internal/platform/metrics"
	platformredis "skyreg/internal/platform/redis"
	"skyreg/internal/registry/store"
	"skyreg/internal/registry/syncer"
	"skyreg/internal/resolver"
	httptransport "skyreg/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	if cfg.LogFormat == "text" {
		log = logger.NewText()
	}
	ctx := context.Background()

	m := metrics.New()
	validator := &egress.Validator{AllowPrivate: cfg.EgressAllowPrivate, Logger: log}

	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		pg := store.NewPostgres(db, cfg.BulkTxTimeout)
		if err := pg.Migrate(ctx); err != nil {
			log.Error("migrate database", "error", err)
			os.Exit(1)
		}
		st = pg
	} else {
		log.Warn("DATABASE_URL not set, using in-memory registry store")
		st = store.NewMemory()
	}

	resolverOpts := []resolver.Option{
		resolver.WithLogger(log),
		resolver.WithMetrics(m),
	}
	var cache online.OutcomeCache
	if cfg.OnlineEnabled {
		redisClient, err := platformredis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-memory outcome cache", "error", err)
		}
		if redisClient != nil {
			cache = online.NewRedisCache(redisClient.Client, cfg.OnlineCacheTTL)
		} else {
			cache = online.NewMemoryCache(cfg.OnlineCacheTTL)
		}

		sessions := online.NewSessionManager(
			&http.Client{Timeout: 15 * time.Second},
			validator, cfg.OnlineSessionURL, cfg.OnlineSessionTTL, log,
		)
		client := online.NewClient(&http.Client{}, sessions, validator, m, online.ClientConfig{
			QueryURL:         cfg.OnlineBaseURL,
			CallTimeout:      cfg.OnlineCallTimeout,
			RecoveryInterval: cfg.OnlineRecovery,
		})
		resolverOpts = append(resolverOpts,
			resolver.WithOnline(client, cache, online.NewCooldown(cfg.OnlineCooldown)))
	}
	res := resolver.New(st, resolver.Config{RegistrationPrefix: cfg.RegistrationPrefix}, resolverOpts...)

	var publisher audit.Publisher
	if len(cfg.AuditBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(ctx, cfg.AuditBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("audit publisher unavailable", "error", err)
		} else {
			publisher = kafka
			defer kafka.Close()
		}
	}

	sync := syncer.New(st, validator, syncer.Config{
		SourceURL: cfg.RegistrySourceURL,
		EntryName: cfg.ArchiveEntryName,
		BatchSize: cfg.SyncBatchSize,
	},
		syncer.WithLogger(log),
		syncer.WithMetrics(m),
		syncer.WithAudit(publisher),
		syncer.WithInvalidator(res),
	)

	handler := httptransport.NewHandler(sync, res, cache, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, log))

	log.Info("starting skyreg", "addr", cfg.Addr, "online", cfg.OnlineEnabled)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
