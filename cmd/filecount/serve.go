package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/report"
	"github.com/babblebase/filecount/internal/server"
	"github.com/babblebase/filecount/internal/worker"
	"github.com/babblebase/filecount/pkg/config"
	"github.com/babblebase/filecount/pkg/health"
	"github.com/babblebase/filecount/pkg/kafka"
	"github.com/babblebase/filecount/pkg/metrics"
	"github.com/babblebase/filecount/pkg/middleware"
	"github.com/babblebase/filecount/pkg/postgres"
	"github.com/babblebase/filecount/pkg/redis"
)

// memoryStoreCapacity bounds the in-process report store used when
// PostgreSQL is disabled.
const memoryStoreCapacity = 1000

func NewServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Long: `Serve the analysis HTTP API. Reports are cached in Redis and persisted in
PostgreSQL when those are enabled in the config. With kafka.enabled the
server also queues documents for the worker on POST /api/v1/jobs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on, overrides server.port")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("starting filecount server", "port", cfg.Server.Port)

	m := metrics.New()
	engine, err := a.engine(m)
	if err != nil {
		return err
	}

	checker := health.NewChecker()
	checker.Register("counter", counterCheck(engine))

	var cache *report.Cache
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = report.NewCache(report.RedisBackend(client), cfg.Redis.CacheTTL, m)
		checker.RegisterOptional("redis", health.Ping(client.Ping))
	}

	store, closeStore, err := openStore(ctx, cfg.Postgres, checker)
	if err != nil {
		return err
	}
	defer closeStore()

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.Run(ctx, time.Minute)
	}

	handler := server.NewHandler(engine, cache, store, cfg.Server.MaxUploadSize)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalysisRequests)
		defer producer.Close()
		handler.SetSubmitter(worker.NewSubmitter(producer))
		slog.Info("accepting analysis jobs", "topic", cfg.Kafka.Topics.AnalysisRequests)
	}
	router := server.NewRouter(handler, checker, m, limiter, cfg.Server)
	if err := server.Run(ctx, cfg.Server, router); err != nil {
		return err
	}
	slog.Info("filecount server stopped")
	return nil
}

// openStore returns the PostgreSQL report store when it is enabled and an
// in-process store otherwise.
func openStore(ctx context.Context, cfg config.PostgresConfig, checker *health.Checker) (report.Repository, func(), error) {
	if !cfg.Enabled {
		slog.Info("postgres disabled, keeping reports in memory", "capacity", memoryStoreCapacity)
		return report.NewMemoryStore(memoryStoreCapacity), func() {}, nil
	}
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := report.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	if checker != nil {
		checker.RegisterOptional("postgres", health.Ping(db.Ping))
	}
	return store, func() { db.Close() }, nil
}

// counterCheck reports the counter up and describes its memory.
func counterCheck(engine *counter.Engine) health.Check {
	return func(context.Context) health.ComponentHealth {
		stats := engine.MemoryStats()
		message := "no translation memory"
		if stats.Loaded {
			message = fmt.Sprintf("%d memory entries, hasher %s", stats.Entries, stats.Hasher)
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: message}
	}
}
