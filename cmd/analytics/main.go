// Command analytics runs the standalone analytics service.
//
// It consumes search and dataset-load events that search service instances
// publish to the search-analytics topic, aggregates them in memory (latency
// percentiles, cache hit rate, top and zero-result queries) and serves the
// result at GET /api/v1/analytics. With PostgreSQL enabled, snapshots of the
// aggregate are saved periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	agg := analytics.NewAggregator()
	checker := health.NewChecker()

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := aggregator.NewStore(db)
		if last, err := store.LatestSnapshot(gctx); err != nil {
			slog.Warn("could not read last snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous analytics snapshot found",
				"total_searches", last.TotalSearches,
				"total_loads", last.TotalLoads,
			)
		}
		store.StartPeriodicSave(gctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.Ping(db.Ping, false))
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	g.Go(func() error { return consumer.Start(gctx) })
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service error", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
