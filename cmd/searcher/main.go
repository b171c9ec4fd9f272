// Command searcher runs the dispatch search service: one search worker
// owning the indexed record store, reachable over HTTP and JSON-over-TCP RPC,
// with datasets loaded by callers or fetched from PostgreSQL and Redis.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/recordstore"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/searcher/rpc"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/searcher/telemetry"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/source"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/dispatch-search/pkg/tracing"
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

	if err := run(cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	loc, err := cfg.Search.Location()
	if err != nil {
		return err
	}
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"date_detection", cfg.Search.DateDetection,
		"timezone", loc.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()
	aggregator := analytics.NewAggregator()
	sinks := []analytics.Sink{aggregator}

	// Sources. Each is optional; reload endpoints answer 503 without any.
	sources := source.NewManager(cfg.Source, m)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		sources.Register(source.NewPostgres(db, cfg.Source))
		checker.Register("postgres", health.Ping(db.Ping, false))
		slog.Info("postgres source enabled", "view", cfg.Source.DispatchView)
	}
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, dataset snapshots disabled", "error", err)
		} else {
			defer rc.Close()
			snap := source.NewRedisSnapshot(rc, cfg.Redis)
			sources.Register(snap)
			sources.SnapshotTo(snap)
			checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
				factories, err := snap.Factories(ctx)
				if err != nil {
					return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
				}
				return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d snapshots", len(factories))}
			})
			slog.Info("redis snapshots enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.SnapshotTTL)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	var analyticsProducer *kafka.Producer
	if cfg.Kafka.Enabled {
		analyticsProducer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		bc := collector.NewBatchCollector(analyticsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		bc.Start(gctx)
		defer bc.Close()
		sinks = append(sinks, bc)
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	tel := telemetry.NewObserver(m)
	store := recordstore.New(recordstore.Options{
		DateDetection:   recordstore.ParseDateDetection(cfg.Search.DateDetection),
		Location:        loc,
		CacheMaxEntries: cfg.Search.CacheMaxEntries,
	})
	w := worker.New(store, cfg.Search.QueueSize, tel, analytics.NewObserver(sinks...))
	tel.WatchQueue(w.Pending)
	w.Start(gctx)
	defer w.Close()
	checker.Register("search_worker", func(ctx context.Context) health.ComponentHealth {
		if !w.Alive() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "worker stopped"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d queued", w.Pending())}
	})

	seq := &worker.Sequencer{}
	var reloader *reload.Reloader
	if len(sources.Names()) > 0 {
		reloader = reload.New(sources, w, seq, cfg.Source.Default, cfg.Source.FetchTimeout)
	}

	if cfg.Kafka.Enabled && reloader != nil {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DatasetChanged, reloader.HandleEvent())
		g.Go(func() error { return consumer.Start(gctx) })
		slog.Info("dataset-changed consumer started", "topic", cfg.Kafka.Topics.DatasetChanged)
	}

	tracer := tracing.NewTracer(cfg.Tracing)
	opts := handler.Options{
		Tracer:         tracer,
		RequestTimeout: cfg.Search.RequestTimeout,
		MaxResults:     cfg.Search.MaxResults,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if reloader != nil {
		opts.Reloader = reloader
	}
	h := handler.New(w, seq, opts)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		chain = middleware.RateLimit(middleware.NewLimiter(ctx, cfg.Server.RateLimit, time.Minute))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins))(chain)
	}
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	g.Go(func() error {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.RPC.Enabled {
		rpcServer := grpc.NewServer(cfg.Search.RequestTimeout)
		if reloader != nil {
			rpc.Register(rpcServer, w, seq, reloader)
		} else {
			rpc.Register(rpcServer, w, seq, nil)
		}
		g.Go(func() error { return rpcServer.Serve(cfg.RPC.Addr) })
		g.Go(func() error {
			<-gctx.Done()
			rpcServer.Stop()
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(sctx)
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
