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

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/bookmark"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/consumer"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/links"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	snapshotInterval = time.Minute
	snapshotsKept    = 60
	slowRequest      = 500 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("bookmark service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("bookmark service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting bookmark service",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Kind,
		"cache", cfg.Cache.Backend,
		"kafka", cfg.Kafka.Enabled,
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	queryCache, cacheCloser, err := cache.Open(ctx, cfg.Cache, cfg.Redis)
	if err != nil {
		return err
	}
	defer cacheCloser.Close()

	opts := []bookmark.Option{bookmark.WithMetrics(m)}
	if queryCache != nil {
		opts = append(opts, bookmark.WithCache(queryCache))
	}
	idx, err := bookmark.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer idx.Close()

	aggregator := analytics.NewAggregator()
	var sink analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		sink = producer
	}
	collector := analytics.NewCollector(sink, 10000, 100, time.Second)
	collector.Start(ctx)
	defer collector.Close()
	snapshots := analytics.NewSnapshotStore(idx.Store())

	svc, err := links.New(ctx, idx, links.ConfigFrom(cfg), links.WithTracker(collector))
	if err != nil {
		return err
	}

	checker := health.NewChecker(2 * time.Second)
	checker.Register("index", health.PingCheck(svc))
	if p, ok := cacheCloser.(health.Pinger); ok {
		checker.RegisterOptional("cache", health.PingCheck(p))
	}

	mux := http.NewServeMux()
	links.NewHandler(svc, queryCache).Register(mux)
	analytics.NewHandler(aggregator, snapshots).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Kafka.Enabled {
		ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.LinkIngest)
		defer ingestProducer.Close()
		ingesthandler.New(publisher.New(ingestProducer)).Register(mux)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	var limiter *middleware.ClientLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.Trace(slowRequest)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.RPC.Enabled {
		rpc := grpc.NewServer()
		links.RegisterRPC(rpc, svc)
		g.Go(func() error {
			slog.Info("rpc listening", "addr", cfg.RPC.Addr, "methods", rpc.MethodCount())
			if err := rpc.ListenAndServe(cfg.RPC.Addr); err != nil && !errors.Is(err, grpc.ErrServerClosed) {
				return fmt.Errorf("rpc server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			rpc.Stop()
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		ingest := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.LinkIngest,
			consumer.HandleMessage(svc, m, consumer.DefaultRetry)))
		g.Go(func() error { return ingest.Start(gctx) })

		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleMessage())
		g.Go(func() error { return events.Start(gctx) })
	}

	if limiter != nil {
		g.Go(func() error {
			limiter.Run(gctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		svc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		snapshots.Run(gctx, aggregator, snapshotInterval, snapshotsKept)
		return nil
	})

	slog.Info("bookmark service ready", "links", svc.Count(), "generation", idx.Generation())
	err = g.Wait()

	// Drain in dependency order: buffered links first, then analytics.
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if cerr := svc.Close(closeCtx); cerr != nil {
		err = errors.Join(err, fmt.Errorf("final commit: %w", cerr))
	}
	collector.Close()
	if serr := snapshots.Save(closeCtx, aggregator.Stats()); serr != nil {
		slog.Warn("final analytics snapshot failed", "error", serr)
	}
	return err
}
