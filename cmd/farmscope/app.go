package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"farmScope/internal/cache"
	"farmScope/internal/cache/memory"
	"farmScope/internal/cache/postgres"
	"farmScope/internal/cache/redis"
	"farmScope/internal/config"
	"farmScope/internal/exchange"
	"farmScope/internal/farming"
	"farmScope/internal/mirror"
	"farmScope/internal/mirror/mongo"
	"farmScope/internal/near"
	"farmScope/internal/observability"
	"farmScope/internal/refresh"
	"farmScope/internal/token"
)

// app holds the process-wide handles built from the configuration.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	client   *near.Client
	store    cache.Store
	cols     *cache.Collections
	sink     mirror.Sink
	orch     *refresh.Orchestrator
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		logger.Sync()
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	client, err := near.NewClient(cfg.RPCURL,
		near.WithCallTimeout(cfg.CallTimeout),
		near.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
		near.WithRateLimit(cfg.RPS, cfg.Concurrency),
		near.WithLogger(logger),
		near.WithObserver(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client

	store, err := openStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s cache: %w", cfg.CacheBackend, err)
	}
	a.store = store
	a.cols = cache.NewCollections(store, cfg.CachePrefix)

	sink, err := openMirror(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sink = sink

	tokens := token.NewResolver(client, cfg.ExchangeContract, token.NewCache(), cfg.Concurrency, logger)
	farms := farming.NewResolver(farming.Config{
		FarmContract: cfg.FarmContract,
		SeedPageSize: cfg.SeedPageSize,
		Concurrency:  cfg.Concurrency,
	}, client, logger)
	pools := exchange.NewPoolAggregator(exchange.Config{
		ExchangeContract: cfg.ExchangeContract,
		PageSize:         cfg.PoolPageSize,
	}, client, tokens, logger)

	opts := []refresh.Option{refresh.WithMetrics(a.metrics)}
	if sink != nil {
		opts = append(opts, refresh.WithMirror(sink))
	}
	if cfg.ReportFile != "" {
		opts = append(opts, refresh.WithReportStore(&refresh.FileReportStore{Path: cfg.ReportFile}))
	}
	a.orch = refresh.NewOrchestrator(refresh.Config{LeaseTTL: cfg.LeaseTTL}, a.cols, tokens, farms, pools, logger, opts...)

	logger.Info("farmscope ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("exchange", cfg.ExchangeContract),
		zap.String("farming", cfg.FarmContract),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("cache_prefix", cfg.CachePrefix),
		zap.Strings("mirror", cfg.Mirror),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Float64("rps", cfg.RPS),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.BackendRedis:
		return redis.NewStore(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TLS:      cfg.RedisTLS,
		})
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func openMirror(ctx context.Context, cfg config.Config, logger *zap.Logger) (mirror.Sink, error) {
	var sinks mirror.Multi
	for _, name := range cfg.Mirror {
		switch name {
		case config.MirrorMongo:
			sink, err := mongo.NewSink(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
			if err != nil {
				sinks.Close(ctx)
				return nil, err
			}
			sinks = append(sinks, sink)
		case config.MirrorJSONL:
			sinks = append(sinks, mirror.NewJSONLSink(cfg.MirrorDir))
		}
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func (a *app) Close() {
	ctx := context.Background()
	if a.sink != nil {
		if err := a.sink.Close(ctx); err != nil {
			a.logger.Warn("close mirror", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close cache store", zap.Error(err))
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}
