package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"market_engine/internal/api"
	"market_engine/internal/domain"
	"market_engine/internal/engine"
	"market_engine/internal/gateway"
	"market_engine/internal/infra"
	"market_engine/internal/infra/cache"
	"market_engine/internal/infra/storage"
	"market_engine/internal/loader"
	"market_engine/internal/market"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *infra.Metrics
	Storage    *storage.Storage
	Cache      cache.BytesCache
	Downloader *infra.IconDownloader
	Tickers    *market.TickerStore
	Gateway    gateway.Gateway
	Engine     *engine.Engine
	Server     *api.Server

	closers []func() error
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and wires every component. Nothing is
// started yet.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping market engine...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if errors.Is(err, domain.ErrConfigNotFound) {
		slog.Warn("Config file not found, using defaults", slog.String("path", configPath))
		cfg, err = infra.DefaultConfig(), nil
	}
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	b.Logger = logger

	// 3. Metrics
	b.Registry = prometheus.NewRegistry()
	b.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	b.Metrics = infra.NewMetrics(b.Registry)

	// 4. Initialize Storage (DB)
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dir, err := infra.UserDataDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data dir: %w", err)
		}
		dbPath = storage.DefaultDBPath(dir)
	}
	store, err := storage.NewStorage(dbPath)
	if err != nil {
		return err
	}
	b.Storage = store
	b.closers = append(b.closers, store.Close)
	logger.Info("✅ Database initialized", slog.String("path", dbPath))

	// 5. Payload cache
	b.Cache = b.newCache(cfg.Cache)

	// 6. Icon downloader
	if cfg.Icons.Enabled {
		downloader, err := infra.NewIconDownloader(cfg.Icons.Dir, logger)
		if err != nil {
			return err
		}
		b.Downloader = downloader
		logger.Info("✅ Icon downloader ready")
	}

	// 7. Gateways and engine
	b.Tickers = market.NewTickerStore()
	b.Gateway = b.newGateway(cfg)

	deps := engine.Deps{
		Loader: loader.New(b.Gateway,
			loader.WithConcurrency(cfg.Gateway.Concurrency),
			loader.WithLogger(logger),
			loader.WithObserver(func(kind gateway.Kind, err error, elapsed time.Duration) {
				b.Metrics.ObserveFetch(string(kind), err, elapsed)
			}),
		),
		Gateway:   b.Gateway,
		Tickers:   b.Tickers,
		Cache:     store,
		Globals:   store,
		Settings:  store,
		IconStore: store,
		Metrics:   b.Metrics,
		Logger:    logger,
		DumpPath:  filepath.Join(cfg.Logging.Dir, "state_dump.json"),
	}
	if b.Downloader != nil {
		deps.Icons = b.Downloader
	}

	eng, err := engine.New(engineConfig(cfg), deps)
	if err != nil {
		return err
	}
	b.Engine = eng

	// 8. HTTP server
	b.Server = api.NewServer(api.ServerConfig{
		Addr:           cfg.Server.Addr,
		StreamInterval: cfg.Server.StreamInterval,
		ReadTimeout:    10 * time.Second,
	}, api.NewHandler(eng, logger), b.Registry, b.Metrics, logger)

	return nil
}

// Run starts the engine and the server and blocks until ctx is done.
func (b *Bootstrap) Run(ctx context.Context) error {
	if err := b.Engine.Start(ctx); err != nil {
		return err
	}
	b.Server.Start()

	select {
	case <-b.Engine.Ready():
		b.Logger.Info("✨ Market engine fully operational",
			slog.String("state", b.Engine.State().String()),
		)
	case <-ctx.Done():
	}

	<-ctx.Done()
	b.Logger.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), b.Config.Server.ShutdownGrace)
	defer cancel()
	return b.Shutdown(shutdownCtx)
}

// Shutdown stops the server and the engine and releases resources.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	var errs []error
	if b.Server != nil {
		errs = append(errs, b.Server.Stop(ctx))
	}
	if b.Engine != nil {
		errs = append(errs, b.Engine.Stop(ctx))
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func (b *Bootstrap) newCache(cfg infra.CacheConfig) cache.BytesCache {
	switch cfg.Backend {
	case "none":
		return nil
	case "redis":
		rc := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			b.Logger.Warn("Redis unavailable, falling back to in-memory cache",
				slog.String("addr", cfg.Addr), slog.Any("error", err))
			_ = rc.Close()
			return cache.NewTTLCache()
		}
		b.closers = append(b.closers, rc.Close)
		b.Logger.Info("✅ Redis cache connected", slog.String("addr", cfg.Addr))
		return rc
	default:
		return cache.NewTTLCache()
	}
}

// newGateway routes configured kinds to the HTTP upstreams and everything
// else to the simulated source, which follows live ticker prices.
func (b *Bootstrap) newGateway(cfg *infra.Config) gateway.Gateway {
	tickers := b.Tickers
	sim := gateway.NewSimulated(cfg.Gateway.SimSeed, gateway.WithPriceSource(func(symbol string) (float64, bool) {
		in, ok := tickers.FindBySymbol(symbol)
		return in.Price, ok
	}))
	mux := gateway.NewMux(sim)

	httpGw := gateway.NewHTTP(gateway.Endpoints{
		MarketURL:    cfg.Gateway.MarketURL,
		FearGreedURL: cfg.Gateway.FearGreedURL,
		ExchangeURL:  cfg.Gateway.ExchangeURL,
		ContentURL:   cfg.Gateway.ContentURL,
		AccountURL:   cfg.Gateway.AccountURL,
		VSCurrency:   cfg.Gateway.VSCurrency,
	}, gateway.WithTimeout(cfg.Gateway.Timeout), gateway.WithLogger(b.Logger))
	if kinds := httpGw.Kinds(); len(kinds) > 0 {
		mux.Handle(httpGw, kinds...)
		b.Logger.Info("✅ HTTP upstreams configured", slog.Any("kinds", kinds))
	} else {
		b.Logger.Info("No upstream configured, running on simulated data")
	}

	if b.Cache == nil {
		return mux
	}
	return gateway.NewCached(mux, b.Cache, cfg.Cache.TTL, b.Logger)
}

func engineConfig(cfg *infra.Config) engine.Config {
	return engine.Config{
		DefaultPair:       cfg.Engine.DefaultPair,
		InstrumentsTop:    cfg.Engine.InstrumentsTop,
		FastInterval:      cfg.Engine.FastInterval,
		MediumInterval:    cfg.Engine.MediumInterval,
		RemoteTickProb:    cfg.Engine.RemoteTickProb,
		GlobalsSampleProb: cfg.Engine.GlobalsSampleProb,
		TapeCapacity:      cfg.Engine.TapeCapacity,
		BookDepth:         cfg.Engine.BookDepth,
		NewsLimit:         cfg.Engine.NewsLimit,
		IconConcurrency:   cfg.Icons.Concurrency,
	}
}
