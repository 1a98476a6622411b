package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/ryanbastic/go-pixelwall/internal/api"
	"github.com/ryanbastic/go-pixelwall/internal/circuitbreaker"
	"github.com/ryanbastic/go-pixelwall/internal/config"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/metrics"
	"github.com/ryanbastic/go-pixelwall/internal/ratelimit"
	"github.com/ryanbastic/go-pixelwall/internal/session"
	"github.com/ryanbastic/go-pixelwall/internal/storage"
	"github.com/ryanbastic/go-pixelwall/internal/sweep"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

// Idle rate limiter entries older than this are dropped.
const limiterIdle = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL when it backs the snapshot store
	var pool *pgxpool.Pool
	if storage.Backend(cfg.StorageBackend) == storage.BackendPostgres {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
	}

	store, err := openStore(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	bus := trigger.NewBus()
	bus.Subscribe(recorder.ObserveEvent)

	wall := ledger.New(ledger.Options{
		GridSize:      cfg.GridSize,
		LockDuration:  cfg.LockDuration,
		AnonymousName: cfg.AnonymousName,
		Publisher:     bus,
		Logger:        logger,
	})

	// Plugins
	var pluginStore trigger.PluginStore
	if pool != nil {
		pluginStore = trigger.NewPostgresPluginStore(pool, cfg.QueryTimeout)
	}
	plugins := trigger.NewPluginRegistry(pluginStore)
	if err := plugins.LoadAll(ctx); err != nil {
		logger.Error("failed to load plugins", "error", err)
		os.Exit(1)
	}
	if cfg.PluginConfigPath != "" {
		if err := registerConfiguredPlugins(ctx, plugins, cfg.PluginConfigPath, logger); err != nil {
			logger.Error("failed to register configured plugins", "path", cfg.PluginConfigPath, "error", err)
			os.Exit(1)
		}
	}
	notifier := trigger.NewNotifier(
		plugins,
		trigger.NewRPCClient(cfg.TriggerRetryMax, cfg.TriggerRetryBackoff, cfg.TriggerRPCTimeout),
		circuitbreaker.NewSet(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout),
		recorder,
		logger,
	)
	detach := notifier.Attach(bus)

	sessions := session.NewRegistry(ctx, session.Options{
		Ledger: wall,
		Bus:    bus,
		Camera: viewport.Config{
			GridSize:    cfg.GridSize,
			CellSize:    cfg.CellSize,
			MinScale:    cfg.MinScale,
			MaxScale:    cfg.MaxScale,
			MaxFitScale: cfg.MaxFitScale,
			FitPadding:  cfg.FitPadding,
		},
		FrameInterval: cfg.FrameInterval,
		Logger:        logger,
	}, cfg.MaxSessions)

	pingers := map[string]api.Pinger{}
	pools := map[string]*pgxpool.Pool{}
	if pool != nil {
		pingers["postgres"] = pool
		pools["main"] = pool
	}
	prometheus.MustRegister(metrics.NewLedgerCollector(wall, sessions.Len))
	if len(pools) > 0 {
		prometheus.MustRegister(metrics.NewPoolCollector(pools))
	}
	health := api.NewHealthHandler(pingers, logger)
	limiter := ratelimit.New(cfg.ClaimRateLimit, cfg.ClaimRateBurst)

	handler := api.NewServer(api.Deps{
		Ledger:    wall,
		Bus:       bus,
		Sessions:  sessions,
		Plugins:   plugins,
		Limiter:   limiter,
		Claims:    recorder,
		Health:    health,
		ClearMode: ledger.ClearMode(cfg.ClearMode),
		Logger:    logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Serve liveness right away; every other /v1 route answers 503 until
	// the snapshot is loaded.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	report := sweep.Bootstrap(gctx, wall, store, logger)
	logger.Info("ledger restored",
		"cells", report.Cells,
		"records", report.Records,
		"expired", report.Expired,
		"dropped_cells", report.DroppedCells,
		"dropped_records", report.DroppedRecords)
	health.SetReady(true)

	sweeper := sweep.NewSweeper(wall, cfg.SweepInterval, recorder, logger)
	persister := sweep.NewPersister(wall, store, cfg.PersistInterval, recorder, logger)
	g.Go(func() error { return sweeper.Run(gctx) })
	// The persister outlives gctx: its final flush runs only after the
	// server and sessions have stopped accepting work.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	defer stopPersist()
	persistDone := make(chan error, 1)
	go func() { persistDone <- persister.Run(persistCtx, bus) }()
	g.Go(func() error {
		ticker := time.NewTicker(limiterIdle)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.Prune(limiterIdle); n > 0 {
					logger.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		health.SetReady(false)

		stopAll(logger,
			stopStep{"http", 10 * time.Second, srv.Shutdown},
			stopStep{"sessions", time.Second, func(context.Context) error { sessions.CloseAll(); return nil }},
			stopStep{"notifier", 5 * time.Second, func(ctx context.Context) error { detach(); return notifier.Close(ctx) }},
			stopStep{"persister", 10 * time.Second, waitFor(stopPersist, persistDone)},
		)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (storage.SnapshotStore, error) {
	switch storage.Backend(cfg.StorageBackend) {
	case storage.BackendBadger:
		return storage.OpenBadger(storage.BadgerConfig{Path: cfg.BadgerPath, Logger: logger}, logger)
	case storage.BackendPostgres:
		s := storage.NewPostgresStore(pool, cfg.NumShards, cfg.QueryTimeout, logger)
		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}
		logger.Info("migrations complete", "shards", cfg.NumShards)
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

func registerConfiguredPlugins(ctx context.Context, plugins *trigger.PluginRegistry, path string, logger *slog.Logger) error {
	pc, err := config.LoadPluginConfig(path)
	if err != nil {
		return err
	}
	existing := make(map[string]bool)
	for _, p := range plugins.List() {
		existing[p.Name] = true
	}
	for _, def := range pc.Plugins {
		if existing[def.Name] {
			logger.Info("plugin already registered", "name", def.Name)
			continue
		}
		kinds := make([]trigger.Kind, len(def.SubscribedKinds))
		for i, k := range def.SubscribedKinds {
			kinds[i] = trigger.Kind(k)
		}
		p := &trigger.Plugin{Name: def.Name, Endpoint: def.Endpoint, SubscribedKinds: kinds}
		if err := plugins.Register(ctx, p); err != nil {
			return err
		}
		logger.Info("plugin registered from config", "id", p.ID, "name", p.Name)
	}
	return nil
}
