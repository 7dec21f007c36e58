package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/metropath/internal/api"
	"github.com/metropath/internal/common/config"
	"github.com/metropath/internal/common/db"
	"github.com/metropath/internal/common/logger"
	"github.com/metropath/internal/common/maintenance"
	"github.com/metropath/internal/metro/correction"
	"github.com/metropath/internal/metro/feed"
	"github.com/metropath/internal/metro/graph"
	"github.com/metropath/internal/metro/patches"
	"github.com/metropath/internal/metro/refresher"
	"github.com/metropath/internal/metro/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLogLevel(cfg.Logging.Level)
	logCfg.FilePath = cfg.Logging.FilePath
	logCfg.DiscordURL = cfg.Logging.DiscordURL
	log := logger.NewFromConfig(logCfg)

	log.Info("Metropath starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"db_driver", cfg.Database.Driver,
		"transfer_policy", cfg.Routing.TransferPolicy)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database", "error", err)
	}
	if database != nil {
		defer database.Close()
	}

	catalog, err := loadCatalog(cfg.Routing.PatchFile)
	if err != nil {
		log.Fatal("Failed to load patch catalog", "error", err)
	}

	strategy, err := buildStrategy(cfg.Routing)
	if err != nil {
		log.Fatal("Invalid transfer policy", "error", err)
	}

	engine, err := correction.New(catalog, strategy)
	if err != nil {
		log.Fatal("Failed to create correction engine", "error", err)
	}

	var fetcher feed.Fetcher
	if cfg.Feed.File != "" {
		fetcher = feed.NewFileFetcher(cfg.Feed.File)
	} else {
		fetcher = feed.NewHTTPFetcher(cfg.Feed.URL, cfg.Feed.Timeout, log)
	}

	var (
		store  service.Store
		pruner refresher.Pruner
	)
	if database != nil {
		store = db.NewSnapshotStore(database)
		pruner = maintenance.New(database, log)
	}

	svc, err := service.New(fetcher, engine, store, service.Options{
		Weights: graph.Weights{
			Segment:  cfg.Routing.MinutesPerSegment,
			Transfer: cfg.Routing.MinutesPerTransfer,
		},
		CacheSize: cfg.Routing.RouteCacheSize,
	}, log)
	if err != nil {
		log.Fatal("Failed to create routing service", "error", err)
	}

	ref := refresher.New(refresher.Config{
		Interval:     cfg.Feed.RefreshInterval,
		KeepInactive: cfg.Database.KeepInactiveSnapshots,
	}, svc, pruner, log)

	loaded, err := svc.Load(ctx)
	if err != nil {
		log.Error("Failed to load stored snapshot", "error", err)
	}
	if !loaded {
		log.Info("No stored snapshot, seeding from feed", "source", fetcher.Source())
		if _, _, err := ref.Refresh(ctx); err != nil {
			log.Error("Initial rebuild failed, serving without a graph until the next refresh", "error", err)
		}
	}

	handler := api.NewMetroHandler(svc, ref, log)
	server := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: api.NewRouter(handler, api.RouterConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AdminAPIKey:    cfg.Server.AdminAPIKey,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("API server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ref.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Metropath stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("Metropath stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*db.DB, error) {
	var (
		database *db.DB
		err      error
	)
	switch cfg.Driver {
	case "postgres":
		database, err = db.New(cfg.ConnectionString(), log)
	case "sqlite":
		database, err = db.NewSQLite(cfg.SQLitePath, log)
	default:
		log.Info("Snapshot persistence disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func loadCatalog(path string) (*patches.Catalog, error) {
	if path == "" {
		return patches.Default()
	}
	return patches.Load(path)
}

func buildStrategy(cfg config.RoutingConfig) (correction.Strategy, error) {
	policy, err := correction.ParsePolicy(cfg.TransferPolicy)
	if err != nil {
		return correction.Strategy{}, err
	}
	switch policy {
	case correction.PolicyProximity:
		return correction.Proximity(cfg.TransferThreshold), nil
	case correction.PolicyBoth:
		return correction.Both(cfg.TransferThreshold), nil
	default:
		return correction.Curated(), nil
	}
}
