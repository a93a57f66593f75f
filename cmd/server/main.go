package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/citycrawl/crawl/internal/auth"
	"github.com/citycrawl/crawl/internal/cache"
	"github.com/citycrawl/crawl/internal/config"
	"github.com/citycrawl/crawl/internal/content"
	"github.com/citycrawl/crawl/internal/crawl"
	"github.com/citycrawl/crawl/internal/database"
	"github.com/citycrawl/crawl/internal/handler/health"
	"github.com/citycrawl/crawl/internal/migrations"
	"github.com/citycrawl/crawl/internal/progress"
	"github.com/citycrawl/crawl/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, err := migrations.Version(db)
	if err != nil {
		return err
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "schema_version", version)

	store := server.NewSQLiteStore(db)
	if err := server.SeedAdmin(ctx, logger, store, cfg.AdminEmail, cfg.AdminPasswordHash); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	contentFS := os.DirFS(cfg.ContentDir)
	if err := server.SeedContent(ctx, logger, store, contentFS); err != nil {
		return fmt.Errorf("seeding content: %w", err)
	}

	checks := map[string]health.Checker{"sqlite": health.SQL(db)}

	// --- Catalog ---
	var catalog crawl.Catalog = store
	if cfg.ContentSource == config.ContentYAML {
		catalog = content.NewCatalog(contentFS, logger)
		logger.Info("serving crawls from yaml", "dir", cfg.ContentDir)
	}

	// --- Redis (optional) ---
	var invalidator server.Invalidator
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		cached := cache.New(catalog, rdb, cfg.CacheTTL, logger)
		catalog = cached
		invalidator = cached
		checks["redis"] = health.Redis(rdb)
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, server.Deps{
		Logger:      logger,
		Store:       store,
		Catalog:     catalog,
		Tracker:     progress.NewTracker(store, catalog, logger),
		Verifier:    auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		Broker:      server.NewBroker(),
		Invalidator: invalidator,
		Checks:      checks,
		SPADir:      cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
