package container

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"dropified/tracksync/internal/client"
	"dropified/tracksync/internal/config"
	"dropified/tracksync/internal/domain"
	"dropified/tracksync/internal/extension"
	"dropified/tracksync/internal/metrics"
	"dropified/tracksync/internal/preferences"
	"dropified/tracksync/internal/proxy"
	"dropified/tracksync/internal/repository"
	"dropified/tracksync/internal/scraper"
	"dropified/tracksync/internal/server"
	"dropified/tracksync/internal/service"
	"dropified/tracksync/internal/state"
	"dropified/tracksync/internal/stream"
	"dropified/tracksync/internal/tracking"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Backend      client.Backend
	Bridge       extension.Bridge
	Scraper      scraper.Scraper
	Engine       *tracking.Engine
	Preferences  *preferences.Store
	StateManager state.StateManager
	Stream       *stream.RedisStream
	History      repository.RunRepository

	Service *service.Service
	Hub     *server.EventHub
	Server  *server.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	metrics.Register()

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	// Test connection
	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")
	container.redis = rdb
	container.StateManager = state.NewRedisStateManager(rdb)
	container.Stream = stream.NewRedisStream(rdb, cfg.Redis)

	checks := map[string]server.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	if cfg.Database.Enabled {
		db, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to run history database: %w", err)
		}
		container.db = db

		history := repository.NewRunRepository(db)
		if err := history.EnsureSchema(ctx); err != nil {
			container.Close()
			return nil, err
		}
		container.History = history
		checks["postgres"] = db.Ping
		log.Info("✅ Run history enabled")
	}

	container.Backend = client.NewBackendClient(cfg.Backend)

	container.Bridge = extension.NewRedialBridge(
		cfg.Extension.Address,
		time.Duration(cfg.Extension.Timeout)*time.Second,
	)

	if cfg.Scraper.Enabled {
		pool, err := proxy.NewPool(ctx, cfg.Scraper.Proxies, cfg.Scraper.ProxyTestURL, nil)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize scraper proxies: %w", err)
		}
		container.Scraper = scraper.NewScraper(cfg.Scraper, pool)
	}

	container.Engine = tracking.NewEngine(
		container.Backend,
		container.Bridge,
		container.Scraper,
		tracking.LargeBatchPolicy{
			Threshold:       cfg.Run.LargeBatchThreshold,
			MaxConcurrency:  cfg.Run.LargeBatchConcurrency,
			MinDelaySeconds: cfg.Run.LargeBatchDelaySeconds,
		},
		cfg.Extension.MinVersion,
	)

	container.Preferences = preferences.NewStore(container.Backend, domain.RunConfiguration{
		DelaySeconds:    cfg.Run.DelaySeconds,
		Concurrency:     cfg.Run.Concurrency,
		UnfulfilledOnly: cfg.Run.UnfulfilledOnly,
	})

	container.Hub = server.NewEventHub()

	container.Service = service.NewService(
		container.Engine,
		container.StateManager,
		container.History,
		container.Preferences,
		[]tracking.Reporter{container.Hub, container.Stream},
		cfg.Run.LockTTL,
	)

	router := server.NewRouter(
		container.Service,
		container.Preferences,
		container.Stream,
		container.Hub,
		checks,
		cfg.Server.Token,
	)
	container.Server = server.NewServer(cfg.Server, router)

	return container, nil
}

// Run serves the control API until ctx is cancelled, then lets active runs
// wind down.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	c.Hub.Start()
	defer c.Hub.Stop()

	// Preferences are best-effort; runs fall back to defaults until loaded
	g.Go(func() error {
		c.Preferences.Load(ctx)
		return nil
	})

	g.Go(func() error {
		return c.Server.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Service.Shutdown(shutdownCtx); err != nil {
			log.Warnf("⚠️ Runs did not settle before shutdown: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.Bridge != nil {
		c.Bridge.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}

	log.Info("Container shut down successfully")
	return nil
}
