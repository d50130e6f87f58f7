package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"replay/crumbs/internal/api"
	"replay/crumbs/internal/client"
	"replay/crumbs/internal/config"
	"replay/crumbs/internal/queue"
	"replay/crumbs/internal/repository"
	"replay/crumbs/internal/service"
	"replay/crumbs/internal/state"
	"replay/crumbs/internal/upstream"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Container holds all initialized components
type Container struct {
	Config     *config.Config
	Client     client.ReplayClient
	Repository repository.TrailRepository
	Queue      queue.Queue
	Cache      state.TrailCache
	Clicks     state.ClickRecorder

	Service *service.Service
	Server  *api.Server

	db    *pgxpool.Pool
	redis *redis.Client
}

// ConfigureLogging applies the log section to the standard logrus logger
func ConfigureLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	hosts := upstream.NewHostSupplier(ctx, cfg.ReplayAPI.BaseURL, cfg.ReplayAPI.Mirrors)

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	container.db = db

	trailRepo := repository.NewTrailRepository(db)
	if err := trailRepo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	container.Repository = trailRepo

	log.Info("✅ Connected to Postgres successfully")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	container.redis = rdb

	log.Info("✅ Connected to Redis successfully")

	redisQueue, err := queue.NewRedisQueue(ctx, rdb, cfg.Redis)
	if err != nil {
		container.Close()
		return nil, err
	}
	container.Queue = redisQueue

	container.Cache = state.NewRedisTrailCache(rdb, time.Duration(cfg.Summary.CacheTTL)*time.Second)
	container.Clicks = state.NewRedisClickRecorder(rdb)
	container.Client = client.NewReplayClient(cfg.ReplayAPI, hosts)

	container.Service = service.NewService(
		trailRepo,
		container.Client,
		redisQueue,
		container.Cache,
		container.Clicks,
		cfg.Redis.MinIdleTime,
		cfg.ReplayAPI.MaxRetries,
	)
	container.Server = api.NewServer(container.Service, log.StandardLogger(), cfg.Server.APIKey)

	return container, nil
}

// Run serves the HTTP API and runs the workers until ctx is cancelled
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", c.Config.Server.Host, c.Config.Server.Port),
		Handler:      c.Server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Infof("🚀 Listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return c.Service.RunWorkers(ctx, c.Config.ReplayAPI.MaxWorkers)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
