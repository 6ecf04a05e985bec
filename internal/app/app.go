package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/like-Ocean/TODOs/internal/cache"
	"github.com/like-Ocean/TODOs/internal/config"
	"github.com/like-Ocean/TODOs/internal/importer"
	"github.com/like-Ocean/TODOs/internal/metrics"
	"github.com/like-Ocean/TODOs/internal/realtime"
	"github.com/like-Ocean/TODOs/internal/repo"
	"github.com/like-Ocean/TODOs/internal/service"
	"github.com/like-Ocean/TODOs/migrations"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg      config.Config
	db       *pgxpool.Pool
	redis    *redis.Client
	metrics  *prometheus.Registry
	registry *realtime.Registry
	tasks    *service.TaskService
	importer *importer.Controller
	router   *gin.Engine
}

func New(cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	db, err := newPostgres(cfg.PG.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db

	rdb, err := newRedis(cfg.Redis)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.redis = rdb

	if err := migrations.Up(cfg.PG.DSN); err != nil {
		a.redis.Close()
		a.db.Close()
		return nil, err
	}

	if err := a.wire(); err != nil {
		a.redis.Close()
		a.db.Close()
		return nil, err
	}

	a.router = newRouter(cfg)
	Setup(a.router, a)
	return a, nil
}

func (a *App) wire() error {
	a.metrics = metrics.NewRegistry()
	a.registry = realtime.NewRegistry(a.cfg.HTTP.Origins(), metrics.NewWebSocketMetrics(a.metrics))

	taskCache := cache.NewTaskCache(a.redis, a.cfg.Redis.DefaultTTL.Duration())
	a.tasks = service.NewTaskService(repo.NewPGTaskRepo(a.db), taskCache, a.registry)

	src, err := importer.NewHTTPSource(a.cfg.Import.SourceURL, a.cfg.Import.Timeout.Duration(), nil)
	if err != nil {
		return fmt.Errorf("import source: %w", err)
	}
	a.importer = importer.NewController(importer.Config{
		Interval:  a.cfg.Import.Interval.Duration(),
		SourceURL: src.URL(),
		PageSize:  a.cfg.Import.PageSize,
	}, src, a.tasks, a.registry, clockwork.NewRealClock(), metrics.NewImportMetrics(a.metrics))
	return nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches background work that runs alongside the HTTP server.
func (a *App) Start() {
	if a.cfg.Import.AutoStart {
		a.importer.Start()
		slog.Info("Task importer started", "interval", a.cfg.Import.Interval.Duration(), "source", a.cfg.Import.SourceURL)
	}
}

// Close stops the importer, disconnects realtime clients and releases
// the Redis and Postgres connections.
func (a *App) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.importer != nil {
			a.importer.Stop()
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Importer did not stop before shutdown deadline")
	}

	if a.registry != nil {
		a.registry.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

func newPostgres(dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg parse config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	return pool, nil
}

func newRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

func newRouter(cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.Use(cors.New(corsConfig(cfg.HTTP.Origins())))

	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = origins
	cc.AllowCredentials = true
	return cc
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"remote", c.ClientIP(),
		}
		if status >= http.StatusInternalServerError {
			slog.Error("HTTP request", attrs...)
			return
		}
		slog.Debug("HTTP request", attrs...)
	}
}
