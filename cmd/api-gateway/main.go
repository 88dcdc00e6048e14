package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nimendoza/B2023-R3X-07/internal/catalog"
	"github.com/nimendoza/B2023-R3X-07/internal/handler"
	internalmiddleware "github.com/nimendoza/B2023-R3X-07/internal/middleware"
	"github.com/nimendoza/B2023-R3X-07/internal/repository"
	"github.com/nimendoza/B2023-R3X-07/internal/service"
	"github.com/nimendoza/B2023-R3X-07/pkg/cache"
	"github.com/nimendoza/B2023-R3X-07/pkg/config"
	"github.com/nimendoza/B2023-R3X-07/pkg/database"
	"github.com/nimendoza/B2023-R3X-07/pkg/jobs"
	"github.com/nimendoza/B2023-R3X-07/pkg/logger"
	corsmiddleware "github.com/nimendoza/B2023-R3X-07/pkg/middleware/cors"
	reqidmiddleware "github.com/nimendoza/B2023-R3X-07/pkg/middleware/requestid"
	"github.com/nimendoza/B2023-R3X-07/pkg/storage"
)

const exportCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck
	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("schema migration failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if client, err := cache.NewRedis(ctx, cfg.Redis); err != nil {
		logr.Warn("redis unavailable, run cache disabled", zap.Error(err))
	} else {
		redisClient = client
		defer redisClient.Close() //nolint:errcheck
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("export storage unavailable", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, "sectioner:")
	runRepo := repository.NewRunRepository(db)

	allocations := service.NewAllocationService(
		catalog.NewBuilder(validate),
		runRepo,
		runRepo,
		service.NewCacheService(cacheRepo, metrics, cfg.Runs.CacheTTL, logr, redisClient != nil),
		files,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		metrics,
		validate,
		logr,
		service.AllocationServiceConfig{
			Allocator: cfg.Allocator,
			APIPrefix: cfg.APIPrefix,
			CacheTTL:  cfg.Runs.CacheTTL,
			ExportTTL: cfg.Exports.SignedURLTTL,
		},
	)

	queue := jobs.NewQueue("allocation-runs", allocations.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Runs.WorkerConcurrency,
		MaxRetries: cfg.Runs.WorkerRetries,
		OnFailure:  allocations.HandleJobFailure,
		Logger:     logr,
	})
	queue.Start(ctx)
	allocations.AttachQueue(queue)

	go cleanupExports(ctx, allocations, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		checks := gin.H{"database": "ok", "redis": "disabled"}
		status := http.StatusOK
		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := cacheRepo.Ping(c.Request.Context()); err != nil {
				checks["redis"] = err.Error()
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authority := internalmiddleware.NewTokenAuthority(cfg.JWT.Secret)
	api := r.Group(cfg.APIPrefix)
	handler.NewAllocationHandler(allocations).RegisterRoutes(api,
		internalmiddleware.JWT(authority),
		internalmiddleware.RequireRoles(internalmiddleware.RoleAdmin, internalmiddleware.RoleScheduler),
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
	queue.Stop()
}

func cleanupExports(ctx context.Context, svc *service.AllocationService, logr *zap.Logger) {
	ticker := time.NewTicker(exportCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.CleanupExports(); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}
