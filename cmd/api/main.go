package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/driving-school-api/api/swagger"
	"github.com/noah-isme/driving-school-api/internal/handler"
	"github.com/noah-isme/driving-school-api/internal/reconcile"
	"github.com/noah-isme/driving-school-api/internal/repository"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/cache"
	"github.com/noah-isme/driving-school-api/pkg/config"
	"github.com/noah-isme/driving-school-api/pkg/database"
	"github.com/noah-isme/driving-school-api/pkg/export"
	"github.com/noah-isme/driving-school-api/pkg/jobs"
	"github.com/noah-isme/driving-school-api/pkg/logger"
)

// @title Driving School Schedule API
// @version 1.0.0
// @description Instructor schedule edit sessions and reconciliation against the persisted calendar.
// @BasePath /api/v1
// @schemes http https

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Migrations.AutoRun {
		migrator, err := database.NewMigrator(db, logr.Named("migrations"))
		if err != nil {
			return err
		}
		if err := migrator.Up(ctx); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, ticket class cache disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, logr.Named("cache"), service.CacheConfig{
		Enabled:    cfg.Enrichment.CacheEnabled && redisClient != nil,
		DefaultTTL: cfg.Enrichment.CacheTTL,
	})

	slotRepo := repository.NewInstructorSlotRepository(db)
	ticketRepo := repository.NewTicketClassRepository(db)

	enrichment := service.NewTicketClassEnrichmentService(ticketRepo, cacheSvc, logr.Named("enrichment"), service.TicketClassEnrichmentConfig{
		CacheTTL: cfg.Enrichment.CacheTTL,
	})
	enrichmentQueue := jobs.NewQueue("ticket-class-enrichment", enrichment.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Enrichment.Workers,
		BufferSize: cfg.Enrichment.QueueSize,
		MaxRetries: cfg.Enrichment.WorkerRetries,
		Logger:     logr.Named("jobs"),
		Observer:   metrics,
	})
	enrichment.AttachQueue(enrichmentQueue)
	enrichmentQueue.Start(ctx)
	defer enrichmentQueue.Stop()

	store := service.NewSessionStore(service.SessionStoreConfig{
		TTL:      cfg.Sessions.TTL,
		OnResize: metrics.SetActiveSessions,
	})
	policy := reconcile.Policy{
		CrossCategoryGuard:      cfg.Reconcile.CrossCategoryGuard,
		SymmetricSizeGuard:      cfg.Reconcile.SymmetricSizeGuard,
		MassDeletionGuard:       cfg.Reconcile.MassDeletionGuard,
		MassDeletionMinOriginal: cfg.Reconcile.MassDeletionMinOriginal,
	}
	syncSvc := service.NewScheduleSyncService(slotRepo, ticketRepo, enrichment, db, store, metrics, validate, logr.Named("schedule"), service.ScheduleSyncConfig{
		Policy: &policy,
	})
	exportSvc := service.NewExportService(syncSvc, service.ExportConfig{Title: cfg.Exports.Title}, logr.Named("export"), export.NewCSVExporter(), export.NewPDFExporter())

	janitor := service.NewSessionJanitor(store, cfg.Sessions.SweepSchedule, metrics, logr.Named("janitor"))
	if err := janitor.Start(); err != nil {
		return err
	}
	defer func() { <-janitor.Stop().Done() }()

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = redisPing(redisClient)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, logr, metrics, handler.NewMetricsHandler(metrics, checks), handler.NewScheduleSessionHandler(syncSvc, exportSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func redisPing(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
