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
	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/handler"
	"github.com/noah-isme/academy-api/internal/middleware"
	"github.com/noah-isme/academy-api/internal/models"
	"github.com/noah-isme/academy-api/internal/repository"
	"github.com/noah-isme/academy-api/internal/service"
	"github.com/noah-isme/academy-api/pkg/cache"
	"github.com/noah-isme/academy-api/pkg/calendar"
	"github.com/noah-isme/academy-api/pkg/config"
	"github.com/noah-isme/academy-api/pkg/database"
	"github.com/noah-isme/academy-api/pkg/jobs"
	"github.com/noah-isme/academy-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-api/pkg/middleware/requestid"
)

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		if version, err := database.MigrationVersion(ctx, db); err == nil {
			logr.Info("schema ready", zap.Int64("version", version))
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Lifecycle.SettingsCacheTTL, logr)

	students := repository.NewStudentRepository(db)
	schedules := repository.NewClassScheduleRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	credits := repository.NewCreditRepository(db)
	seasons := repository.NewSeasonEnrollmentRepository(db)

	settingsSvc := service.NewSettingsService(repository.NewSettingsRepository(db), cacheSvc, cfg.Lifecycle, validate, logr)
	ledger := service.NewCreditLedger(db, credits, invoices, students, metrics, validate, logr)
	lifecycle := service.NewLifecycleService(service.LifecycleServiceDeps{
		Tx:         db,
		Students:   students,
		Invoices:   invoices,
		Seasons:    seasons,
		Attendance: attendance,
		Assigner:   service.NewScheduleAssigner(schedules, attendance),
		Proration:  service.NewProrationCalculator(cfg.Lifecycle.ResumeDueOffsetDays),
		Credits:    ledger,
		Settings:   settingsSvc,
		Clock:      calendar.SystemClock{},
		Metrics:    metrics,
		Validator:  validate,
		Logger:     logr,
	})
	tokens := service.NewTokenService(cfg.JWT.Secret)

	housekeeper := service.NewTrialHousekeeper(students, lifecycle, logr)
	queue := jobs.NewQueue("lifecycle", housekeeper.Handle, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		Logger:     logr,
	})
	queue.Start(ctx)
	go jobs.Every(ctx, queue, cfg.Lifecycle.HousekeepingInterval, service.TrialExpiryJobType, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	registerRoutes(r.Group(cfg.APIPrefix, middleware.JWT(tokens)), routeHandlers{
		lifecycle: handler.NewLifecycleHandler(lifecycle),
		credits:   handler.NewCreditHandler(ledger),
		settings:  handler.NewSettingsHandler(settingsSvc),
		metrics:   metricsHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	queue.Stop()
}

type routeHandlers struct {
	lifecycle *handler.LifecycleHandler
	credits   *handler.CreditHandler
	settings  *handler.SettingsHandler
	metrics   *handler.MetricsHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers) {
	everyone := middleware.RequireRoles(models.RoleOwner, models.RoleAdmin, models.RoleStaff)
	managers := middleware.RequireRoles(models.RoleOwner, models.RoleAdmin)

	students := api.Group("/students")
	students.POST("", everyone, h.lifecycle.Enroll)
	students.PATCH("/:id/status", everyone, h.lifecycle.ChangeStatus)
	students.PATCH("/:id/schedule", everyone, h.lifecycle.ChangeSchedule)
	students.GET("/:id/credits", everyone, h.credits.ListByStudent)

	credits := api.Group("/credits", managers)
	credits.POST("/manual", h.credits.CreateManual)
	credits.POST("/:id/apply", h.credits.Apply)
	credits.PATCH("/:id", h.credits.Update)
	credits.DELETE("/:id", h.credits.Delete)

	api.GET("/settings", everyone, h.settings.Get)
	api.PUT("/settings", middleware.RequireRoles(models.RoleOwner), h.settings.Update)

	api.POST("/lifecycle/trials/expire", managers, h.lifecycle.ExpireTrials)
	api.GET("/metrics/snapshot", managers, h.metrics.Snapshot)
}
