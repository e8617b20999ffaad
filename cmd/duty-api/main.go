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

	"github.com/campusops/invigil-api/internal/handler"
	"github.com/campusops/invigil-api/internal/middleware"
	"github.com/campusops/invigil-api/internal/models"
	"github.com/campusops/invigil-api/internal/repository"
	"github.com/campusops/invigil-api/internal/service"
	"github.com/campusops/invigil-api/pkg/cache"
	"github.com/campusops/invigil-api/pkg/config"
	"github.com/campusops/invigil-api/pkg/database"
	"github.com/campusops/invigil-api/pkg/export"
	"github.com/campusops/invigil-api/pkg/lock"
	"github.com/campusops/invigil-api/pkg/logger"
	corsmiddleware "github.com/campusops/invigil-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/invigil-api/pkg/middleware/requestid"
	"github.com/campusops/invigil-api/pkg/notify"
)

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// Redis backs the run lock and the notification channel; a single-node
	// deployment without Redis falls back to in-process equivalents.
	var locker lock.Locker = lock.NewMemoryLocker()
	var emitter notify.Emitter = notify.NopEmitter{}
	var dispatcher *notify.Dispatcher

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process run lock", zap.Error(err))
	} else {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
		if cfg.Notifier.Enabled {
			dispatcher = notify.NewDispatcher(
				notify.NewRedisSink(redisClient, cfg.Notifier.Channel),
				notify.DispatcherConfig{
					Workers:    cfg.Notifier.Workers,
					BufferSize: cfg.Notifier.BufferSize,
					MaxRetries: cfg.Notifier.MaxRetries,
					RetryDelay: cfg.Notifier.RetryDelay,
					Logger:     logr,
				},
			)
			dispatcher.Start(ctx)
			defer dispatcher.Stop()
			emitter = dispatcher
		}
	}

	validate := validator.New()

	examRepo := repository.NewExamRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	reserveRepo := repository.NewReservedAllocationRepository(db)
	conflictRepo := repository.NewConflictRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	accountRepo := repository.NewAccountRepository(db)

	metricsSvc := service.NewMetricsService()
	conflictSvc := service.NewConflictService(allocationRepo, conflictRepo, emitter, logr)
	allocationSvc := service.NewAllocationService(
		examRepo, classroomRepo, facultyRepo, allocationRepo, reserveRepo,
		policyRepo, conflictSvc, locker, emitter, validate, logr, cfg.Allocator)
	allocationSvc.SetObserver(metricsSvc)
	lifecycleSvc := service.NewLifecycleService(allocationRepo, reserveRepo, emitter, validate, logr)
	policySvc := service.NewPolicyService(policyRepo, validate, logr)
	authSvc := service.NewAuthService(accountRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: "invigil-api",
	})
	rosterSvc := service.NewRosterService(allocationRepo, examRepo, facultyRepo, classroomRepo,
		export.NewCSVExporter(), export.NewPDFExporter(cfg.Export.InstitutionName), logr)

	allocationHandler := handler.NewAllocationHandler(allocationSvc, conflictSvc, policySvc)
	lifecycleHandler := handler.NewLifecycleHandler(lifecycleSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)

	authed.POST("/allocations/run", staff, allocationHandler.Allocate)
	authed.POST("/allocations/preview", staff, allocationHandler.Preview)
	authed.GET("/allocations", lifecycleHandler.List)
	authed.POST("/allocations/:id/acknowledge", lifecycleHandler.Acknowledge)
	authed.POST("/allocations/:id/live-status", lifecycleHandler.ReportLiveStatus)
	authed.GET("/allocations/:id/reserves", lifecycleHandler.ListReserves)
	authed.POST("/allocations/:id/activate-reserve", staff, lifecycleHandler.ActivateReserve)
	authed.DELETE("/allocations/:id", staff, lifecycleHandler.Cancel)

	authed.POST("/conflicts/detect", staff, allocationHandler.DetectConflicts)
	authed.GET("/conflicts", staff, allocationHandler.ListConflicts)
	authed.POST("/conflicts/:id/resolve", staff, allocationHandler.ResolveConflict)

	authed.GET("/policy", staff, allocationHandler.GetPolicy)
	authed.PUT("/policy", staff, allocationHandler.UpdatePolicy)

	authed.GET("/roster/export", staff, rosterHandler.Export)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
