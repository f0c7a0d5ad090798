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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-ledger-api/api/swagger"
	"github.com/noah-isme/campus-ledger-api/internal/handler"
	"github.com/noah-isme/campus-ledger-api/internal/middleware"
	"github.com/noah-isme/campus-ledger-api/internal/repository"
	"github.com/noah-isme/campus-ledger-api/internal/service"
	"github.com/noah-isme/campus-ledger-api/pkg/backend"
	"github.com/noah-isme/campus-ledger-api/pkg/cache"
	"github.com/noah-isme/campus-ledger-api/pkg/config"
	"github.com/noah-isme/campus-ledger-api/pkg/database"
	"github.com/noah-isme/campus-ledger-api/pkg/jobs"
	"github.com/noah-isme/campus-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-ledger-api/pkg/middleware/requestid"
)

// @title Campus Ledger API
// @version 1.0.0
// @description Course grade averages, installment amount validation and promotional decisions.
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	school := repository.NewSchoolBackendRepository(backend.NewClient(cfg.Backend, nil))
	ready := map[string]handler.Pinger{}

	var redisClient *redis.Client
	if cfg.Grades.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, gradebook cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "campus-ledger")
	if redisClient != nil {
		ready["redis"] = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Grades.CacheTTL, logr, redisClient != nil)

	grades := service.NewCourseGradeService(school, cacheSvc, metricsSvc, nil, validate, logr, service.CourseGradeConfig{
		CacheTTL:       cfg.Grades.CacheTTL,
		ExportsEnabled: cfg.Exports.Enabled,
	})
	warmups := jobs.NewQueue(service.JobGradebookWarmup, grades.WarmGradebook, jobs.QueueConfig{Workers: 2, MaxRetries: 2, RetryDelay: time.Second, Logger: logr})
	grades.SetWarmupQueue(warmups)
	warmups.Start(ctx)
	defer warmups.Stop()

	scheduler := jobs.NewScheduler(logr, time.Minute)
	var tuition *service.TuitionService
	amounts := service.NewInstallmentValidator(cfg.Tuition.MonthlyBaseUnit)
	if cfg.Promotions.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("postgres is required for promotional decisions", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
		decisions := repository.NewPromotionDecisionRepository(db)
		ready["postgres"] = decisions

		tuition = service.NewTuitionService(school, decisions, nil, amounts, validate, metricsSvc, logr, service.TuitionConfig{
			PromotionsEnabled:  true,
			MaxForwardAttempts: cfg.Promotions.MaxForwardAttempts,
			ForwardLease:       cfg.Promotions.ForwardLease,
		})
		forwarder := jobs.NewQueue(service.JobDecisionForward, tuition.ForwardDecision, jobs.QueueConfig{
			Workers:    cfg.Promotions.WorkerConcurrency,
			MaxRetries: cfg.Promotions.WorkerRetries,
			RetryDelay: cfg.Promotions.RetryDelay,
			Logger:     logr,
		})
		tuition.SetForwarder(forwarder)
		forwarder.Start(ctx)
		defer forwarder.Stop()

		if err := scheduler.Register("promotion-redispatch", cfg.Promotions.RedispatchSchedule, func(ctx context.Context) error {
			_, err := tuition.RedispatchPending(ctx)
			return err
		}); err != nil {
			logr.Fatal("failed to schedule decision redispatch", zap.Error(err))
		}
	} else {
		tuition = service.NewTuitionService(school, nil, nil, amounts, validate, metricsSvc, logr, service.TuitionConfig{})
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(middleware.PropagateRequestID())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Grades:  handler.NewGradeHandler(grades),
		Tuition: handler.NewTuitionHandler(tuition),
		Metrics: metricsHandler,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
