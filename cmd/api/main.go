package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campusops/course-request-api/api/swagger"
	"github.com/campusops/course-request-api/internal/handler"
	"github.com/campusops/course-request-api/internal/middleware"
	"github.com/campusops/course-request-api/internal/models"
	"github.com/campusops/course-request-api/internal/repository"
	"github.com/campusops/course-request-api/internal/service"
	"github.com/campusops/course-request-api/pkg/cache"
	"github.com/campusops/course-request-api/pkg/config"
	"github.com/campusops/course-request-api/pkg/database"
	"github.com/campusops/course-request-api/pkg/export"
	"github.com/campusops/course-request-api/pkg/jobs"
	"github.com/campusops/course-request-api/pkg/logger"
	corsmiddleware "github.com/campusops/course-request-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/course-request-api/pkg/middleware/requestid"
	"github.com/campusops/course-request-api/pkg/notify"
	"github.com/campusops/course-request-api/pkg/storage"
)

// @title Course Request API
// @version 1.0.0
// @description Course change request tracking for registrar staff and students.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Requests.QueueCacheTTL, logr, true)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "course-request-api",
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	requestSvc := service.NewRequestService(requestRepo, userRepo, userRepo, logr,
		service.WithHistoryLimit(cfg.Requests.HistoryLimit),
		service.WithRequestMetrics(metricsSvc))
	queueSvc := service.NewQueueService(requestRepo, cacheSvc, metricsSvc, cfg.Requests.QueueCacheTTL, logr)

	watchSvc := service.NewWatchService(logr, cfg.Realtime.ClientBufferLen,
		service.WithQueueInvalidator(queueSvc),
		service.WithWatchMetrics(metricsSvc))
	if cfg.Realtime.Enabled {
		listener := notify.NewListener(cfg.Database.DSN(), notify.ListenerConfig{
			Channel:      cfg.Realtime.Channel,
			MinReconnect: cfg.Realtime.MinReconnect,
			MaxReconnect: cfg.Realtime.MaxReconnect,
			PingInterval: cfg.Realtime.PingInterval,
			Logger:       logr,
		})
		if err := listener.Start(ctx); err != nil {
			logr.Fatal("failed to start postgres listener", zap.Error(err))
		}
		defer listener.Stop()
		go watchSvc.Run(ctx, listener.Events())
	}

	exportHandler := setupExports(ctx, cfg, db, requestRepo, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	requestHandler := handler.NewRequestHandler(requestSvc, queueSvc)
	reviewHandler := handler.NewReviewHandler(requestSvc)
	eventsHandler := handler.NewEventsHandler(watchSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	users := api.Group("/users", middleware.JWT(authSvc))
	users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
	users.POST("", middleware.RequireRoles(models.RoleAdmin), userHandler.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Update)
	users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Delete)

	requests := api.Group("/requests", middleware.JWT(authSvc))
	requests.GET("/reasons", requestHandler.Reasons)
	requests.POST("", middleware.RequireRoles(models.RoleStudent), requestHandler.Submit)
	requests.POST("/batch", middleware.RequireRoles(models.RoleStudent), requestHandler.SubmitBatch)
	requests.GET("", middleware.RequireRoles(models.RoleStudent), requestHandler.ListOwn)
	requests.GET("/:id", requestHandler.Get)
	requests.PUT("/:id", middleware.RequireRoles(models.RoleStudent), requestHandler.Update)
	requests.DELETE("/:id", middleware.RequireRoles(models.RoleStudent), requestHandler.Cancel)
	requests.GET("/:id/position", requestHandler.QueuePosition)

	review := api.Group("/review", middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
	review.GET("/queue", reviewHandler.Queue)
	review.GET("/history", reviewHandler.History)
	review.GET("/:id", reviewHandler.Get)
	review.POST("/:id/process", reviewHandler.StartProcessing)
	review.POST("/:id/finalize", reviewHandler.Finalize)
	review.POST("/:id/refinalize", reviewHandler.ReFinalize)
	review.PATCH("/:id/flag", reviewHandler.Flag)

	if exportHandler != nil {
		exports := api.Group("/exports")
		exports.GET("/download/:token", exportHandler.Download)
		exports.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
		exports.POST("/history", exportHandler.Create)
		exports.GET("/:id", exportHandler.Status)
	}

	api.GET("/events/requests", middleware.JWT(authSvc), eventsHandler.Stream)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}
}

// setupExports wires the asynchronous history export pipeline when enabled.
func setupExports(ctx context.Context, cfg *config.Config, db *sqlx.DB, requests *repository.RequestRepository, logr *zap.Logger) *handler.ExportHandler {
	if !cfg.Exports.Enabled {
		return nil
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	exporter := service.NewExportService(requests, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	jobRepo := repository.NewExportJobRepository(db)
	worker := service.NewExportWorker(jobRepo, exporter, cfg.Exports.WorkerRetries, logr)
	queue := jobs.NewQueue("history-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)

	jobSvc := service.NewExportJobService(jobRepo, queue, exporter, logr, service.ExportJobConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Exports.WorkerRetries,
	})
	jobSvc.RecoverPendingJobs(ctx)
	jobSvc.StartCleanup(ctx)

	return handler.NewExportHandler(jobSvc)
}
