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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/workstead/portal-api/api/swagger"
	"github.com/workstead/portal-api/internal/handler"
	"github.com/workstead/portal-api/internal/middleware"
	"github.com/workstead/portal-api/internal/models"
	"github.com/workstead/portal-api/internal/repository"
	"github.com/workstead/portal-api/internal/service"
	"github.com/workstead/portal-api/pkg/cache"
	"github.com/workstead/portal-api/pkg/config"
	"github.com/workstead/portal-api/pkg/database"
	"github.com/workstead/portal-api/pkg/jobs"
	"github.com/workstead/portal-api/pkg/logger"
	corsmiddleware "github.com/workstead/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/workstead/portal-api/pkg/middleware/requestid"
	"github.com/workstead/portal-api/pkg/storage"
)

// @title Employee Portal API
// @version 1.0.0
// @description Room booking, availability, and calendar reminder service
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, occupancy caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Rooms.CacheTTL, logr, cfg.Rooms.CacheEnabled)
	}

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	reminderRepo := repository.NewReminderRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifyQueue := jobs.NewQueue("notifications", service.NotificationHandler(logr), jobs.QueueConfig{
		Workers:    cfg.Booking.NotifyWorkers,
		MaxRetries: cfg.Booking.NotifyRetries,
		Logger:     logr,
	})
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()

	bookingSvc := service.NewBookingService(bookingRepo, roomRepo, userRepo, validate, logr, metricsSvc, cacheSvc, notifyQueue, service.BookingConfig{
		DefaultCapacity: cfg.Booking.DefaultCapacity,
		AllowPastStart:  cfg.Booking.AllowPastStart,
	})
	roomSvc := service.NewRoomService(roomRepo, bookingRepo, userRepo, validate, logr, cacheSvc, service.RoomConfig{
		CacheEnabled: cfg.Rooms.CacheEnabled,
		CacheTTL:     cfg.Rooms.CacheTTL,
	})
	reminderSvc := service.NewReminderService(reminderRepo, userRepo, validate, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportRepo := repository.NewExportRepository(db)
		exportSvc = service.NewExportService(exportRepo, bookingRepo, store, signer, validate, logr)

		exportQueue := jobs.NewQueue("exports", exportSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		exportQueue.Start(ctx)
		defer exportQueue.Stop()
		exportSvc.BindQueue(exportQueue)

		// janitor: drop artifacts whose download links have expired
		go func() {
			ticker := time.NewTicker(cfg.Exports.SignedURLTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := store.CleanupOlderThan(cfg.Exports.SignedURLTTL)
					if err != nil {
						logr.Sugar().Warnw("export cleanup failed", "error", err)
						continue
					}
					if len(removed) > 0 {
						logr.Sugar().Infow("expired export artifacts removed", "count", len(removed))
					}
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	roomHandler := handler.NewRoomHandler(roomSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	reminderHandler := handler.NewReminderHandler(reminderSvc)
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
	r.Use(middleware.WithResponseMeta())

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
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.GET("/rooms", roomHandler.List)
		protected.GET("/rooms/:id", roomHandler.Get)
		protected.GET("/rooms/:id/availability", bookingHandler.Availability)

		adminRooms := protected.Group("/rooms")
		adminRooms.Use(middleware.RequireRoles(models.RoleAdmin))
		adminRooms.POST("", roomHandler.Create)
		adminRooms.PATCH("/:id", roomHandler.Update)
		adminRooms.DELETE("/:id", roomHandler.Delete)

		protected.GET("/bookings", bookingHandler.List)
		protected.POST("/bookings", bookingHandler.Create)
		protected.GET("/bookings/:id", bookingHandler.Get)
		protected.PATCH("/bookings/:id", bookingHandler.Update)
		protected.DELETE("/bookings/:id", bookingHandler.Delete)
		protected.GET("/bookings/:id/calendar", bookingHandler.Calendar)

		protected.GET("/reminders", reminderHandler.List)
		protected.POST("/reminders", reminderHandler.Create)
		protected.PATCH("/reminders/:id", reminderHandler.Update)
		protected.DELETE("/reminders/:id", reminderHandler.Delete)

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		admin.GET("/metrics", metricsHandler.Snapshot)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		api.GET("/exports/download", exportHandler.Download)

		exports := api.Group("/exports")
		exports.Use(middleware.JWT(authSvc))
		exports.POST("", exportHandler.Create)
		exports.GET("/:id", exportHandler.Status)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	stopCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-stopCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
