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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nidocare/nido-api/api/swagger"
	"github.com/nidocare/nido-api/internal/handler"
	"github.com/nidocare/nido-api/internal/middleware"
	"github.com/nidocare/nido-api/internal/models"
	"github.com/nidocare/nido-api/internal/push"
	"github.com/nidocare/nido-api/internal/repository"
	"github.com/nidocare/nido-api/internal/service"
	"github.com/nidocare/nido-api/pkg/cache"
	"github.com/nidocare/nido-api/pkg/config"
	"github.com/nidocare/nido-api/pkg/database"
	"github.com/nidocare/nido-api/pkg/logger"
	corsmiddleware "github.com/nidocare/nido-api/pkg/middleware/cors"
	reqidmiddleware "github.com/nidocare/nido-api/pkg/middleware/requestid"
)

// @title Nido API
// @version 1.0.0
// @description Attendance and daily report backend for the nido
// @BasePath /api/v1
// @schemes http

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

	location, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		logr.Sugar().Fatalw("invalid attendance timezone", "timezone", cfg.Attendance.Timezone, "error", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	var sender push.Sender
	if cfg.Notifications.Enabled {
		sender = push.NewExpoSender(cfg.Notifications, logr)
	} else {
		sender = push.NewLogSender(logr)
	}
	notifications := service.NewNotificationService(deviceRepo, sender, logr, cfg.Notifications)

	sessions := service.NewSessionService(attendanceRepo, studentRepo, notifications, validate, logr, location)
	students := service.NewStudentService(studentRepo, cacheRepo, validate, logr)
	reports := service.NewReportService(reportRepo, attendanceRepo, studentRepo, notifications, validate, logr)
	portal := service.NewPortalService(studentRepo, cacheRepo, sessions, reports, deviceRepo, logr, cfg.Portal.AccessCodeTTL)
	dashboard := service.NewDashboardService(sessions, cacheRepo, logr, cfg.Dashboard.CacheTTL)
	exports := service.NewExportService(attendanceRepo, reportRepo, studentRepo, location, logr)
	metrics := service.NewMetricsService()
	auth := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "nido-api",
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	notifications.Start(workerCtx)
	defer func() {
		stopWorkers()
		notifications.Stop()
	}()

	authHandler := handler.NewAuthHandler(auth)
	studentHandler := handler.NewStudentHandler(students)
	attendanceHandler := handler.NewAttendanceHandler(sessions, exports, dashboard, metrics)
	reportHandler := handler.NewReportHandler(reports, exports, sessions)
	portalHandler := handler.NewPortalHandler(portal, dashboard, metrics)
	dashboardHandler := handler.NewDashboardHandler(dashboard, metrics)
	metricsHandler := handler.NewMetricsHandler(metrics, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", middleware.JWT(auth), authHandler.Logout)
	authGroup.GET("/me", middleware.JWT(auth), authHandler.Me)

	staff := api.Group("")
	staff.Use(middleware.JWT(auth))
	staff.Use(middleware.RequireRoles(models.RoleDirector, models.RoleStaff))

	staff.GET("/students", studentHandler.List)
	staff.POST("/students", studentHandler.Create)
	staff.GET("/students/:id", studentHandler.Get)
	staff.PUT("/students/:id", studentHandler.Update)
	staff.DELETE("/students/:id", middleware.RequireRoles(models.RoleDirector), studentHandler.Delete)

	staff.POST("/attendance/check-in", attendanceHandler.CheckIn)
	staff.POST("/attendance/check-out", attendanceHandler.CheckOut)
	staff.GET("/attendance/roster", attendanceHandler.Roster)
	staff.GET("/attendance/summary", attendanceHandler.Summary)
	staff.GET("/attendance/export", attendanceHandler.ExportRoster)
	staff.GET("/attendance/students/:id/status", attendanceHandler.Status)
	staff.GET("/attendance/students/:id/history", attendanceHandler.History)

	staff.PUT("/reports/students/:id", reportHandler.Upsert)
	staff.GET("/reports/students/:id", reportHandler.Get)
	staff.GET("/reports/students/:id/export", reportHandler.Export)

	staff.GET("/dashboard", middleware.RequireRoles(models.RoleDirector), dashboardHandler.Today)

	portalGroup := api.Group("/portal")
	portalGroup.Use(middleware.RateLimit(redisClient, "portal", cfg.Portal.ResolveRateLimit, cfg.Portal.ResolveRateWindow, logr))
	portalGroup.POST("/resolve", portalHandler.Resolve)
	portalGroup.GET("/students/:id/today", portalHandler.Today)
	portalGroup.POST("/students/:id/check-out", portalHandler.CheckOut)
	portalGroup.POST("/students/:id/devices", portalHandler.RegisterDevice)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "timezone", cfg.Attendance.Timezone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
