package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/cadenza-app/lesson-api/api/swagger"
	"github.com/cadenza-app/lesson-api/internal/handler"
	"github.com/cadenza-app/lesson-api/internal/middleware"
	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/repository"
	"github.com/cadenza-app/lesson-api/internal/service"
	"github.com/cadenza-app/lesson-api/pkg/cache"
	"github.com/cadenza-app/lesson-api/pkg/config"
	"github.com/cadenza-app/lesson-api/pkg/database"
	"github.com/cadenza-app/lesson-api/pkg/logger"
	corsmiddleware "github.com/cadenza-app/lesson-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cadenza-app/lesson-api/pkg/middleware/requestid"
)

// @title Cadenza Lesson API
// @version 1.0.0
// @description Recurring music-lesson scheduling: agreements, deviations and effective schedules
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Availability.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Availability.CacheTTL, logr, true)
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	agreementRepo := repository.NewAgreementRepository(db)
	deviationRepo := repository.NewDeviationRepository(db)

	authService := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	scheduleService := service.NewScheduleService(agreementRepo, deviationRepo, cfg.Scheduling.MaxQueryWindow, logr)
	availabilityService := service.NewAvailabilityService(scheduleService, cacheService, cfg.Availability.HorizonWeeks, validate, logr)
	agreementService := service.NewAgreementService(agreementRepo, availabilityService, auditRepo, validate, logr)
	deviationService := service.NewDeviationService(deviationRepo, agreementRepo, auditRepo, validate, logr)
	exportService := service.NewExportService(scheduleService, nil, nil, logr)

	authHandler := handler.NewAuthHandler(authService)
	agreementHandler := handler.NewAgreementHandler(agreementService)
	deviationHandler := handler.NewDeviationHandler(deviationService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService, exportService, time.Duration(cfg.Scheduling.DefaultWindowDays)*24*time.Hour)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(503, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))
	authed.GET("/auth/me", authHandler.Me)

	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	staffOrTeacher := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)

	agreements := authed.Group("/agreements")
	agreements.GET("", staffOrTeacher, agreementHandler.List)
	agreements.GET("/:id", staffOrTeacher, agreementHandler.Get)
	agreements.POST("", staffOnly, agreementHandler.Create)
	agreements.PUT("/:id", staffOnly, agreementHandler.Update)
	agreements.DELETE("/:id", staffOnly, agreementHandler.Archive)
	agreements.GET("/:id/schedule", staffOrTeacher, scheduleHandler.ByAgreement)
	agreements.POST("/:id/deviations", staffOrTeacher, deviationHandler.Create)
	agreements.POST("/:id/restore", staffOrTeacher, deviationHandler.RestoreWeek)

	deviations := authed.Group("/deviations")
	deviations.DELETE("/:id", staffOrTeacher, deviationHandler.Delete)
	deviations.POST("/:id/shift", staffOrTeacher, deviationHandler.Shift)
	deviations.POST("/:id/end", staffOrTeacher, deviationHandler.End)

	// "SELF" lets a teacher read their own calendar without staff roles.
	teacherRead := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF")
	teachers := authed.Group("/teachers")
	teachers.GET("/:id/schedule", teacherRead, scheduleHandler.ByTeacher)
	teachers.POST("/:id/availability", teacherRead, availabilityHandler.Check)
	if cfg.Export.Enabled {
		exportAudit := middleware.Audit(auditRepo, models.AuditActionScheduleExport, "schedule")
		teachers.GET("/:id/schedule/export", teacherRead, exportAudit, scheduleHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
