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

	_ "github.com/noah-isme/academic-records-api/api/swagger"
	"github.com/noah-isme/academic-records-api/internal/handler"
	"github.com/noah-isme/academic-records-api/internal/middleware"
	"github.com/noah-isme/academic-records-api/internal/models"
	"github.com/noah-isme/academic-records-api/internal/repository"
	"github.com/noah-isme/academic-records-api/internal/service"
	"github.com/noah-isme/academic-records-api/pkg/cache"
	"github.com/noah-isme/academic-records-api/pkg/config"
	"github.com/noah-isme/academic-records-api/pkg/database"
	"github.com/noah-isme/academic-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academic-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/academic-records-api/pkg/storage"
)

// @title Academic Records API
// @version 1.0.0
// @description Programs, courses, enrollments, grades and transcript reporting.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
		}
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	// Transcripts outliving their download tokens are dead weight.
	if removed, err := store.CleanupOlderThan(cfg.Reports.SignedURLTTL); err != nil {
		logr.Sugar().Warnw("report storage cleanup failed", "error", err)
	} else if len(removed) > 0 {
		logr.Sugar().Infow("removed stale reports", "count", len(removed))
	}

	avatarStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init avatar storage", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "academic-records-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	programSvc := service.NewProgramService(programRepo, cacheSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, programRepo, userRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, gradeRepo, userRepo, courseRepo, metrics, validate, logr)
	reportSvc := service.NewReportService(enrollmentRepo, gradeRepo, userRepo, courseRepo, store, signer, metrics, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, avatarStore, cfg.Uploads.MaxFileSizeBytes)
	programHandler := handler.NewProgramHandler(programSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	// Signed download tokens carry their own grant.
	api.GET("/reports/download/:token", reportHandler.Download)

	auth := api.Group("", middleware.JWT(authSvc))
	{
		auth.POST("/auth/logout", authHandler.Logout)
		auth.GET("/auth/me", authHandler.Me)
		auth.PUT("/users/me/profile", userHandler.CompleteProfile)
		auth.POST("/users/me/avatar", userHandler.UploadAvatar)

		auth.GET("/programs", programHandler.List)
		auth.GET("/programs/:id", programHandler.Get)
		auth.GET("/courses", courseHandler.List)
		auth.GET("/courses/:id", courseHandler.Get)

		auth.GET("/students", userHandler.ListStudents)
		auth.GET("/students/:id", userHandler.GetStudent)
		auth.GET("/teachers", userHandler.ListTeachers)
		auth.GET("/teachers/:id", userHandler.GetTeacher)
		auth.GET("/admins", userHandler.ListAdmins)
		auth.GET("/admins/:id", userHandler.GetAdmin)

		auth.GET("/enrollments/me", enrollmentHandler.ListOwn)
		auth.GET("/enrollments/:id", enrollmentHandler.Get)
		auth.POST("/reports/enrollments/:id", reportHandler.Generate)

		staff := auth.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))
		{
			staff.GET("/enrollments", enrollmentHandler.List)
			staff.GET("/courses/:id/roster", courseHandler.ExportRoster)
			staff.PUT("/grades", enrollmentHandler.UpdateGrades)
		}

		admin := auth.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/programs", middleware.Audit(userRepo, models.AuditActionProgramWrite, "programs"), programHandler.Create)
			admin.PUT("/programs/:id", middleware.Audit(userRepo, models.AuditActionProgramWrite, "programs"), programHandler.Update)
			admin.DELETE("/programs/:id", middleware.Audit(userRepo, models.AuditActionProgramWrite, "programs"), programHandler.Delete)

			admin.POST("/courses", middleware.Audit(userRepo, models.AuditActionCourseWrite, "courses"), courseHandler.Create)
			admin.PUT("/courses/:id", middleware.Audit(userRepo, models.AuditActionCourseWrite, "courses"), courseHandler.Update)
			admin.DELETE("/courses/:id", middleware.Audit(userRepo, models.AuditActionCourseWrite, "courses"), courseHandler.Delete)

			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			admin.POST("/enrollments", enrollmentHandler.Enroll)
			admin.DELETE("/enrollments/:student_id/:course_id", enrollmentHandler.Unenroll)
			admin.POST("/courses/:id/students", enrollmentHandler.EnrollInCourse)
			admin.DELETE("/courses/:id/students/:student_id", enrollmentHandler.RemoveFromCourse)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
