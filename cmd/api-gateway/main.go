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
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/college-attendance-api/api/swagger"
	"github.com/noah-isme/college-attendance-api/internal/handler"
	internalmiddleware "github.com/noah-isme/college-attendance-api/internal/middleware"
	"github.com/noah-isme/college-attendance-api/internal/models"
	"github.com/noah-isme/college-attendance-api/internal/repository"
	"github.com/noah-isme/college-attendance-api/internal/service"
	"github.com/noah-isme/college-attendance-api/pkg/cache"
	"github.com/noah-isme/college-attendance-api/pkg/config"
	"github.com/noah-isme/college-attendance-api/pkg/database"
	"github.com/noah-isme/college-attendance-api/pkg/export"
	"github.com/noah-isme/college-attendance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/college-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/college-attendance-api/pkg/middleware/requestid"
)

// @title College Attendance API
// @version 1.0.0
// @description Session rosters, batch attendance marking and student attendance dashboards
// @BasePath /api
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, overview cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			checks["redis"] = repo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	// Cached overviews embed status thresholds, which may differ from the previous deploy.
	if err := cacheSvc.Invalidate(ctx, service.OverviewCachePattern); err != nil {
		logr.Warn("failed to flush overview cache", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	handlers, authSvc := buildHandlers(cfg, db, cacheSvc, metrics, checks, logr)
	handler.RegisterRoutes(router, cfg.APIPrefix, handlers, authSvc, logr)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

func buildHandlers(cfg *config.Config, db *sqlx.DB, cacheSvc *service.CacheService, metrics *service.MetricsService, checks map[string]handler.Pinger, logr *zap.Logger) (handler.Handlers, *service.AuthService) {
	validate := validator.New()

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	teachers := repository.NewTeacherRepository(db)
	branches := repository.NewBranchRepository(db)
	courses := repository.NewCourseRepository(db)
	assignments := repository.NewTeachingAssignmentRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	sessions := repository.NewSessionRepository(db)
	attendance := repository.NewAttendanceRepository(db)

	authSvc := service.NewAuthService(users, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(users, students, teachers, enrollments, db, cacheSvc, validate, logr)
	branchSvc := service.NewBranchService(branches, validate, logr)
	courseSvc := service.NewCourseService(courses, branches, validate, logr)
	assignmentSvc := service.NewTeachingAssignmentService(assignments, teachers, courses, db, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, students, courses, db, cacheSvc, validate, logr)

	exportSvc := service.NewExportService(logr, export.NewCSVExporter(), export.NewPDFExporter())
	sessionSvc := service.NewSessionService(sessions, assignments, enrollments, attendance, db, cacheSvc, metrics, validate, logr)
	attendanceSvc := service.NewAttendanceService(sessions, assignments, enrollments, attendance, students, exportSvc, cacheSvc, metrics, validate, logr,
		service.AttendanceServiceConfig{Concurrency: cfg.Attendance.ReconcileConcurrency})
	studentSvc := service.NewStudentAttendanceService(enrollments, attendance, cacheSvc, logr, service.StudentAttendanceConfig{
		Thresholds: models.StatusThresholds{Good: cfg.Attendance.GoodThreshold, Warning: cfg.Attendance.WarningThreshold},
		CacheTTL:   cfg.Cache.TTL,
	})

	return handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Catalog:    handler.NewCatalogHandler(branchSvc, courseSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc, assignmentSvc),
		Attendance: handler.NewAttendanceHandler(sessionSvc, attendanceSvc),
		Students:   handler.NewStudentHandler(studentSvc),
		Metrics:    handler.NewMetricsHandler(metrics, checks, logr),
	}, authSvc
}
