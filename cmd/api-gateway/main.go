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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/curriculum-gate-api/api/swagger"
	"github.com/noah-isme/curriculum-gate-api/internal/handler"
	"github.com/noah-isme/curriculum-gate-api/internal/middleware"
	"github.com/noah-isme/curriculum-gate-api/internal/repository"
	"github.com/noah-isme/curriculum-gate-api/internal/scheduler"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	"github.com/noah-isme/curriculum-gate-api/pkg/cache"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
	"github.com/noah-isme/curriculum-gate-api/pkg/config"
	"github.com/noah-isme/curriculum-gate-api/pkg/database"
	"github.com/noah-isme/curriculum-gate-api/pkg/jobs"
	"github.com/noah-isme/curriculum-gate-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/curriculum-gate-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/curriculum-gate-api/pkg/middleware/requestid"
	"github.com/noah-isme/curriculum-gate-api/pkg/storage"
)

// @title Curriculum Gate API
// @version 1.0.0
// @description Cohort-scoped curriculum release, gating and submission review
// @BasePath /
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

	clk, err := clock.NewZoneClock(cfg.Timezone)
	if err != nil {
		logr.Fatal("invalid timezone", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck
	if cfg.MigrateOnStart {
		if err := database.ApplySchema(ctx, db); err != nil {
			logr.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.ProgressCache.Enabled {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient, err = cache.NewRedis(dialCtx, cfg.Redis)
		cancel()
		if err != nil {
			logr.Warn("redis unavailable, progress cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cohortRepo := repository.NewCohortRepository(db)
	contentRepo := repository.NewContentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	snapshots := repository.NewSnapshotRepository(redisClient, logr)
	var progressCache *service.ProgressCache
	if redisClient != nil {
		progressCache = service.NewProgressCache(snapshots, metrics, cfg.ProgressCache.TTL, logr)
	}

	notifier, stopNotifier := buildNotifier(cfg, userRepo, logr)
	defer stopNotifier()

	identitySvc := service.NewIdentityService(service.IdentityConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
	isolationSvc := service.NewIsolationService(cohortRepo, cohortRepo, logr)
	gatingSvc := service.NewGatingService(contentRepo, submissionRepo, logr)
	contentSvc := service.NewContentService(contentRepo, submissionRepo, logr)
	progressSvc := service.NewProgressService(contentRepo, submissionRepo, cohortRepo, progressCache, clk, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, contentRepo, gatingSvc, clk, validate, logr,
		service.WithSubmissionNotifier(notifier),
		service.WithSubmissionAudit(auditRepo),
		service.WithSubmissionMetrics(metrics),
		service.WithSubmissionProgress(progressSvc))
	releaseSvc := service.NewReleaseService(contentRepo, clk, logr,
		service.WithReleaseNotifier(notifier),
		service.WithReleaseMetrics(metrics),
		service.WithReleaseProgress(progressSvc))
	membershipSvc := service.NewMembershipService(cohortRepo, userRepo, auditRepo, clk, validate, logr)
	exportSvc := service.NewExportService(progressSvc, userRepo, cohortRepo, clk, logr)

	files, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare attachment storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)
	attachmentSvc := service.NewAttachmentService(submissionRepo, files, signer, cfg.APIPrefix, logr)

	releaseScheduler, err := scheduler.New(releaseSvc, scheduler.Config{
		Spec:         cfg.Scheduler.Spec,
		SweepTimeout: cfg.Scheduler.SweepTimeout,
		Location:     clk.Location(),
	}, logr)
	if err != nil {
		logr.Fatal("failed to configure release scheduler", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		if _, err := releaseScheduler.RunOnce(ctx); err != nil {
			logr.Warn("initial release sweep failed", zap.Error(err))
		}
		releaseScheduler.Start(ctx)
		defer releaseScheduler.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics"))

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = snapshots.Ping
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	routes := handler.Routes{
		Content:     handler.NewContentHandler(contentSvc),
		Submissions: handler.NewSubmissionHandler(submissionSvc),
		Progress:    handler.NewProgressHandler(progressSvc, exportSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
		Memberships: handler.NewMembershipHandler(membershipSvc),
		Releases:    handler.NewReleaseHandler(releaseScheduler),
	}
	routes.Register(r.Group(cfg.APIPrefix), handler.RouteGuards{
		Auth:       middleware.Auth(identitySvc),
		Scope:      middleware.CohortScope(isolationSvc),
		Privileged: middleware.RequirePrivileged(),
		Audit: func(action, resource string) gin.HandlerFunc {
			return middleware.Audit(auditRepo, logr, action, resource)
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("could not stop server gracefully", zap.Error(err))
		_ = srv.Close()
	}
}

// buildNotifier selects the configured adapter and moves delivery onto a worker queue.
func buildNotifier(cfg *config.Config, users *repository.UserRepository, logr *zap.Logger) (service.Notifier, func()) {
	if !cfg.Notifications.Enabled {
		return service.NewLogNotifier(logr), func() {}
	}

	var inner service.Notifier
	switch cfg.Notifications.Provider {
	case config.NotifierSendgrid:
		if cfg.Notifications.SendgridAPIKey == "" {
			logr.Warn("SENDGRID_API_KEY missing, falling back to log notifier")
			inner = service.NewLogNotifier(logr)
		} else {
			inner = service.NewSendgridNotifier(cfg.Notifications.SendgridAPIKey, cfg.Notifications.FromName, cfg.Notifications.FromEmail, users, logr)
		}
	default:
		inner = service.NewLogNotifier(logr)
	}

	queued := service.NewQueuedNotifier(inner, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	queued.Start(context.Background())
	return queued, queued.Stop
}
