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
	"go.uber.org/zap"

	_ "github.com/kripas1369/pdf-backend/api/swagger"
	"github.com/kripas1369/pdf-backend/internal/handler"
	"github.com/kripas1369/pdf-backend/internal/middleware"
	"github.com/kripas1369/pdf-backend/internal/models"
	"github.com/kripas1369/pdf-backend/internal/repository"
	"github.com/kripas1369/pdf-backend/internal/service"
	"github.com/kripas1369/pdf-backend/pkg/cache"
	"github.com/kripas1369/pdf-backend/pkg/config"
	"github.com/kripas1369/pdf-backend/pkg/database"
	"github.com/kripas1369/pdf-backend/pkg/jobs"
	"github.com/kripas1369/pdf-backend/pkg/logger"
	corsmiddleware "github.com/kripas1369/pdf-backend/pkg/middleware/cors"
	reqidmiddleware "github.com/kripas1369/pdf-backend/pkg/middleware/requestid"
	"github.com/kripas1369/pdf-backend/pkg/storage"
)

// @title PDF Backend API
// @version 1.0.0
// @description Question bank and solutions marketplace for students
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

	metricsSvc := service.NewMetricsService()

	cacheEnabled := cfg.Catalog.CacheEnabled
	var cacheSvc *service.CacheService
	if cacheEnabled {
		redisClient, redisErr := cache.NewRedis(cfg.Redis)
		if redisErr != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(redisErr))
			cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Catalog.CacheTTL, logr, false)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
		}
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Catalog.CacheTTL, logr, false)
	}

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	topicRepo := repository.NewTopicRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	pdfRepo := repository.NewPDFRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	accessRepo := repository.NewAccessRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, subscriptionRepo, nil, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, logr)
	entitlementSvc := service.NewEntitlementService(pdfRepo, accessRepo, subscriptionRepo, metricsSvc, logr)
	topicSvc := service.NewTopicService(topicRepo, cacheSvc, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, topicRepo, cacheSvc, validate, logr)
	pdfSvc := service.NewPDFService(pdfRepo, subjectRepo, topicRepo, entitlementSvc, uploads, cacheSvc, cfg.Catalog.CacheTTL, validate, logr)
	packageSvc := service.NewPackageService(packageRepo, pdfRepo, cacheSvc, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, pdfRepo, packageSvc, uploads, metricsSvc, validate, logr)
	groupSvc := service.NewGroupService(groupRepo, subscriptionSvc, validate, logr)
	userSvc := service.NewUserService(userRepo, accessRepo, validate, logr)
	reportSvc := service.NewReportService(reportRepo, paymentRepo, reportStore, reportSigner, metricsSvc, logr)

	reportQueue := jobs.NewQueue("ledger-exports", reportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.SetQueue(reportQueue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Reports.Enabled {
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	catalogHandler := handler.NewCatalogHandler(topicSvc, subjectSvc, pdfSvc)
	pdfHandler := handler.NewPDFHandler(pdfSvc, entitlementSvc)
	packageHandler := handler.NewPackageHandler(packageSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc)
	groupHandler := handler.NewGroupHandler(groupSvc)
	userHandler := handler.NewUserHandler(userSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix + "/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	}

	// Browsing is open; entitlement decoration kicks in when a token is present.
	public := api.Group("", middleware.OptionalJWT(authSvc))
	{
		public.GET("/topics", catalogHandler.ListTopics)
		public.GET("/topics/:id/subjects", catalogHandler.ListSubjects)
		public.GET("/subjects/:id/years", catalogHandler.Years)
		public.GET("/pdfs", catalogHandler.ListPDFs)
		public.GET("/pdfs/:id", pdfHandler.Get)
		public.GET("/pdfs/:id/access", pdfHandler.CheckAccess)
		public.GET("/packages", packageHandler.List)
		public.GET("/packages/:id", packageHandler.Get)
		public.GET("/payments/qr", paymentHandler.ActiveQR)
		public.GET("/subscriptions/plans", subscriptionHandler.Plans)
		public.GET("/groups", groupHandler.List)
		public.GET("/stats", catalogHandler.Stats)
	}

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.GET("/users/me", userHandler.Me)
		authed.PATCH("/users/me", userHandler.UpdateMe)
		authed.GET("/users/me/referrals", userHandler.Referrals)
		authed.GET("/users/me/purchases", userHandler.Purchases)

		authed.POST("/topics", catalogHandler.CreateTopic)
		authed.POST("/subjects", catalogHandler.CreateSubject)
		authed.POST("/pdfs", pdfHandler.Upload)
		authed.GET("/pdfs/my-uploads", pdfHandler.MyUploads)
		authed.GET("/pdfs/:id/download", pdfHandler.Download)

		authed.POST("/payments", paymentHandler.Create)
		authed.GET("/payments/my", paymentHandler.ListMine)
		authed.GET("/payments/:id", paymentHandler.Get)

		authed.GET("/subscriptions/me", subscriptionHandler.Status)
		authed.GET("/subscriptions/messages-remaining", subscriptionHandler.RemainingMessages)

		authed.GET("/groups/:id", groupHandler.Get)
		authed.POST("/groups/:id/join", groupHandler.Join)
		authed.POST("/groups/:id/leave", groupHandler.Leave)
		authed.GET("/groups/:id/messages", groupHandler.Messages)
		authed.POST("/groups/:id/messages", groupHandler.SendMessage)
		authed.DELETE("/groups/:id/messages/:messageId", groupHandler.DeleteMessage)
	}

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/users", userHandler.List)

		admin.DELETE("/topics/:id", catalogHandler.DeleteTopic)
		admin.DELETE("/subjects/:id", catalogHandler.DeleteSubject)

		admin.GET("/pdfs/pending", pdfHandler.PendingUploads)
		admin.PATCH("/pdfs/:id", pdfHandler.Update)
		admin.DELETE("/pdfs/:id", pdfHandler.Delete)
		admin.POST("/pdfs/:id/approve", pdfHandler.Approve)
		admin.POST("/pdfs/:id/reject", pdfHandler.Reject)
		admin.POST("/pdfs/bulk-moderate", pdfHandler.BulkModerate)

		admin.POST("/packages", packageHandler.Create)
		admin.PATCH("/packages/:id", packageHandler.Update)
		admin.DELETE("/packages/:id", packageHandler.Delete)
		admin.POST("/packages/:id/refresh", packageHandler.Refresh)

		admin.GET("/payments", paymentHandler.ListForReview)
		admin.GET("/payments/:id/screenshot", paymentHandler.Screenshot)
		admin.POST("/payments/:id/verify", paymentHandler.Verify)
		admin.POST("/payments/bulk-verify", paymentHandler.BulkVerify)
		admin.POST("/payments/qr", paymentHandler.SetQR)

		admin.POST("/groups", groupHandler.Create)

		admin.POST("/reports", reportHandler.Create)
		admin.GET("/reports", reportHandler.List)
		admin.GET("/reports/download", reportHandler.Download)
		admin.GET("/reports/:id", reportHandler.Status)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
