package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/clarion-qa/clarion/internal/app"
	"github.com/clarion-qa/clarion/internal/audits"
	"github.com/clarion-qa/clarion/internal/auth"
	"github.com/clarion-qa/clarion/internal/credits"
	"github.com/clarion-qa/clarion/internal/instances"
	"github.com/clarion-qa/clarion/internal/observability"
	"github.com/clarion-qa/clarion/internal/platform/cache"
	"github.com/clarion-qa/clarion/internal/platform/db"
	"github.com/clarion-qa/clarion/internal/rbac"
	"github.com/clarion-qa/clarion/internal/shared"
	"github.com/clarion-qa/clarion/internal/users"
	"github.com/clarion-qa/clarion/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	// The static authorization tables are validated once here; a broken
	// table is a configuration error, not something to limp past.
	registry := rbac.NewRegistry()
	if err := registry.Validate(); err != nil {
		logger.Error("authorization tables invalid", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := rbac.NewResolver(registry)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger, Observer: metrics}

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, tokens)
	authHandler := auth.NewHandler(logger, authService)
	authMiddleware := auth.Middleware{Tokens: tokens, Logger: logger}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	creditsRepo := credits.NewRepository(dbpool)
	creditsService := credits.NewService(creditsRepo, redisClient, idempotencyStore, logger, credits.ServiceConfig{
		LowBalanceThreshold: cfg.CreditAlertThreshold,
	})
	creditsHandler := credits.NewHandler(logger, creditsService, auditLogger, rbacMiddleware)

	instancesRepo := instances.NewRepository(dbpool)
	instancesService := instances.NewService(instancesRepo, creditsService, logger)
	instancesHandler := instances.NewHandler(logger, instancesService, creditsService, auditLogger, rbacMiddleware)

	auditsRepo := audits.NewRepository(dbpool)
	auditsService := audits.NewService(auditsRepo, creditsService, logger)
	auditsHandler := audits.NewHandler(logger, auditsService, resolver, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, registry)
	usersHandler := users.NewHandler(logger, usersService, auditLogger, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthMiddleware:   authMiddleware,
		AuthHandler:      authHandler,
		AuditsHandler:    auditsHandler,
		CreditsHandler:   creditsHandler,
		CreditsService:   creditsService,
		InstancesHandler: instancesHandler,
		UsersHandler:     usersHandler,
		JobsHandler:      jobsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
