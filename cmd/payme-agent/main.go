package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payme/payme/internal/agent"
	"github.com/payme/payme/internal/api"
	"github.com/payme/payme/internal/audit"
	"github.com/payme/payme/internal/auth"
	"github.com/payme/payme/internal/config"
	"github.com/payme/payme/internal/observability"
	"github.com/payme/payme/internal/ratelimit"
	"github.com/payme/payme/internal/schema"
	"github.com/payme/payme/internal/store/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("payme-agent")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := postgres.Open(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	contacts := postgres.NewContactRepository(db)
	provider, err := schema.NewProvider(contacts, cfg.Agent.ContactLimit)
	if err != nil {
		logger.Error("failed to build schema provider", slog.Any("error", err))
		os.Exit(1)
	}

	generator, err := agent.NewOpenAIGenerator(cfg.Generator)
	if err != nil {
		logger.Error("failed to initialize generator", slog.Any("error", err))
		os.Exit(1)
	}
	reviewer, err := agent.NewOpenAIReviewer(cfg.Reviewer)
	if err != nil {
		logger.Error("failed to initialize reviewer", slog.Any("error", err))
		os.Exit(1)
	}

	gateway := postgres.NewGateway(db, cfg.Agent.MaxRows, cfg.Agent.ExecTimeout)
	questionAgent, err := agent.New(provider, generator, reviewer, gateway, cfg.Agent, logger)
	if err != nil {
		logger.Error("failed to build agent", slog.Any("error", err))
		os.Exit(1)
	}

	var counter ratelimit.Counter
	if cfg.Redis.Enabled {
		redisCounter, err := ratelimit.NewRedisCounter(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = redisCounter.Close() }()
		counter = redisCounter
	} else {
		logger.Warn("redis disabled, using in-memory rate limit counters")
		counter = ratelimit.NewMemoryCounter()
	}
	limiter, err := ratelimit.NewLimiter(counter, cfg.Agent.QueriesPerHour, cfg.Agent.QueriesPerDay)
	if err != nil {
		logger.Error("failed to build rate limiter", slog.Any("error", err))
		os.Exit(1)
	}

	var auditor audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		s3Recorder, err := audit.NewS3Recorder(context.Background(), cfg.Audit)
		if err != nil {
			logger.Error("failed to initialize audit recorder", slog.Any("error", err))
			os.Exit(1)
		}
		auditor = s3Recorder
	}

	deps := api.Dependencies{
		Logger:  logger,
		Agent:   questionAgent,
		Limiter: limiter,
		Auditor: auditor,
		Readiness: api.CombineReadinessChecks(
			contacts.HealthCheck,
			api.CheckGeneratorConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting agent server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("agent server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down agent server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
