package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fushimori/lakomka/internal/api"
	"github.com/fushimori/lakomka/internal/application/factories/infrastructure"
	"github.com/fushimori/lakomka/internal/auth"
	"github.com/fushimori/lakomka/internal/config"
	"github.com/fushimori/lakomka/internal/consumer"
	"github.com/fushimori/lakomka/internal/infrastructure/postgres"
	"github.com/fushimori/lakomka/internal/observability"
	"github.com/fushimori/lakomka/internal/rpc"
	"github.com/fushimori/lakomka/internal/usecase"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Log, cfg.App, "auth")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(ctx, pgPool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}

	// The lookup cache is optional.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Warn("redis unavailable, user cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories
	userRepo := postgres.NewUserRepository(pgPool)
	outboxRepo := postgres.NewOutboxRepository(pgPool)
	txManager := postgres.NewTxManager(pgPool)

	hasher := auth.NewBcryptHasher(0)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// UseCases
	registerUC := usecase.NewRegisterUser(txManager, userRepo, outboxRepo, hasher)
	loginUC := usecase.NewLoginUser(userRepo, hasher, tokens)
	getUserUC := usecase.NewGetUser(redisClient, userRepo)

	dispatcher := rpc.NewDispatcher(logger)
	consumer.NewEventHandlers(registerUC, loginUC).Register(dispatcher)

	queueConsumer := rpc.NewConsumer(infraFactory.RabbitMQ(), dispatcher, rpc.ConsumerConfig{
		Queue:    cfg.RabbitMQ.Queue,
		Backoff:  cfg.RabbitMQ.ReconnectBackoff,
		Prefetch: cfg.RabbitMQ.Prefetch,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := queueConsumer.Run(ctx); err != nil {
			logger.Error("consumer stopped with error", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewAuthRouter(api.NewAuthHandlers(getUserUC, queueConsumer, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	wg.Wait()
	logger.Info("auth service exited")
}
