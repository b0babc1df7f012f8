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

	"github.com/fushimori/lakomka/internal/api"
	"github.com/fushimori/lakomka/internal/application/factories/infrastructure"
	"github.com/fushimori/lakomka/internal/auth"
	"github.com/fushimori/lakomka/internal/config"
	"github.com/fushimori/lakomka/internal/observability"
	"github.com/fushimori/lakomka/internal/rpc"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Log, cfg.App, "gateway")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	// Idempotency keys are optional; the gateway runs without redis.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Warn("redis unavailable, idempotency keys disabled", "error", err)
		redisClient = nil
	}

	waiter := rpc.NewWaiter(infraFactory.RabbitMQ(), rpc.WaiterConfig{
		Queue:   cfg.RabbitMQ.Queue,
		Timeout: cfg.RabbitMQ.RequestTimeout,
	}, logger)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handlers := api.NewGatewayHandlers(waiter, tokens, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewGatewayRouter(handlers, redisClient, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTP.Port, "queue", cfg.RabbitMQ.Queue)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}
