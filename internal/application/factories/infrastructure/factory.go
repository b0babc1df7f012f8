package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fushimori/lakomka/internal/config"
	"github.com/fushimori/lakomka/internal/infrastructure/kafka"
	"github.com/fushimori/lakomka/internal/infrastructure/postgres"
	"github.com/fushimori/lakomka/internal/infrastructure/rabbitmq"
	"github.com/fushimori/lakomka/internal/infrastructure/redis"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

const (
	postgresAttempts   = 5
	postgresRetryDelay = 2 * time.Second
)

// Factory builds infrastructure clients lazily and closes whatever it built.
type Factory struct {
	cfg    *config.Config
	logger *slog.Logger

	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	producer *kafka.Producer
	broker   *rabbitmq.Broker
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	for i := 0; i < postgresAttempts; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
		})
		if err == nil {
			break
		}
		f.logger.Warn("failed to connect to postgres, retrying",
			"attempt", i+1, "max_attempts", postgresAttempts, "delay", postgresRetryDelay, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(postgresRetryDelay):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil {
		return f.redisCli, nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	f.redisCli = client
	return client, nil
}

func (f *Factory) KafkaProducer() *kafka.Producer {
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers: f.cfg.Kafka.Brokers,
			Topic:   f.cfg.Kafka.Topic,
		})
	}
	return f.producer
}

// RabbitMQ returns the broker. It does not dial; connections are opened per
// request by the waiter and per session by the consumer.
func (f *Factory) RabbitMQ() *rabbitmq.Broker {
	if f.broker == nil {
		f.broker = rabbitmq.NewBroker(rabbitmq.Config{
			Host:        f.cfg.RabbitMQ.Host,
			Port:        f.cfg.RabbitMQ.Port,
			User:        f.cfg.RabbitMQ.User,
			Password:    f.cfg.RabbitMQ.Password,
			VHost:       f.cfg.RabbitMQ.VHost,
			DialTimeout: f.cfg.RabbitMQ.DialTimeout,
		})
	}
	return f.broker
}

func (f *Factory) Close() {
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		if err := f.redisCli.Close(); err != nil {
			f.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.logger.Warn("failed to close kafka producer", "error", err)
		}
	}
}
