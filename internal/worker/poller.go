package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	domainEvent "github.com/fushimori/lakomka/internal/domain/event"
	"github.com/fushimori/lakomka/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_events_published_total",
		Help: "The total number of events published to Kafka",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_outbox_publish_errors_total",
		Help: "The total number of failed publish attempts",
	})
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 10
	sendTimeout      = 5 * time.Second
)

type OutboxStore interface {
	FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
}

type Producer interface {
	SendEvent(ctx context.Context, e *outbox.Event, value []byte) error
	Topic() string
}

type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// OutboxPoller relays outbox events to Kafka. Delivery is at least once:
// an event is marked processed only after Kafka accepted it.
type OutboxPoller struct {
	store     OutboxStore
	producer  Producer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewOutboxPoller(store OutboxStore, producer Producer, cfg PollerConfig, logger *slog.Logger) *OutboxPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPoller{
		store:     store,
		producer:  producer,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("outbox poller started", "topic", p.producer.Topic(), "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process batch", "error", err)
			}
		}
	}
}

func (p *OutboxPoller) processBatch(ctx context.Context) error {
	events, err := p.store.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, e := range events {
		if err := p.send(ctx, e); err != nil {
			p.logger.Error("failed to send event", "id", e.ID, "type", e.EventType, "error", err)
			publishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		eventsPublished.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.store.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		p.logger.Info("outbox events published", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.store.MarkFailed(ctx, failedIDs); err != nil {
			p.logger.Error("failed to mark events as failed", "count", len(failedIDs), "error", err)
		}
	}

	return nil
}

func (p *OutboxPoller) send(ctx context.Context, e *outbox.Event) error {
	value, err := json.Marshal(domainEvent.Message{
		ID:            e.ID,
		Type:          e.EventType,
		CorrelationID: e.CorrelationID,
		Producer:      e.Producer,
		OccurredAt:    e.CreatedAt.UTC(),
		Payload:       e.Payload,
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return p.producer.SendEvent(sendCtx, e, value)
}
