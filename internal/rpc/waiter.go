package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fushimori/lakomka/internal/domain/message"

	"github.com/google/uuid"
)

const DefaultTimeout = 5 * time.Second

type WaiterConfig struct {
	Queue   string
	Timeout time.Duration
}

// Waiter sends a request to the work queue and blocks until the correlated
// response arrives. Every call uses its own connection and reply queue.
type Waiter struct {
	broker  Broker
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewWaiter(broker Broker, cfg WaiterConfig, logger *slog.Logger) *Waiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{
		broker:  broker,
		queue:   cfg.Queue,
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

func NewCorrelationID() string {
	return uuid.New().String()
}

// SendAndWait publishes event+payload and returns the response carrying the
// same correlation id. It returns ErrBrokerUnavailable without retrying when
// the broker cannot be reached and ErrTimeout when no response arrives in time.
func (w *Waiter) SendAndWait(ctx context.Context, event string, payload message.Payload) (*message.Response, error) {
	started := time.Now()

	resp, err := w.sendAndWait(ctx, event, payload)

	switch {
	case err == nil:
		requestsTotal.WithLabelValues(event, outcomeOK).Inc()
		requestDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
	case errors.Is(err, ErrTimeout):
		requestsTotal.WithLabelValues(event, outcomeTimeout).Inc()
	case errors.Is(err, ErrBrokerUnavailable):
		requestsTotal.WithLabelValues(event, outcomeUnavailable).Inc()
	default:
		requestsTotal.WithLabelValues(event, outcomeCanceled).Inc()
	}
	return resp, err
}

func (w *Waiter) sendAndWait(ctx context.Context, event string, payload message.Payload) (*message.Response, error) {
	conn, err := w.broker.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			w.logger.Debug("close waiter connection", "error", err)
		}
	}()

	replyQueue, err := conn.DeclareQueue(ctx, QueueSpec{Exclusive: true, AutoDelete: true})
	if err != nil {
		return nil, fmt.Errorf("%w: declare reply queue: %v", ErrBrokerUnavailable, err)
	}

	correlationID := NewCorrelationID()

	// Subscribe before publishing so a fast reply cannot be missed.
	replies, err := conn.Consume(ctx, replyQueue, ConsumeOptions{AutoAck: true, Exclusive: true})
	if err != nil {
		return nil, fmt.Errorf("%w: consume reply queue: %v", ErrBrokerUnavailable, err)
	}

	body, err := json.Marshal(message.Request{Event: event, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	err = conn.Publish(ctx, w.queue, Message{
		Body:          body,
		ContentType:   "application/json",
		CorrelationID: correlationID,
		ReplyTo:       replyQueue,
		Persistent:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: publish request: %v", ErrBrokerUnavailable, err)
	}

	w.logger.Debug("waiting for response", "event", event, "correlation_id", correlationID, "reply_to", replyQueue)

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-replies:
			if !ok {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, errConnectionLost)
			}
			if d.CorrelationID != correlationID {
				w.logger.Debug("ignoring reply for another request", "correlation_id", d.CorrelationID, "want", correlationID)
				continue
			}

			var resp message.Response
			if err := json.Unmarshal(d.Body, &resp); err != nil {
				w.logger.Warn("undecodable reply", "correlation_id", correlationID, "error", err)
				continue
			}
			resp.CorrelationID = d.CorrelationID
			return &resp, nil

		case <-timer.C:
			w.logger.Warn("request timed out", "event", event, "correlation_id", correlationID, "timeout", w.timeout)
			return nil, ErrTimeout

		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
