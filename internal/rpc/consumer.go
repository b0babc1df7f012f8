package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fushimori/lakomka/internal/domain/message"
)

const DefaultBackoff = 5 * time.Second

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

type ConsumerConfig struct {
	Queue    string
	Backoff  time.Duration
	Prefetch int
}

// Consumer drains the durable work queue for the lifetime of the process.
// It reconnects after a fixed backoff whenever the broker is unreachable or
// the connection drops, and never gives up on its own.
type Consumer struct {
	broker     Broker
	dispatcher *Dispatcher
	publisher  *Publisher
	queue      string
	backoff    time.Duration
	prefetch   int
	logger     *slog.Logger

	state atomic.Int32
}

func NewConsumer(broker Broker, dispatcher *Dispatcher, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		broker:     broker,
		dispatcher: dispatcher,
		publisher:  NewPublisher(),
		queue:      cfg.Queue,
		backoff:    cfg.Backoff,
		prefetch:   cfg.Prefetch,
		logger:     logger,
	}
}

func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started", "queue", c.queue)

	for {
		c.setState(StateConnecting)
		err := c.listen(ctx)
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			c.logger.Info("consumer stopped", "queue", c.queue)
			return nil
		}

		consumerReconnects.Inc()
		c.logger.Warn("broker not available, retrying", "queue", c.queue, "backoff", c.backoff, "error", err)

		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopped", "queue", c.queue)
			return nil
		case <-time.After(c.backoff):
		}
	}
}

// listen serves one connection until it fails or ctx is cancelled.
func (c *Consumer) listen(ctx context.Context) error {
	conn, err := c.broker.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.DeclareQueue(ctx, QueueSpec{Name: c.queue, Durable: true}); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}

	deliveries, err := conn.Consume(ctx, c.queue, ConsumeOptions{Prefetch: c.prefetch})
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.setState(StateListening)
	c.logger.Info("listening for messages", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-conn.Closed():
			if err == nil {
				err = errConnectionLost
			}
			return err
		case d, ok := <-deliveries:
			if !ok {
				return errConnectionLost
			}
			c.handle(ctx, conn, d)
		}
	}
}

// handle processes one delivery. The ack is deferred so it runs once
// processing is over, whatever the outcome.
func (c *Consumer) handle(ctx context.Context, conn Conn, d Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			c.logger.Error("failed to ack message", "correlation_id", d.CorrelationID, "error", err)
		}
	}()

	var req message.Request
	if err := json.Unmarshal(d.Body, &req); err != nil {
		consumerMalformed.Inc()
		c.logger.Error("dropping malformed message",
			"error", fmt.Errorf("%w: %v", ErrMalformedMessage, err),
			"correlation_id", d.CorrelationID,
			"body", string(d.Body[:min(len(d.Body), 200)]))
		return
	}

	resp := c.dispatcher.Dispatch(WithCorrelationID(ctx, d.CorrelationID), req)
	label := req.Event
	if !c.dispatcher.Has(req.Event) {
		label = "unknown"
	}
	consumerMessages.WithLabelValues(label, resp.Status).Inc()
	c.logger.Info("request processed", "event", req.Event, "status", resp.Status, "correlation_id", d.CorrelationID)

	if d.ReplyTo == "" {
		return
	}

	if err := c.publisher.Publish(ctx, conn, d.ReplyTo, d.CorrelationID, resp); err != nil {
		consumerPublishErrors.Inc()
		c.logger.Error("failed to send response", "reply_to", d.ReplyTo, "correlation_id", d.CorrelationID, "error", err)
	}
}
