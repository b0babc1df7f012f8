package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/fushimori/lakomka/internal/domain/outbox"

	"github.com/segmentio/kafka-go"
)

// Header keys set on every published event so consumers can route without
// decoding the body.
const (
	HeaderEventType     = "event_type"
	HeaderCorrelationID = "correlation_id"
	HeaderProducer      = "producer"
)

type Config struct {
	Brokers []string
	Topic   string
}

// Producer publishes outbox events to a single topic.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg Config) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

// SendEvent writes value as the body of e. The key is the correlation id, or
// the event id when there is none, so events of one request share a
// partition.
func (p *Producer) SendEvent(ctx context.Context, e *outbox.Event, value []byte) error {
	if err := p.writer.WriteMessages(ctx, eventMessage(e, value)); err != nil {
		return fmt.Errorf("write %s event %s: %w", e.EventType, e.ID, err)
	}
	return nil
}

func eventMessage(e *outbox.Event, value []byte) kafka.Message {
	key := e.CorrelationID
	if key == "" {
		key = e.ID
	}

	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(e.EventType)},
		{Key: HeaderProducer, Value: []byte(e.Producer)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(e.CorrelationID)})
	}

	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: headers,
		Time:    e.CreatedAt,
	}
}

func (p *Producer) Topic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
