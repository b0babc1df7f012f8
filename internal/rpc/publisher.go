package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fushimori/lakomka/internal/domain/message"
)

// Publisher sends responses to reply destinations. Delivery is best effort:
// a failed publish is reported once and never retried.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, conn Conn, replyTo, correlationID string, resp message.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrPublish, err)
	}

	err = conn.Publish(ctx, replyTo, Message{
		Body:          body,
		ContentType:   "application/json",
		CorrelationID: correlationID,
	})
	if err != nil {
		return fmt.Errorf("%w to %s: %v", ErrPublish, replyTo, err)
	}
	return nil
}
