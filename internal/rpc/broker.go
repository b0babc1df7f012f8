// Package rpc implements correlated request/reply over a message broker.
//
// A caller publishes a request to a durable work queue together with a fresh
// correlation id and the name of a private reply queue, then waits for the
// matching response. On the other side a long-running Consumer drains the work
// queue, dispatches each request by its event tag and publishes the response to
// the reply queue named in the request.
package rpc

import (
	"context"
)

// QueueSpec describes a queue declaration. An empty Name asks the broker to
// generate one.
type QueueSpec struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

type ConsumeOptions struct {
	AutoAck   bool
	Exclusive bool
	// Prefetch limits unacknowledged deliveries. Zero leaves the broker default.
	Prefetch int
}

// Message is an outgoing or incoming body plus the transport properties the
// protocol relies on.
type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID string
	ReplyTo       string
	Persistent    bool
}

// Delivery is a Message received from a queue. Ack must be called exactly once
// for deliveries consumed without AutoAck.
type Delivery struct {
	Message
	ack func() error
}

func NewDelivery(msg Message, ack func() error) Delivery {
	return Delivery{Message: msg, ack: ack}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Broker opens connections to the message broker.
type Broker interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is a single broker connection. It is owned by whoever opened it.
type Conn interface {
	// DeclareQueue declares a queue and returns its name. Declaring an existing
	// queue with the same properties is a no-op.
	DeclareQueue(ctx context.Context, spec QueueSpec) (string, error)
	// Consume starts delivering messages from the queue. The returned channel is
	// closed when the connection goes away.
	Consume(ctx context.Context, queue string, opts ConsumeOptions) (<-chan Delivery, error)
	// Publish sends a message to the named queue through the default exchange.
	Publish(ctx context.Context, queue string, msg Message) error
	// Closed is closed (after an optional error) once the connection is gone.
	Closed() <-chan error
	Close() error
}
