// Package rpctest provides an in-memory rpc.Broker for tests.
package rpctest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fushimori/lakomka/internal/rpc"
)

const queueCapacity = 1024

var ErrRefused = errors.New("connection refused")

// Broker is an in-memory broker with default-exchange routing: publishing to
// a queue name delivers to that queue, publishing to an unknown name drops
// the message. Auto-delete and exclusive queues disappear with the connection
// that declared them.
type Broker struct {
	mu       sync.Mutex
	queues   map[string]*queue
	conns    map[*Conn]struct{}
	seq      int
	down     bool
	connects int

	acks atomic.Int64

	// OnPublish, if set, is called for every message published through a
	// connection before it is routed.
	OnPublish func(queue string, msg rpc.Message)
}

type queue struct {
	name string
	msgs chan rpc.Message
}

func NewBroker() *Broker {
	return &Broker{
		queues: make(map[string]*queue),
		conns:  make(map[*Conn]struct{}),
	}
}

func (b *Broker) Connect(ctx context.Context) (rpc.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.down {
		return nil, ErrRefused
	}

	c := &Conn{
		broker: b,
		done:   make(chan struct{}),
		closed: make(chan error, 1),
	}
	b.conns[c] = struct{}{}
	b.connects++
	return c, nil
}

// SetDown simulates the broker going away (true) or coming back (false).
// Going down drops every open connection.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	var victims []*Conn
	if down {
		for c := range b.conns {
			victims = append(victims, c)
		}
	}
	b.mu.Unlock()

	for _, c := range victims {
		c.shutdown(errors.New("broker shut down"))
	}
}

// Publish injects a message straight into a queue, bypassing connections.
func (b *Broker) Publish(queueName string, msg rpc.Message) error {
	b.mu.Lock()
	q := b.queues[queueName]
	b.mu.Unlock()

	if q == nil {
		return nil
	}
	select {
	case q.msgs <- msg:
		return nil
	default:
		return fmt.Errorf("queue %s is full", queueName)
	}
}

func (b *Broker) Acks() int64 {
	return b.acks.Load()
}

func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *Broker) OpenConns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

func (b *Broker) QueueLen(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return len(q.msgs)
	}
	return 0
}

// Conn is a connection to Broker.
type Conn struct {
	broker *Broker
	owned  []string

	once   sync.Once
	done   chan struct{}
	closed chan error
}

func (c *Conn) DeclareQueue(ctx context.Context, spec rpc.QueueSpec) (string, error) {
	if c.isClosed() {
		return "", errors.New("connection closed")
	}

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	name := spec.Name
	if name == "" {
		b.seq++
		name = fmt.Sprintf("amq.gen-%d", b.seq)
	}
	if _, ok := b.queues[name]; ok {
		return name, nil
	}

	b.queues[name] = &queue{name: name, msgs: make(chan rpc.Message, queueCapacity)}
	if spec.AutoDelete || spec.Exclusive {
		c.owned = append(c.owned, name)
	}
	return name, nil
}

func (c *Conn) Consume(ctx context.Context, queueName string, opts rpc.ConsumeOptions) (<-chan rpc.Delivery, error) {
	if c.isClosed() {
		return nil, errors.New("connection closed")
	}

	c.broker.mu.Lock()
	q := c.broker.queues[queueName]
	c.broker.mu.Unlock()
	if q == nil {
		return nil, fmt.Errorf("NOT_FOUND - no queue '%s'", queueName)
	}

	out := make(chan rpc.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-c.done:
				return
			case m := <-q.msgs:
				var ack func() error
				if !opts.AutoAck {
					ack = func() error {
						c.broker.acks.Add(1)
						return nil
					}
				}
				select {
				case out <- rpc.NewDelivery(m, ack):
				case <-c.done:
					// Unacknowledged messages go back to the queue.
					select {
					case q.msgs <- m:
					default:
					}
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Conn) Publish(ctx context.Context, queueName string, msg rpc.Message) error {
	if c.isClosed() {
		return errors.New("connection closed")
	}
	if hook := c.broker.OnPublish; hook != nil {
		hook(queueName, msg)
	}
	return c.broker.Publish(queueName, msg)
}

func (c *Conn) Closed() <-chan error {
	return c.closed
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown(err error) {
	c.once.Do(func() {
		close(c.done)
		if err != nil {
			c.closed <- err
		}
		close(c.closed)

		b := c.broker
		b.mu.Lock()
		delete(b.conns, c)
		for _, name := range c.owned {
			delete(b.queues, name)
		}
		b.mu.Unlock()
	})
}
