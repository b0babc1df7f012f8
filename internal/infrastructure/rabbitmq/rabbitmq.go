package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fushimori/lakomka/internal/rpc"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	VHost       string
	DialTimeout time.Duration
}

// URL renders the AMQP URI for cfg.
func (c Config) URL() string {
	port := c.Port
	if port == 0 {
		port = 5672
	}
	vhost := c.VHost
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     c.Host,
		Port:     port,
		Username: c.User,
		Password: c.Password,
		Vhost:    vhost,
	}.String()
}

// Broker dials RabbitMQ. Each Connect opens a new TCP connection with a
// single channel; callers own and close what they open.
type Broker struct {
	url         string
	dialTimeout time.Duration
}

func NewBroker(cfg Config) *Broker {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Broker{url: cfg.URL(), dialTimeout: timeout}
}

func (b *Broker) Connect(ctx context.Context) (rpc.Conn, error) {
	dialer := &net.Dialer{Timeout: b.dialTimeout}
	conn, err := amqp.DialConfig(b.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Conn{
		conn:   conn,
		ch:     ch,
		done:   make(chan struct{}),
		closed: make(chan error, 1),
	}
	go c.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return c, nil
}

// Conn wraps one AMQP connection and its channel. AMQP channels are not safe
// for concurrent use, so channel operations are serialized.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex

	once   sync.Once
	done   chan struct{}
	closed chan error
}

func (c *Conn) watch(notify <-chan *amqp.Error) {
	if amqpErr, ok := <-notify; ok && amqpErr != nil {
		c.closed <- amqpErr
	}
	close(c.closed)
}

func (c *Conn) DeclareQueue(ctx context.Context, spec rpc.QueueSpec) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, err := c.ch.QueueDeclare(
		spec.Name,       // name, "" lets the server pick one
		spec.Durable,    // durable
		spec.AutoDelete, // delete when unused
		spec.Exclusive,  // exclusive
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return "", fmt.Errorf("declare queue %q: %w", spec.Name, err)
	}
	return q.Name, nil
}

func (c *Conn) Consume(ctx context.Context, queue string, opts rpc.ConsumeOptions) (<-chan rpc.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.Prefetch > 0 {
		if err := c.ch.Qos(opts.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}

	deliveries, err := c.ch.Consume(
		queue,          // queue
		"",             // consumer tag (auto-generated)
		opts.AutoAck,   // auto-ack
		opts.Exclusive, // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan rpc.Delivery)
	go func() {
		defer close(out)
		for d := range deliveries {
			select {
			case out <- toDelivery(d, opts.AutoAck):
			case <-c.done:
				return
			}
		}
	}()
	return out, nil
}

func toDelivery(d amqp.Delivery, autoAck bool) rpc.Delivery {
	var ack func() error
	if !autoAck {
		ack = func() error { return d.Ack(false) }
	}
	return rpc.NewDelivery(rpc.Message{
		Body:          d.Body,
		ContentType:   d.ContentType,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Persistent:    d.DeliveryMode == amqp.Persistent,
	}, ack)
}

func (c *Conn) Publish(ctx context.Context, queue string, msg rpc.Message) error {
	mode := amqp.Transient
	if msg.Persistent {
		mode = amqp.Persistent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.ch.PublishWithContext(ctx,
		"",    // default exchange routes by queue name
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   msg.ContentType,
			CorrelationId: msg.CorrelationID,
			ReplyTo:       msg.ReplyTo,
			DeliveryMode:  mode,
			Body:          msg.Body,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (c *Conn) Closed() <-chan error {
	return c.closed
}

// Close closes the channel and the connection. Closing an already dropped
// connection is not an error.
func (c *Conn) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ch.Close()
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
