package rpc_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fushimori/lakomka/internal/domain/message"
	"github.com/fushimori/lakomka/internal/rpc"
	"github.com/fushimori/lakomka/internal/rpc/rpctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumer_DeclaresDurableQueue(t *testing.T) {
	broker := rpctest.NewBroker()
	startConsumer(t, broker, nil)

	assert.True(t, broker.HasQueue(testQueue))
}

func TestConsumer_PoisonMessageDoesNotBlockQueue(t *testing.T) {
	broker := rpctest.NewBroker()
	startConsumer(t, broker, map[string]rpc.HandlerFunc{"echo": echoHandler})

	for _, body := range []string{`not json`, `[1,2,3]`, `{"email":"no-event@example.com"}`} {
		require.NoError(t, broker.Publish(testQueue, rpc.Message{Body: []byte(body), CorrelationID: "poison"}))
	}

	w := newWaiter(broker, time.Second)
	resp, err := w.SendAndWait(context.Background(), "echo", message.Payload{"n": "after-poison"})
	require.NoError(t, err)
	assert.Equal(t, "after-poison", resp.Message)

	// Three dropped messages plus the good one, all acknowledged.
	assert.Eventually(t, func() bool { return broker.Acks() == 4 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, broker.QueueLen(testQueue))
}

func TestConsumer_UnknownEventSkipsHandlers(t *testing.T) {
	broker := rpctest.NewBroker()
	var called atomic.Bool
	startConsumer(t, broker, map[string]rpc.HandlerFunc{
		message.EventRegister: func(ctx context.Context, payload message.Payload) (message.Response, error) {
			called.Store(true)
			return message.Success("registered"), nil
		},
	})

	w := newWaiter(broker, time.Second)
	resp, err := w.SendAndWait(context.Background(), "drop_tables", message.Payload{"email": "x@y.z"})
	require.NoError(t, err)

	assert.Equal(t, message.StatusError, resp.Status)
	assert.Equal(t, "Unknown event type", resp.Message)
	assert.False(t, called.Load())
}

func TestConsumer_HandlerFailureStillAnswersAndAcks(t *testing.T) {
	broker := rpctest.NewBroker()
	startConsumer(t, broker, map[string]rpc.HandlerFunc{
		"fails": func(ctx context.Context, payload message.Payload) (message.Response, error) {
			return message.Response{}, errors.New("database is on fire")
		},
		"panics": func(ctx context.Context, payload message.Payload) (message.Response, error) {
			panic("boom")
		},
	})

	w := newWaiter(broker, time.Second)
	for _, event := range []string{"fails", "panics"} {
		resp, err := w.SendAndWait(context.Background(), event, nil)
		require.NoError(t, err, event)
		assert.Equal(t, message.StatusError, resp.Status, event)
		assert.Equal(t, "Internal server error", resp.Message, event)
	}
	assert.Eventually(t, func() bool { return broker.Acks() == 2 }, time.Second, 5*time.Millisecond)
}

func TestConsumer_NoReplyToIsFireAndForget(t *testing.T) {
	broker := rpctest.NewBroker()
	var published atomic.Int32
	broker.OnPublish = func(queue string, msg rpc.Message) { published.Add(1) }

	handled := make(chan string, 1)
	startConsumer(t, broker, map[string]rpc.HandlerFunc{
		"notify": func(ctx context.Context, payload message.Payload) (message.Response, error) {
			handled <- payload.String("email")
			return message.Success("ok"), nil
		},
	})

	require.NoError(t, broker.Publish(testQueue, rpc.Message{
		Body: []byte(`{"event":"notify","email":"a@b.c"}`),
	}))

	select {
	case email := <-handled:
		assert.Equal(t, "a@b.c", email)
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
	assert.Eventually(t, func() bool { return broker.Acks() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, published.Load(), "no response expected without reply_to")
}

func TestConsumer_ReconnectsAfterBrokerRestart(t *testing.T) {
	broker := rpctest.NewBroker()
	c := startConsumer(t, broker, map[string]rpc.HandlerFunc{"echo": echoHandler})

	broker.SetDown(true)
	require.Eventually(t, func() bool { return c.State() != rpc.StateListening }, time.Second, 5*time.Millisecond)

	// A few failed attempts while the broker is away.
	time.Sleep(60 * time.Millisecond)
	broker.SetDown(false)

	require.Eventually(t, func() bool { return c.State() == rpc.StateListening }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, broker.Connects(), 2)

	w := newWaiter(broker, time.Second)
	resp, err := w.SendAndWait(context.Background(), "echo", message.Payload{"n": "back"})
	require.NoError(t, err)
	assert.Equal(t, "back", resp.Message)
}

func TestConsumer_StartsWhileBrokerDown(t *testing.T) {
	broker := rpctest.NewBroker()
	broker.SetDown(true)

	d := rpc.NewDispatcher(discardLogger())
	d.Handle("echo", echoHandler)
	c := rpc.NewConsumer(broker, d, rpc.ConsumerConfig{Queue: testQueue, Backoff: 10 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.NotEqual(t, rpc.StateListening, c.State())

	broker.SetDown(false)
	require.Eventually(t, func() bool { return c.State() == rpc.StateListening }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	assert.Equal(t, rpc.StateDisconnected, c.State())
	assert.Zero(t, broker.OpenConns())
}

func TestConsumer_HandlersSeeCorrelationID(t *testing.T) {
	broker := rpctest.NewBroker()
	startConsumer(t, broker, map[string]rpc.HandlerFunc{
		"whoami": func(ctx context.Context, payload message.Payload) (message.Response, error) {
			return message.Success(rpc.CorrelationID(ctx)), nil
		},
	})

	w := newWaiter(broker, time.Second)
	resp, err := w.SendAndWait(context.Background(), "whoami", nil)
	require.NoError(t, err)
	assert.Equal(t, resp.CorrelationID, resp.Message)
}
