package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	domainEvent "github.com/fushimori/lakomka/internal/domain/event"
	"github.com/fushimori/lakomka/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	pending   []*outbox.Event
	processed []string
	failed    []string
}

func (s *memStore) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(limit, len(s.pending))
	batch := s.pending[:n]
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *memStore) MarkProcessed(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, ids...)
	return nil
}

func (s *memStore) MarkFailed(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, ids...)
	return nil
}

type sent struct {
	event *outbox.Event
	value []byte
}

type memProducer struct {
	mu     sync.Mutex
	msgs   []sent
	failOn string
}

func (p *memProducer) SendEvent(ctx context.Context, e *outbox.Event, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn != "" && e.CorrelationID == p.failOn {
		return errors.New("leader not available")
	}
	p.msgs = append(p.msgs, sent{event: e, value: value})
	return nil
}

func (p *memProducer) Topic() string { return "user-events" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registered(id, correlationID string) *outbox.Event {
	return &outbox.Event{
		ID:            id,
		EventType:     outbox.EventUserRegistered,
		Payload:       []byte(`{"user_id":1,"email":"a@b.c","role":"user"}`),
		Status:        outbox.StatusProcessing,
		CorrelationID: correlationID,
		Producer:      "auth-service",
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestProcessBatch(t *testing.T) {
	store := &memStore{pending: []*outbox.Event{
		registered("e-1", "corr-1"),
		registered("e-2", ""),
		registered("e-3", "corr-bad"),
	}}
	producer := &memProducer{failOn: "corr-bad"}
	p := NewOutboxPoller(store, producer, PollerConfig{}, discardLogger())

	publishedBefore := testutil.ToFloat64(eventsPublished)
	errorsBefore := testutil.ToFloat64(publishErrors)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Equal(t, []string{"e-1", "e-2"}, store.processed)
	assert.Equal(t, []string{"e-3"}, store.failed)
	assert.Equal(t, 2.0, testutil.ToFloat64(eventsPublished)-publishedBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(publishErrors)-errorsBefore)

	require.Len(t, producer.msgs, 2)
	assert.Equal(t, "e-1", producer.msgs[0].event.ID)
	assert.Equal(t, "e-2", producer.msgs[1].event.ID)

	var msg domainEvent.Message
	require.NoError(t, json.Unmarshal(producer.msgs[0].value, &msg))
	assert.Equal(t, "e-1", msg.ID)
	assert.Equal(t, outbox.EventUserRegistered, msg.Type)
	assert.Equal(t, "corr-1", msg.CorrelationID)
	assert.True(t, msg.OccurredAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	var payload domainEvent.UserRegistered
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "a@b.c", payload.Email)
}

func TestProcessBatch_Empty(t *testing.T) {
	store := &memStore{}
	p := NewOutboxPoller(store, &memProducer{}, PollerConfig{}, discardLogger())

	require.NoError(t, p.processBatch(context.Background()))
	assert.Empty(t, store.processed)
	assert.Empty(t, store.failed)
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	store := &memStore{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		store.pending = append(store.pending, registered(id, ""))
	}
	producer := &memProducer{}
	p := NewOutboxPoller(store, producer, PollerConfig{Interval: 5 * time.Millisecond, BatchSize: 2}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.processed) == 5
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
