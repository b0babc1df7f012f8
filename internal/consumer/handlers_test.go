package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fushimori/lakomka/internal/auth"
	"github.com/fushimori/lakomka/internal/domain/message"
	"github.com/fushimori/lakomka/internal/domain/outbox"
	"github.com/fushimori/lakomka/internal/domain/user"
	"github.com/fushimori/lakomka/internal/rpc"
	"github.com/fushimori/lakomka/internal/rpc/rpctest"
	"github.com/fushimori/lakomka/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type passthroughTx struct{}

func (passthroughTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]user.User
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) Create(ctx context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return user.ErrConflict
	}
	u.ID = int64(len(m.users) + 1)
	m.users[u.Email] = *u
	return nil
}

type memOutbox struct {
	mu     sync.Mutex
	events []*outbox.Event
}

func (m *memOutbox) Create(ctx context.Context, e *outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type fixture struct {
	handlers *EventHandlers
	tokens   *auth.Tokens
	outbox   *memOutbox
}

func newFixture() *fixture {
	users := &memUsers{users: make(map[string]user.User)}
	box := &memOutbox{}
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewTokens("test-secret", time.Minute)

	return &fixture{
		handlers: NewEventHandlers(
			usecase.NewRegisterUser(passthroughTx{}, users, box, hasher),
			usecase.NewLoginUser(users, hasher, tokens),
		),
		tokens: tokens,
		outbox: box,
	}
}

func creds(email, password string) message.Payload {
	return message.Payload{"email": email, "password": password}
}

func TestHandleRegister(t *testing.T) {
	f := newFixture()
	ctx := rpc.WithCorrelationID(context.Background(), "corr-7")

	resp, err := f.handlers.HandleRegister(ctx, creds("ann@example.com", "pw"))
	require.NoError(t, err)
	assert.Equal(t, message.Success("User ann@example.com successfully registered"), resp)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, "corr-7", f.outbox.events[0].CorrelationID)

	resp, err = f.handlers.HandleRegister(ctx, creds("ann@example.com", "other"))
	require.NoError(t, err)
	assert.Equal(t, message.Failure("User ann@example.com already exists"), resp)

	resp, err = f.handlers.HandleRegister(ctx, message.Payload{"email": "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, message.Failure("Username and password are required"), resp)
}

func TestHandleLogin(t *testing.T) {
	f := newFixture()
	_, err := f.handlers.HandleRegister(context.Background(), creds("kim@example.com", "right"))
	require.NoError(t, err)

	resp, err := f.handlers.HandleLogin(context.Background(), creds("kim@example.com", "right"))
	require.NoError(t, err)
	assert.Equal(t, message.StatusSuccess, resp.Status)
	assert.Equal(t, "Login successful", resp.Message)

	claims, err := f.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", claims.Subject)
	assert.Equal(t, int64(1), claims.UserID)

	for _, p := range []message.Payload{
		creds("kim@example.com", "wrong"),
		creds("nobody@example.com", "right"),
	} {
		resp, err := f.handlers.HandleLogin(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, message.Failure("Invalid username or password"), resp)
		assert.Empty(t, resp.Token)
	}

	resp, err = f.handlers.HandleLogin(context.Background(), message.Payload{"password": "right"})
	require.NoError(t, err)
	assert.Equal(t, message.Failure("Username and password are required"), resp)
}

func TestHandleRegister_LongPasswordIsDomainError(t *testing.T) {
	f := newFixture()

	resp, err := f.handlers.HandleRegister(context.Background(), creds("long@example.com", strings.Repeat("p", 80)))
	require.NoError(t, err)
	assert.Equal(t, message.Failure("Password must be at most 72 bytes"), resp)
	assert.Empty(t, f.outbox.events)
}

func TestHandlers_TrimEmail(t *testing.T) {
	f := newFixture()

	resp, err := f.handlers.HandleRegister(context.Background(), creds("  lee@example.com ", "pw"))
	require.NoError(t, err)
	assert.Equal(t, message.Success("User lee@example.com successfully registered"), resp)

	resp, err = f.handlers.HandleRegister(context.Background(), creds("lee@example.com\t", "pw"))
	require.NoError(t, err)
	assert.Equal(t, message.Failure("User lee@example.com already exists"), resp)

	resp, err = f.handlers.HandleLogin(context.Background(), creds(" lee@example.com", "pw"))
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

type failingRegisterer struct{}

func (failingRegisterer) Execute(ctx context.Context, params usecase.RegisterParams) (*user.User, error) {
	return nil, errors.New("register user: connection refused")
}

func TestHandleRegister_InfrastructureErrorIsReturned(t *testing.T) {
	h := NewEventHandlers(failingRegisterer{}, nil)

	_, err := h.HandleRegister(context.Background(), creds("a@b.c", "pw"))
	assert.ErrorContains(t, err, "connection refused")
}

func TestEventHandlers_OverTheQueue(t *testing.T) {
	f := newFixture()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := rpctest.NewBroker()

	d := rpc.NewDispatcher(logger)
	f.handlers.Register(d)
	c := rpc.NewConsumer(broker, d, rpc.ConsumerConfig{Queue: "user_events", Backoff: 10 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, func() bool { return c.State() == rpc.StateListening }, time.Second, 5*time.Millisecond)

	w := rpc.NewWaiter(broker, rpc.WaiterConfig{Queue: "user_events", Timeout: 2 * time.Second}, logger)

	resp, err := w.SendAndWait(context.Background(), message.EventRegister, creds("joe@example.com", "pw"))
	require.NoError(t, err)
	assert.Equal(t, "User joe@example.com successfully registered", resp.Message)

	resp, err = w.SendAndWait(context.Background(), message.EventRegister, creds("joe@example.com", "pw"))
	require.NoError(t, err)
	assert.Equal(t, message.StatusError, resp.Status)
	assert.Equal(t, "User joe@example.com already exists", resp.Message)

	resp, err = w.SendAndWait(context.Background(), message.EventLogin, creds("joe@example.com", "pw"))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.NotEmpty(t, resp.Token)

	resp, err = w.SendAndWait(context.Background(), message.EventLogin, creds("joe@example.com", "bad"))
	require.NoError(t, err)
	assert.Equal(t, "Invalid username or password", resp.Message)

	require.Len(t, f.outbox.events, 1)
	assert.NotEmpty(t, f.outbox.events[0].CorrelationID)
}
