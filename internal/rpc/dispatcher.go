package rpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fushimori/lakomka/internal/domain/message"
)

const (
	msgUnknownEvent  = "Unknown event type"
	msgInternalError = "Internal server error"
)

// HandlerFunc turns a request payload into a response. Domain failures are
// expected to come back as error responses; a returned error means the handler
// could not do its job at all.
type HandlerFunc func(ctx context.Context, payload message.Payload) (message.Response, error)

// Dispatcher routes requests to handlers by event tag.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers h for event. Registering the same event twice replaces the
// earlier handler.
func (d *Dispatcher) Handle(event string, h HandlerFunc) {
	d.handlers[event] = h
}

func (d *Dispatcher) Has(event string) bool {
	_, ok := d.handlers[event]
	return ok
}

// Dispatch always produces a response: unknown tags, handler errors and
// handler panics all become error responses.
func (d *Dispatcher) Dispatch(ctx context.Context, req message.Request) (resp message.Response) {
	h, ok := d.handlers[req.Event]
	if !ok {
		return message.Failure(msgUnknownEvent)
	}

	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("handler panicked", "event", req.Event, "panic", fmt.Sprint(p))
			resp = message.Failure(msgInternalError)
		}
	}()

	resp, err := h(ctx, req.Payload)
	if err != nil {
		d.logger.Error("handler failed", "event", req.Event, "error", err)
		return message.Failure(msgInternalError)
	}
	return resp
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying the correlation id of the
// request being handled.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
