// Package consumer binds the auth service use cases to the request
// dispatcher.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fushimori/lakomka/internal/domain/message"
	"github.com/fushimori/lakomka/internal/domain/user"
	"github.com/fushimori/lakomka/internal/rpc"
	"github.com/fushimori/lakomka/internal/usecase"
)

const (
	msgMissingCredentials = "Username and password are required"
	msgInvalidCredentials = "Invalid username or password"
	msgLoginSuccessful    = "Login successful"
)

var msgPasswordTooLong = fmt.Sprintf("Password must be at most %d bytes", usecase.MaxPasswordBytes)

type Registerer interface {
	Execute(ctx context.Context, params usecase.RegisterParams) (*user.User, error)
}

type Authenticator interface {
	Execute(ctx context.Context, email, password string) (string, error)
}

type EventHandlers struct {
	register Registerer
	login    Authenticator
}

func NewEventHandlers(register Registerer, login Authenticator) *EventHandlers {
	return &EventHandlers{
		register: register,
		login:    login,
	}
}

// Register binds every auth event to d.
func (h *EventHandlers) Register(d *rpc.Dispatcher) {
	d.Handle(message.EventRegister, h.HandleRegister)
	d.Handle(message.EventLogin, h.HandleLogin)
}

func (h *EventHandlers) HandleRegister(ctx context.Context, payload message.Payload) (message.Response, error) {
	email := strings.TrimSpace(payload.String("email"))

	_, err := h.register.Execute(ctx, usecase.RegisterParams{
		Email:         email,
		Password:      payload.String("password"),
		CorrelationID: rpc.CorrelationID(ctx),
	})
	switch {
	case errors.Is(err, usecase.ErrMissingCredentials):
		return message.Failure(msgMissingCredentials), nil
	case errors.Is(err, usecase.ErrPasswordTooLong):
		return message.Failure(msgPasswordTooLong), nil
	case errors.Is(err, usecase.ErrAlreadyExists):
		return message.Failure(fmt.Sprintf("User %s already exists", email)), nil
	case err != nil:
		return message.Response{}, err
	}

	return message.Success(fmt.Sprintf("User %s successfully registered", email)), nil
}

func (h *EventHandlers) HandleLogin(ctx context.Context, payload message.Payload) (message.Response, error) {
	email := strings.TrimSpace(payload.String("email"))

	token, err := h.login.Execute(ctx, email, payload.String("password"))
	switch {
	case errors.Is(err, usecase.ErrMissingCredentials):
		return message.Failure(msgMissingCredentials), nil
	case errors.Is(err, usecase.ErrInvalidCredentials):
		return message.Failure(msgInvalidCredentials), nil
	case err != nil:
		return message.Response{}, err
	}

	resp := message.Success(msgLoginSuccessful)
	resp.Token = token
	return resp, nil
}
