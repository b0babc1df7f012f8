package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fushimori/lakomka/internal/domain/event"
	"github.com/fushimori/lakomka/internal/domain/outbox"
	"github.com/fushimori/lakomka/internal/domain/user"
	"github.com/fushimori/lakomka/internal/infrastructure/postgres"

	"github.com/google/uuid"
)

const producerName = "auth-service"

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

type RegisterUser struct {
	txManager postgres.Transactor
	users     UserRepository
	outbox    OutboxWriter
	hasher    PasswordHasher
	now       func() time.Time
}

func NewRegisterUser(
	txManager postgres.Transactor,
	users UserRepository,
	outbox OutboxWriter,
	hasher PasswordHasher,
) *RegisterUser {
	return &RegisterUser{
		txManager: txManager,
		users:     users,
		outbox:    outbox,
		hasher:    hasher,
		now:       time.Now,
	}
}

type RegisterParams struct {
	Email    string
	Password string
	// CorrelationID of the request that caused the registration, if any.
	CorrelationID string
}

// Execute creates the user and a UserRegistered outbox event in one
// transaction. An existing email yields ErrAlreadyExists.
func (uc *RegisterUser) Execute(ctx context.Context, params RegisterParams) (*user.User, error) {
	email := strings.TrimSpace(params.Email)
	if email == "" || params.Password == "" {
		return nil, ErrMissingCredentials
	}
	if len(params.Password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	hash, err := uc.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	newUser := &user.User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Role:         user.RoleUser,
	}

	err = uc.txManager.WithinTransaction(ctx, func(txCtx context.Context) error {
		_, err := uc.users.GetByEmail(txCtx, email)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}

		if err := uc.users.Create(txCtx, newUser); err != nil {
			if errors.Is(err, user.ErrConflict) {
				return ErrAlreadyExists
			}
			return err
		}

		e, err := uc.registeredEvent(newUser, params.CorrelationID)
		if err != nil {
			return err
		}
		return uc.outbox.Create(txCtx, e)
	})
	if errors.Is(err, ErrAlreadyExists) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	return newUser, nil
}

func (uc *RegisterUser) registeredEvent(u *user.User, correlationID string) (*outbox.Event, error) {
	payload, err := json.Marshal(event.UserRegistered{
		UserID: u.ID,
		Email:  u.Email,
		Role:   string(u.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal user registered: %w", err)
	}

	return &outbox.Event{
		ID:            uuid.New().String(),
		EventType:     outbox.EventUserRegistered,
		Payload:       payload,
		Status:        outbox.StatusNew,
		CorrelationID: correlationID,
		Producer:      producerName,
		CreatedAt:     uc.now().UTC(),
	}, nil
}
