package usecase

import (
	"context"

	"github.com/fushimori/lakomka/internal/domain/outbox"
	"github.com/fushimori/lakomka/internal/domain/user"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
}

type OutboxWriter interface {
	Create(ctx context.Context, e *outbox.Event) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

type TokenIssuer interface {
	Issue(email string, userID int64) (string, error)
}
