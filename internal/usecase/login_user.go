package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fushimori/lakomka/internal/domain/user"
)

type LoginUser struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
}

func NewLoginUser(users UserRepository, hasher PasswordHasher, tokens TokenIssuer) *LoginUser {
	return &LoginUser{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Execute returns an access token for valid credentials. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (uc *LoginUser) Execute(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", ErrMissingCredentials
	}

	u, err := uc.users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	if !u.IsActive || !uc.hasher.Verify(password, u.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	token, err := uc.tokens.Issue(u.Email, u.ID)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	return token, nil
}
