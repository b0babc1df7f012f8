package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fushimori/lakomka/internal/domain/user"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	const sql = `
		SELECT id, email, password_hash, is_active, role, created_at
		FROM users
		WHERE email = $1
	`

	u := &user.User{}
	err := conn(ctx, r.pool).QueryRow(ctx, sql, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

// Create inserts u and fills in its ID and CreatedAt.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	const sql = `
		INSERT INTO users (email, password_hash, is_active, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	role := u.Role
	if role == "" {
		role = user.RoleUser
	}

	err := conn(ctx, r.pool).QueryRow(ctx, sql, u.Email, u.PasswordHash, u.IsActive, role).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return user.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	u.Role = role
	return nil
}
