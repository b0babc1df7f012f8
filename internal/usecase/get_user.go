package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fushimori/lakomka/internal/domain/user"

	"github.com/redis/go-redis/v9"
)

const userCacheTTL = 30 * time.Second

type UserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetUser looks users up by email through a short-lived Redis cache. A nil
// redis client disables the cache.
type GetUser struct {
	redisClient *redis.Client
	users       UserRepository
}

func NewGetUser(redisClient *redis.Client, users UserRepository) *GetUser {
	return &GetUser{
		redisClient: redisClient,
		users:       users,
	}
}

func (uc *GetUser) Execute(ctx context.Context, email string) (*UserDTO, error) {
	cacheKey := fmt.Sprintf("user:%s", email)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var dto UserDTO
			if err := json.Unmarshal([]byte(val), &dto); err == nil {
				return &dto, nil
			}
		}
	}

	u, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	dto := &UserDTO{ID: u.ID, Email: u.Email, Role: string(u.Role)}
	if dto.Role == "" {
		dto.Role = string(user.RoleUser)
	}

	if uc.redisClient != nil {
		data, _ := json.Marshal(dto)
		uc.redisClient.Set(ctx, cacheKey, data, userCacheTTL)
	}

	return dto, nil
}
