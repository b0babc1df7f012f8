package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	digest, err := h.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", digest)

	assert.True(t, h.Verify("s3cret", digest))
	assert.False(t, h.Verify("wrong", digest))
	assert.False(t, h.Verify("s3cret", "not-a-bcrypt-digest"))
}

func TestTokens_IssueAndParse(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)

	signed, err := tokens.Issue("user@example.com", 7)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Subject)
	assert.Equal(t, int64(7), claims.UserID)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)
	signed, err := tokens.Issue("user@example.com", 7)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewTokens("other-secret", time.Minute).Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokens("test-secret", time.Minute)
		late.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := late.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
