package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correctpassword")
	require.NoError(t, err)
	assert.NotEqual(t, "correctpassword", hash)
	assert.Equal(t, "$2a$", hash[:4])

	assert.True(t, CheckPassword("correctpassword", hash))
	assert.False(t, CheckPassword("wrongpassword", hash))
	assert.False(t, CheckPassword("", hash))
}

func TestCreateUser(t *testing.T) {
	svc := NewService(NewMemoryStore())

	user, err := svc.Create(context.Background(), "operator", "password123")
	require.NoError(t, err)
	assert.Equal(t, "operator", user.Username)
	assert.NotEmpty(t, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Create(context.Background(), "operator", "password456")
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestVerifyCredentials(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, err := svc.Create(context.Background(), "operator", "password123")
	require.NoError(t, err)

	user, err := svc.VerifyCredentials(context.Background(), "operator", "password123")
	require.NoError(t, err)
	assert.Equal(t, "operator", user.Username)

	_, err = svc.VerifyCredentials(context.Background(), "operator", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.VerifyCredentials(context.Background(), "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
