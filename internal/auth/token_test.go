package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	config := Config{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "user-1", "operator")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "operator", claims.Username)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	config := Config{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "user-1", "operator")
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken("test-secret", "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
