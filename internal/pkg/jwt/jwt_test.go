package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/pkg/constants"
)

func setupJWTConfig(t *testing.T, accessExpire int) {
	t.Helper()
	old := config.GlobalConfig
	config.GlobalConfig = &config.Config{
		Auth: config.AuthConfig{
			JWT: config.JWTConfig{
				Secret:             "test-secret-for-unit-tests-only",
				AccessTokenExpire:  accessExpire,
				RefreshTokenExpire: 3600,
			},
		},
	}
	t.Cleanup(func() { config.GlobalConfig = old })
}

func TestAccessTokenRoundTrip(t *testing.T) {
	setupJWTConfig(t, 3600)

	token, err := GenerateAccessToken("alice", "approver")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, "approver", claims.Role)
	assert.Equal(t, constants.JWTTypeAccess, claims.Type)
}

func TestRefreshTokenHasRefreshType(t *testing.T) {
	setupJWTConfig(t, 3600)

	token, err := GenerateRefreshToken("bob", "viewer")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, constants.JWTTypeRefresh, claims.Type)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	setupJWTConfig(t, -60)

	token, err := GenerateAccessToken("alice", "approver")
	require.NoError(t, err)

	_, err = ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	setupJWTConfig(t, 3600)

	_, err := ValidateToken("not.a.token")
	assert.Error(t, err)

	_, err = ValidateToken("")
	assert.Error(t, err)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	setupJWTConfig(t, 3600)
	token, err := GenerateAccessToken("alice", "approver")
	require.NoError(t, err)

	config.GlobalConfig.Auth.JWT.Secret = "another-secret"
	_, err = ValidateToken(token)
	assert.Error(t, err)
}
