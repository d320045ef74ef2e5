package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/config"
	"github.com/your-org/ops-ledger/internal/pkg/auth"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "Ops Ledger"},
		JWT: config.JWTConfig{
			Secret:            "test-secret-that-is-long-enough-for-hs256",
			AccessTokenExpiry: time.Hour,
		},
	}
}

func TestGenerateAndValidate(t *testing.T) {
	manager := auth.NewJWTManager(testConfig())

	token, err := manager.GenerateAccessToken(42, "ops@example.com", "dispatcher")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, "dispatcher", claims.Role)
	assert.Equal(t, "user:42", claims.Subject)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	other := testConfig()
	other.JWT.Secret = "a-completely-different-secret-of-some-length"

	token, err := auth.NewJWTManager(other).GenerateAccessToken(1, "", "")
	require.NoError(t, err)

	_, err = auth.NewJWTManager(testConfig()).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AccessTokenExpiry = -time.Minute

	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(1, "", "")
	require.NoError(t, err)

	_, err = auth.NewJWTManager(cfg).ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateRejectsMissingUser(t *testing.T) {
	cfg := testConfig()
	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(0, "", "")
	require.NoError(t, err)

	_, err = auth.NewJWTManager(cfg).ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", ""},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, auth.ExtractTokenFromHeader(tt.header), tt.header)
	}
}
