package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/domain"
)

func signToken(t *testing.T, secret, issuer, userID string, expiresIn time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
		UserID: userID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestResolveUser(t *testing.T) {
	req := require.New(t)
	m := NewManager(config.AuthConfig{Secret: "s3cret", Issuer: "unithread"})

	userID, err := m.ResolveUser(signToken(t, "s3cret", "unithread", "u-1", time.Hour))
	req.NoError(err)
	req.Equal("u-1", userID)
}

func TestResolveUser_Empty_Token(t *testing.T) {
	req := require.New(t)
	m := NewManager(config.AuthConfig{Secret: "s3cret", Issuer: "unithread"})

	_, err := m.ResolveUser("")
	req.ErrorIs(err, domain.ErrUserNotFound)
}

func TestResolveUser_Wrong_Secret(t *testing.T) {
	req := require.New(t)
	m := NewManager(config.AuthConfig{Secret: "s3cret", Issuer: "unithread"})

	_, err := m.ResolveUser(signToken(t, "other", "unithread", "u-1", time.Hour))
	req.ErrorIs(err, ErrInvalidToken)
}

func TestResolveUser_Expired(t *testing.T) {
	req := require.New(t)
	m := NewManager(config.AuthConfig{Secret: "s3cret", Issuer: "unithread"})

	_, err := m.ResolveUser(signToken(t, "s3cret", "unithread", "u-1", -time.Minute))
	req.ErrorIs(err, ErrExpiredToken)
}

func TestResolveUser_Missing_UserID(t *testing.T) {
	req := require.New(t)
	m := NewManager(config.AuthConfig{Secret: "s3cret", Issuer: "unithread"})

	_, err := m.ResolveUser(signToken(t, "s3cret", "unithread", "", time.Hour))
	req.ErrorIs(err, domain.ErrUserNotFound)
}
