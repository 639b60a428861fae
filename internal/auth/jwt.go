// Package auth resolves the authenticated user behind a connection
// principal. Tokens are issued by the platform's auth system; this service
// only verifies and extracts the user ID.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the platform's JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Manager verifies platform-issued tokens.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager creates a token manager.
func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// ResolveUser returns the user ID behind a token. An empty or unverifiable
// token resolves to domain.ErrUserNotFound: the connection has no
// authenticated principal.
func (m *Manager) ResolveUser(token string) (string, error) {
	if token == "" {
		return "", domain.ErrUserNotFound
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.UserID == "" {
		return "", domain.ErrUserNotFound
	}
	return claims.UserID, nil
}
