package jwt

import (
	"errors"
	"fmt"
	"time"

	"qonbaq/internal/config"
	"qonbaq/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrSecretNotSet = errors.New("jwt secret is not set")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims is the JWT body shared by access and refresh tokens.
type Claims struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

type key struct {
	secret []byte
	ttl    time.Duration
}

// Manager signs and verifies both token kinds. It holds no mutable state
// and is safe for concurrent use.
type Manager struct {
	access  key
	refresh key
	now     func() time.Time
}

func New(cfg config.JWT) *Manager {
	return &Manager{
		access:  key{secret: []byte(cfg.AccessSecret), ttl: cfg.AccessTTL.Std()},
		refresh: key{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTTL.Std()},
		now:     time.Now,
	}
}

// Configured reports a missing secret so bootstrap can fail loudly.
func (m *Manager) Configured() error {
	switch {
	case len(m.access.secret) == 0:
		return fmt.Errorf("access: %w", ErrSecretNotSet)
	case len(m.refresh.secret) == 0:
		return fmt.Errorf("refresh: %w", ErrSecretNotSet)
	}

	return nil
}

func (m *Manager) SignAccess(p models.TokenPayload) (string, error) {
	return m.sign(p, kindAccess, m.access)
}

func (m *Manager) SignRefresh(p models.TokenPayload) (string, error) {
	return m.sign(p, kindRefresh, m.refresh)
}

func (m *Manager) VerifyAccess(token string) (models.TokenPayload, error) {
	return m.verify(token, kindAccess, m.access)
}

func (m *Manager) VerifyRefresh(token string) (models.TokenPayload, error) {
	return m.verify(token, kindRefresh, m.refresh)
}

// RefreshTTL is the lifetime the store should give a freshly signed refresh token.
func (m *Manager) RefreshTTL() time.Duration {
	return m.refresh.ttl
}

func (m *Manager) sign(p models.TokenPayload, kind string, k key) (string, error) {
	const op = "jwt.sign"

	if len(k.secret) == 0 {
		return "", fmt.Errorf("%s: %s: %w", op, kind, ErrSecretNotSet)
	}

	now := m.now()
	claims := Claims{
		UserID:   p.UserID,
		Email:    p.Email,
		Username: p.Username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// * jti делает каждый токен уникальным даже в пределах одной секунды
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(k.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (m *Manager) verify(token, kind string, k key) (models.TokenPayload, error) {
	const op = "jwt.verify"

	if len(k.secret) == 0 {
		return models.TokenPayload{}, fmt.Errorf("%s: %s: %w", op, kind, ErrSecretNotSet)
	}

	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return k.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.TokenPayload{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.Kind != kind || claims.UserID == "" {
		return models.TokenPayload{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return models.TokenPayload{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}
