package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID         uuid.UUID
	Email      string
	Username   string
	PassHash   string
	FirstName  string
	LastName   string
	Patronymic string
	Phone      string
	IsAdmin    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PublicUser is the only user shape that leaves the service.
type PublicUser struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	IsAdmin  bool      `json:"isAdmin"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
	}
}

func (u User) Payload() TokenPayload {
	return TokenPayload{
		UserID:   u.ID.String(),
		Email:    u.Email,
		Username: u.Username,
	}
}

type RefreshToken struct {
	ID        uuid.UUID
	Token     string
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// * IsExpired проверяет, истек ли срок действия токена
func (t RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPayload is the identity carried inside access and refresh tokens.
type TokenPayload struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type EventType string

const (
	EventRegistered      EventType = "registered"
	EventLoggedIn        EventType = "logged_in"
	EventLoginFailed     EventType = "login_failed"
	EventRefreshed       EventType = "refreshed"
	EventRefreshRejected EventType = "refresh_rejected"
	EventLoggedOut       EventType = "logged_out"
)

const (
	ReasonNotFound      = "not_found"
	ReasonExpired       = "expired"
	ReasonInvalidToken  = "invalid_token"
	ReasonOwnerMismatch = "owner_mismatch"
	ReasonConsumed      = "consumed"
	ReasonBadPassword   = "bad_password"
	ReasonUnknownUser   = "unknown_user"
)

type AuthEvent struct {
	Type       EventType `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
