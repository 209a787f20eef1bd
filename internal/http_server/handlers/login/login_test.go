package login

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"qonbaq/internal/auth"
	resp "qonbaq/internal/lib/api/response"
	"qonbaq/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginFunc func(ctx context.Context, email, username, password string) (models.User, models.TokenPair, error)

func (f loginFunc) Login(ctx context.Context, email, username, password string) (models.User, models.TokenPair, error) {
	return f(ctx, email, username, password)
}

func TestLoginHandler(t *testing.T) {
	user := models.User{ID: uuid.New(), Email: "a@x.io", Username: "alice"}
	pair := models.TokenPair{AccessToken: "access", RefreshToken: "refresh"}

	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "by email", body: `{"email":"a@x.io","password":"secret1"}`, wantStatus: http.StatusOK},
		{name: "by username", body: `{"username":"alice","password":"secret1"}`, wantStatus: http.StatusOK},
		{name: "neither identifier", body: `{"password":"secret1"}`, wantStatus: http.StatusBadRequest, wantError: "validation failed"},
		{name: "no password", body: `{"email":"a@x.io"}`, wantStatus: http.StatusBadRequest, wantError: "validation failed"},
		{name: "bad email", body: `{"email":"a@","password":"x"}`, wantStatus: http.StatusBadRequest, wantError: "validation failed"},
		{name: "bad json", body: `[`, wantStatus: http.StatusBadRequest, wantError: "Failed to decode request"},
		{name: "invalid credentials", body: `{"email":"a@x.io","password":"bad"}`, err: auth.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantError: "Invalid credentials"},
		{name: "internal", body: `{"email":"a@x.io","password":"bad"}`, err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantError: "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := loginFunc(func(context.Context, string, string, string) (models.User, models.TokenPair, error) {
				if tt.err != nil {
					return models.User{}, models.TokenPair{}, tt.err
				}
				return user, pair, nil
			})

			h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), svc)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(tt.body)))

			require.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				var body Response
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, user.Public(), body.User)
				assert.Equal(t, "access", body.AccessToken)
				assert.Equal(t, "refresh", body.RefreshToken)
				return
			}

			var body resp.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestLoginHandler_PassesIdentifiers(t *testing.T) {
	var gotEmail, gotUsername string

	svc := loginFunc(func(_ context.Context, email, username, _ string) (models.User, models.TokenPair, error) {
		gotEmail, gotUsername = email, username
		return models.User{}, models.TokenPair{}, nil
	})
	h := New(slog.New(slog.NewTextHandler(io.Discard, nil)), validator.New(), svc)

	rec := httptest.NewRecorder()
	body := `{"email":" a@x.io ","username":"alice","password":"secret1"}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.io", gotEmail)
	assert.Equal(t, "alice", gotUsername)
}
