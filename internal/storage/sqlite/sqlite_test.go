package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"qonbaq/internal/models"
	"qonbaq/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := New(ctx, "file:"+name+"?mode=memory&cache=shared", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))

	return s
}

func newUser(email, username string) models.User {
	now := time.Now().UTC()

	return models.User{
		ID:        uuid.New(),
		Email:     email,
		Username:  username,
		PassHash:  "hash",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "file:qonbaq.db?_foreign_keys=on", dsn("file:qonbaq.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", dsn("file:x?mode=memory"))
	assert.Equal(t, "file:x?_foreign_keys=off", dsn("file:x?_foreign_keys=off"))
}

func TestStorage_Users(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u := newUser("a@x.io", "alice")
	u.IsAdmin = true
	require.NoError(t, s.SaveUser(ctx, u))

	got, err := s.UserByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.IsAdmin)

	got, err = s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", got.Email)
	assert.Equal(t, "hash", got.PassHash)

	_, err = s.UserByEmail(ctx, "missing@x.io")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = s.UserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStorage_UniqueViolations(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveUser(ctx, newUser("a@x.io", "alice")))

	err := s.SaveUser(ctx, newUser("a@x.io", "bob"))
	assert.ErrorIs(t, err, storage.ErrEmailExists)

	err = s.SaveUser(ctx, newUser("b@x.io", "alice"))
	assert.ErrorIs(t, err, storage.ErrUsernameExists)
}

func TestStorage_UpdatePassword(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u := newUser("a@x.io", "alice")
	require.NoError(t, s.SaveUser(ctx, u))

	require.NoError(t, s.UpdatePassword(ctx, u.ID, "new-hash", time.Now()))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PassHash)

	err = s.UpdatePassword(ctx, uuid.New(), "x", time.Now())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestStorage_RefreshTokens(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u := newUser("a@x.io", "alice")
	require.NoError(t, s.SaveUser(ctx, u))

	expires := time.Now().Add(time.Hour).UTC()
	rt := models.RefreshToken{
		ID:        uuid.New(),
		Token:     "token-1",
		UserID:    u.ID,
		ExpiresAt: expires,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveRefreshToken(ctx, rt))

	dup := rt
	dup.ID = uuid.New()
	assert.ErrorIs(t, s.SaveRefreshToken(ctx, dup), storage.ErrRefreshTokenExists)

	got, err := s.RefreshToken(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, rt.ID, got.ID)
	assert.Equal(t, u.ID, got.UserID)
	assert.WithinDuration(t, expires, got.ExpiresAt, time.Second)

	n, err := s.DeleteRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.RefreshToken(ctx, "token-1")
	assert.ErrorIs(t, err, storage.ErrRefreshTokenNotFound)
}

func TestStorage_DeleteRefreshTokensByValue(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	u := newUser("a@x.io", "alice")
	require.NoError(t, s.SaveUser(ctx, u))

	for _, tok := range []string{"keep", "drop"} {
		require.NoError(t, s.SaveRefreshToken(ctx, models.RefreshToken{
			ID:        uuid.New(),
			Token:     tok,
			UserID:    u.ID,
			ExpiresAt: time.Now().Add(time.Hour),
			CreatedAt: time.Now(),
		}))
	}

	n, err := s.DeleteRefreshTokensByValue(ctx, "drop")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteRefreshTokensByValue(ctx, "drop")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.RefreshToken(ctx, "keep")
	assert.NoError(t, err)
}

func TestStorage_RefreshTokenRequiresUser(t *testing.T) {
	s := newTestStorage(t)

	err := s.SaveRefreshToken(context.Background(), models.RefreshToken{
		ID:        uuid.New(),
		Token:     "orphan",
		UserID:    uuid.New(),
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestStorage_WithTx(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	boom := errors.New("boom")
	rolledBack := newUser("a@x.io", "alice")

	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.SaveUser(ctx, rolledBack))

		_, err := s.UserByID(ctx, rolledBack.ID)
		require.NoError(t, err)

		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.UserByID(ctx, rolledBack.ID)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)

	committed := newUser("b@x.io", "bob")
	err = s.WithTx(ctx, func(ctx context.Context) error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			return s.SaveUser(ctx, committed)
		})
	})
	require.NoError(t, err)

	_, err = s.UserByID(ctx, committed.ID)
	assert.NoError(t, err)
}
