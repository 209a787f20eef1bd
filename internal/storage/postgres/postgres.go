package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qonbaq/internal/config"
	"qonbaq/internal/models"
	"qonbaq/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Storage) (*Storage, error) {
	const op = "storage.postgres.New"

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) SaveUser(ctx context.Context, u models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (id, email, username, password_hash, first_name, last_name, patronymic, phone, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`

	_, err := s.querier(ctx).Exec(ctx, query,
		u.ID, u.Email, u.Username, u.PassHash,
		u.FirstName, u.LastName, u.Patronymic, u.Phone, u.IsAdmin,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if mapped := mapUnique(err); mapped != nil {
			return mapped
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

const userColumns = `id, email, username, password_hash, first_name, last_name, patronymic, phone, is_admin, created_at, updated_at`

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.user(ctx, "storage.postgres.UserByEmail", `SELECT `+userColumns+` FROM users WHERE email = $1;`, email)
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.user(ctx, "storage.postgres.UserByUsername", `SELECT `+userColumns+` FROM users WHERE username = $1;`, username)
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.user(ctx, "storage.postgres.UserByID", `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)
}

func (s *Storage) user(ctx context.Context, op, query string, arg any) (models.User, error) {
	var u models.User

	err := s.querier(ctx).QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.Patronymic,
		&u.Phone,
		&u.IsAdmin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, passHash string, updatedAt time.Time) error {
	const op = "storage.postgres.UpdatePassword"

	tag, err := s.querier(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1;`,
		id, passHash, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, rt models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
		INSERT INTO refresh_tokens (id, token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`

	_, err := s.querier(ctx).Exec(ctx, query, rt.ID, rt.Token, rt.UserID, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		if mapped := mapUnique(err); mapped != nil {
			return mapped
		}

		return fmt.Errorf("%s: failed to save refresh token: %w", op, err)
	}

	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "storage.postgres.RefreshToken"

	query := `
		SELECT id, token, user_id, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1;
	`

	var rt models.RefreshToken

	err := s.querier(ctx).QueryRow(ctx, query, token).Scan(
		&rt.ID,
		&rt.Token,
		&rt.UserID,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return rt, nil
}

func (s *Storage) DeleteRefreshToken(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "storage.postgres.DeleteRefreshToken"

	tag, err := s.querier(ctx).Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1;`, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

func (s *Storage) DeleteRefreshTokensByValue(ctx context.Context, token string) (int64, error) {
	const op = "storage.postgres.DeleteRefreshTokensByValue"

	tag, err := s.querier(ctx).Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1;`, token)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

// mapUnique turns a unique violation into the storage sentinel for the
// offending constraint. Anything else yields nil.
func mapUnique(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}

	switch pgErr.ConstraintName {
	case "users_email_key":
		return storage.ErrEmailExists
	case "users_username_key":
		return storage.ErrUsernameExists
	case "refresh_tokens_token_key":
		return storage.ErrRefreshTokenExists
	}

	return nil
}
