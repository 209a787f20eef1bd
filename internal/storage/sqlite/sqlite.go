package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qonbaq/internal/models"
	"qonbaq/internal/storage"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type userRow struct {
	ID         uuid.UUID `gorm:"type:text;primaryKey"`
	Email      string    `gorm:"not null;uniqueIndex:users_email_key"`
	Username   string    `gorm:"not null;uniqueIndex:users_username_key"`
	PassHash   string    `gorm:"column:password_hash;not null"`
	FirstName  string    `gorm:"not null;default:''"`
	LastName   string    `gorm:"not null;default:''"`
	Patronymic string    `gorm:"not null;default:''"`
	Phone      string    `gorm:"not null;default:''"`
	IsAdmin    bool      `gorm:"not null;default:false"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type refreshTokenRow struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	Token     string    `gorm:"not null;uniqueIndex:refresh_tokens_token_key"`
	UserID    uuid.UUID `gorm:"type:text;not null;index"`
	User      userRow   `gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (refreshTokenRow) TableName() string { return "refresh_tokens" }

type Storage struct {
	db *gorm.DB
}

// New opens the database at path ("file:qonbaq.db", "file::memory:?cache=shared")
// with foreign keys enforced.
func New(ctx context.Context, path string, log *slog.Logger) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger: gormlogger.New(
			slog.NewLogLogger(log.Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// one writer at a time; also keeps a :memory: database alive on a single connection
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func dsn(path string) string {
	if strings.Contains(path, "_foreign_keys") {
		return path
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	return path + sep + "_foreign_keys=on"
}

// Migrate creates or updates the users and refresh_tokens tables.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.sqlite.Migrate"

	if err := s.db.WithContext(ctx).AutoMigrate(&userRow{}, &refreshTokenRow{}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (s *Storage) SaveUser(ctx context.Context, u models.User) error {
	const op = "storage.sqlite.SaveUser"

	row := userRow{
		ID:         u.ID,
		Email:      u.Email,
		Username:   u.Username,
		PassHash:   u.PassHash,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Patronymic: u.Patronymic,
		Phone:      u.Phone,
		IsAdmin:    u.IsAdmin,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}

	if err := s.conn(ctx).Create(&row).Error; err != nil {
		if mapped := mapUnique(err); mapped != nil {
			return mapped
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.user(ctx, "storage.sqlite.UserByEmail", "email = ?", email)
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.user(ctx, "storage.sqlite.UserByUsername", "username = ?", username)
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.user(ctx, "storage.sqlite.UserByID", "id = ?", id)
}

func (s *Storage) user(ctx context.Context, op, where string, arg any) (models.User, error) {
	var row userRow

	if err := s.conn(ctx).Where(where, arg).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.User{
		ID:         row.ID,
		Email:      row.Email,
		Username:   row.Username,
		PassHash:   row.PassHash,
		FirstName:  row.FirstName,
		LastName:   row.LastName,
		Patronymic: row.Patronymic,
		Phone:      row.Phone,
		IsAdmin:    row.IsAdmin,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, passHash string, updatedAt time.Time) error {
	const op = "storage.sqlite.UpdatePassword"

	res := s.conn(ctx).Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash": passHash,
		"updated_at":    updatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}

	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, rt models.RefreshToken) error {
	const op = "storage.sqlite.SaveRefreshToken"

	row := refreshTokenRow{
		ID:        rt.ID,
		Token:     rt.Token,
		UserID:    rt.UserID,
		ExpiresAt: rt.ExpiresAt,
		CreatedAt: rt.CreatedAt,
	}

	if err := s.conn(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if mapped := mapUnique(err); mapped != nil {
			return mapped
		}

		return fmt.Errorf("%s: failed to save refresh token: %w", op, err)
	}

	return nil
}

func (s *Storage) RefreshToken(ctx context.Context, token string) (models.RefreshToken, error) {
	const op = "storage.sqlite.RefreshToken"

	var row refreshTokenRow

	if err := s.conn(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
		}

		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.RefreshToken{
		ID:        row.ID,
		Token:     row.Token,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *Storage) DeleteRefreshToken(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "storage.sqlite.DeleteRefreshToken"

	res := s.conn(ctx).Where("id = ?", id).Delete(&refreshTokenRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("%s: %w", op, res.Error)
	}

	return res.RowsAffected, nil
}

func (s *Storage) DeleteRefreshTokensByValue(ctx context.Context, token string) (int64, error) {
	const op = "storage.sqlite.DeleteRefreshTokensByValue"

	res := s.conn(ctx).Where("token = ?", token).Delete(&refreshTokenRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("%s: %w", op, res.Error)
	}

	return res.RowsAffected, nil
}

// mapUnique turns "UNIQUE constraint failed: <table>.<column>" into a storage sentinel.
func mapUnique(err error) error {
	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) || sqErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return nil
	}

	msg := sqErr.Error()

	switch {
	case strings.Contains(msg, "users.email"):
		return storage.ErrEmailExists
	case strings.Contains(msg, "users.username"):
		return storage.ErrUsernameExists
	case strings.Contains(msg, "refresh_tokens.token"):
		return storage.ErrRefreshTokenExists
	}

	return nil
}
