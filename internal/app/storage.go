package app

import (
	"context"
	"fmt"
	"log/slog"

	"qonbaq/internal/auth"
	"qonbaq/internal/config"
	"qonbaq/internal/storage/postgres"
	"qonbaq/internal/storage/sqlite"
)

// Storage is what every backend offers to the auth service and to bootstrap.
type Storage interface {
	auth.UserSaver
	auth.UserProvider
	auth.TokenStore
	auth.Transactor
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Storage = (*postgres.Storage)(nil)
	_ Storage = (*sqlite.Storage)(nil)
)

// OpenStorage connects to the configured backend. The caller owns Close.
func OpenStorage(ctx context.Context, cfg config.Storage, log *slog.Logger) (Storage, error) {
	const op = "app.OpenStorage"

	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
}
