package main

import (
	"context"
	"log/slog"
	"os"

	"qonbaq/internal/app"
	"qonbaq/internal/config"
	"qonbaq/internal/lib/logger/sl"
)

// Applies schema migrations for the configured storage driver and exits.
func main() {
	cfg := config.MustLoad()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx := context.Background()

	storage, err := app.OpenStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	if err := storage.Migrate(ctx); err != nil {
		log.Error("migrate up", sl.Err(err))
		os.Exit(1)
	}

	log.Info("migrations: up OK", slog.String("storage", cfg.Storage.Driver))
}
