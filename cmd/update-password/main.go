package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"qonbaq/internal/app"
	"qonbaq/internal/auth"
	"qonbaq/internal/config"
	"qonbaq/internal/lib/jwt"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/lib/password"
)

const usage = "usage: update-password <email> <new-password>"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New(usage)
	}

	email, newPassword := args[0], args[1]
	if len(newPassword) < 6 || len(newPassword) > password.MaxLength {
		return fmt.Errorf("password must be between 6 and %d bytes", password.MaxLength)
	}

	cfg := config.MustLoad()

	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	storage, err := app.OpenStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	tokens := jwt.New(cfg.JWT)
	svc := auth.New(log, storage, storage, storage, storage, tokens, password.New(cfg.Password.BcryptCost), nil, cfg.JWT.RefreshTTL.Std())

	if err := svc.UpdatePassword(ctx, email, newPassword); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return err
	}

	fmt.Fprintf(out, "password updated for %s\n", auth.NormalizeEmail(email))

	return nil
}
