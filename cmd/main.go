package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qonbaq/internal/app"
	"qonbaq/internal/auth"
	"qonbaq/internal/config"
	"qonbaq/internal/events"
	httpserver "qonbaq/internal/http_server"
	"qonbaq/internal/lib/jwt"
	"qonbaq/internal/lib/logger/sl"
	"qonbaq/internal/lib/metrics"
	"qonbaq/internal/lib/password"
	"qonbaq/internal/rabbitmq"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting qonbaq", slog.String("env", cfg.Env), slog.String("storage", cfg.Storage.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	tokens := jwt.New(cfg.JWT)
	if err := tokens.Configured(); err != nil {
		// the server still starts; token routes answer 500 until the secret is set
		log.Error("jwt is not configured", sl.Err(err))
	}

	storage, err := app.OpenStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	if cfg.Storage.MigrateOnStart {
		if err := storage.Migrate(ctx); err != nil {
			log.Error("failed to migrate storage", sl.Err(err))
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	publisher := events.NewMulti(log, metrics.New(registry))

	if cfg.RabbitMQ.URL != "" {
		msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
		if err != nil {
			log.Error("failed to connect rabbitmq", sl.Err(err))
			os.Exit(1)
		}
		defer msgBroker.Close()

		publisher.Add(msgBroker)
	}

	authService := auth.New(
		log,
		storage,
		storage,
		storage,
		storage,
		tokens,
		password.New(cfg.Password.BcryptCost),
		publisher,
		cfg.JWT.RefreshTTL.Std(),
	)

	router := httpserver.NewRouter(log, httpserver.Deps{
		Auth:        authService,
		Tokens:      tokens,
		Metrics:     registry,
		CORSOrigins: cfg.HTTPServer.CORSOrigins,
		RateLimit:   cfg.HTTPServer.RateLimit,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
