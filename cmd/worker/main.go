package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/config"
	"github.com/bhaavyasura7/E2ee-chat/internal/queue"
	"github.com/bhaavyasura7/E2ee-chat/internal/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("role", "worker").
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("role", "worker").
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Message store
	var msgStore store.MessageStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		msgStore = pg
		logger.Info().Msg("worker connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		msgStore = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("worker using SQLite store")
	}
	defer msgStore.Close()

	// Durable queue
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer rdb.Close()

	worker := queue.NewWorker(queue.NewRedisQueue(rdb), msgStore, logger, cfg.QueueMaxAttempts, cfg.QueueBackoff)

	logger.Info().
		Int("max_attempts", cfg.QueueMaxAttempts).
		Dur("backoff", cfg.QueueBackoff).
		Msg("persistence worker started")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker stopped unexpectedly")
	}

	logger.Info().Msg("worker stopped")
}
