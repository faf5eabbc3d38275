package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bhaavyasura7/E2ee-chat/internal/api"
	"github.com/bhaavyasura7/E2ee-chat/internal/auth"
	"github.com/bhaavyasura7/E2ee-chat/internal/config"
	"github.com/bhaavyasura7/E2ee-chat/internal/directory"
	"github.com/bhaavyasura7/E2ee-chat/internal/gateway"
	"github.com/bhaavyasura7/E2ee-chat/internal/handlers"
	"github.com/bhaavyasura7/E2ee-chat/internal/presence"
	"github.com/bhaavyasura7/E2ee-chat/internal/queue"
	"github.com/bhaavyasura7/E2ee-chat/internal/relay"
	"github.com/bhaavyasura7/E2ee-chat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("instance", cfg.InstanceID).
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("instance", cfg.InstanceID).
			Logger()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the message store
	var msgStore store.MessageStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		msgStore = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		lite, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		msgStore = lite
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer msgStore.Close()

	// Shared Redis client: presence, key directory, bus and queue
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer rdb.Close()
	logger.Info().Msg("connected to Redis")

	reg := presence.NewRedisRegistry(rdb)
	dir := directory.NewRedisDirectory(rdb)
	bus := relay.NewRedisBus(rdb, logger)
	jobs := queue.NewRedisQueue(rdb)
	tokens := auth.NewJWTAuthenticator(cfg.JWTSecret)

	// Gateway + bus subscriber for this instance
	gw := gateway.New(tokens, bus, jobs, reg, dir, logger)
	router := relay.NewRouter(bus, gw.Hub(), logger)
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Fatal().Err(err).Msg("bus subscriber failed")
		}
	}()

	// HTTP surface
	h := handlers.NewHandler(msgStore, reg, tokens, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	mux := api.NewRouter(logger, h, gw)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket sessions hold the connection open
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting relay server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
