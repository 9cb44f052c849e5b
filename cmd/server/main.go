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

	"github.com/eldtechnologies/roomlog/internal/api"
	"github.com/eldtechnologies/roomlog/internal/api/middleware"
	"github.com/eldtechnologies/roomlog/internal/config"
	"github.com/eldtechnologies/roomlog/internal/gateway"
	"github.com/eldtechnologies/roomlog/internal/handlers"
	"github.com/eldtechnologies/roomlog/internal/store"
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
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	// Fallback file store (required)
	files, err := store.NewFileStore(cfg.DataFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DataFile).Msg("file store unavailable")
	}
	logger.Info().Str("path", files.Path()).Msg("file store ready")

	// Distributed store (optional)
	var (
		manager *store.Manager
		adapter *store.Adapter
	)
	if !cfg.StoreDisabled {
		manager = store.NewManager(logger, store.ManagerConfig{
			DialTimeout:   cfg.StoreDialTimeout,
			RetryInterval: cfg.StoreRetryInterval,
		}, dialers(cfg)...)
		defer manager.Close()

		if err := manager.Initialize(ctx); err != nil {
			logger.Warn().Err(err).Msg("distributed store unavailable, serving from file store")
		} else {
			logger.Info().Msg("connected to distributed store")
		}
		adapter = store.NewAdapter(manager, cfg.StoreOpTimeout, logger)
	} else {
		logger.Info().Msg("distributed store disabled")
	}

	// Room index (optional)
	rooms := openRoomIndex(ctx, cfg, logger)
	if rooms != nil {
		defer rooms.Close()
	}

	gw := gateway.New(adapter, files, rooms, logger)

	// Create router
	router := api.NewRouter(logger, api.Options{
		Handlers: handlers.Deps{
			Gateway:        gw,
			Files:          files,
			Manager:        manager,
			Rooms:          rooms,
			UploadDir:      cfg.UploadDir,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         logger,
		},
		PublicDir: cfg.PublicDir,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second, // uploads
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting roomlog server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// dialers returns the connection strategies tried in order: the universal
// client when STORE_ADDRS is set, then the single host/port.
func dialers(cfg *config.Config) []store.Dialer {
	var out []store.Dialer
	if len(cfg.StoreAddrs) > 0 {
		out = append(out, store.OptionsDialer{
			Options: &redis.UniversalOptions{
				Addrs:       cfg.StoreAddrs,
				Password:    cfg.StorePassword,
				DB:          cfg.StoreDB,
				DialTimeout: cfg.StoreDialTimeout,
			},
			FallbackTimeout: cfg.StoreDialTimeout,
		})
	}
	if cfg.StoreHost != "" {
		out = append(out, store.AddrDialer{
			Host:     cfg.StoreHost,
			Port:     cfg.StorePort,
			Password: cfg.StorePassword,
			DB:       cfg.StoreDB,
		})
	}
	return out
}

// openRoomIndex connects to Postgres when DATABASE_URL is set and to SQLite
// otherwise. Failures leave the index disabled.
func openRoomIndex(ctx context.Context, cfg *config.Config, logger zerolog.Logger) store.RoomIndex {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresRoomIndex(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("postgres room index unavailable")
			return nil
		}
		logger.Info().Msg("connected to PostgreSQL room index")
		return pg
	}

	sq, err := store.NewSQLiteRoomIndex(ctx, cfg.RoomIndexPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.RoomIndexPath).Msg("sqlite room index unavailable")
		return nil
	}
	logger.Info().Str("path", cfg.RoomIndexPath).Msg("sqlite room index ready")
	return sq
}
