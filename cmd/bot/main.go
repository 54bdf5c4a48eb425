package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flor3z/noko-bot/internal/arena"
	"github.com/flor3z/noko-bot/internal/bot"
	"github.com/flor3z/noko-bot/internal/config"
	"github.com/flor3z/noko-bot/internal/httpapi"
	"github.com/flor3z/noko-bot/internal/scheduler"
	"github.com/flor3z/noko-bot/internal/storage"
	"github.com/flor3z/noko-bot/internal/telemetry"
	"github.com/flor3z/noko-bot/internal/trakt"
)

const serviceName = "noko-bot"

// stateBackend is an arena store that can be health-checked.
type stateBackend interface {
	arena.StateStore
	Ping(ctx context.Context) error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting Noko arena bot", "backend", cfg.StateBackend)

	if err := run(cfg); err != nil {
		slog.Error("Bot exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bot stopped")
}

func run(cfg *config.Config) error {
	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     serviceName,
		TracesEndpoint:  cfg.OTELEndpoint,
		MetricsEndpoint: cfg.OTELMetricsEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Error("Failed to flush telemetry", "error", err)
		}
	}()

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer repo.Close()

	var state stateBackend = repo
	if cfg.StateBackend == config.BackendRedis {
		rs, err := storage.NewRedisStateStore(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisStateKey,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize redis state store: %w", err)
		}
		defer rs.Close()
		state = rs
	}

	catalog, err := arena.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load challenge catalog: %w", err)
	}
	slog.Info("Challenge catalog loaded", "templates", catalog.Len())

	traktClient := trakt.NewClient(trakt.Config{
		ClientID:     cfg.TraktClientID,
		ClientSecret: cfg.TraktClientSecret,
		RedirectURI:  cfg.TraktRedirectURI,
		BaseURL:      cfg.TraktBaseURL,
		AuthURL:      cfg.TraktAuthURL,
	})

	svc := arena.NewService(arena.Deps{
		Store:    state,
		Accounts: repo,
		History:  traktClient,
		Catalog:  catalog,
	}, cfg.ArenaOptions())

	// Create and start the bot
	b, err := bot.New(cfg, bot.Deps{Arena: svc, Accounts: repo, Trakt: traktClient})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bot: %w", err)
	}
	defer func() {
		if err := b.Stop(); err != nil {
			slog.Error("Error stopping bot", "error", err)
		}
	}()

	sched, err := scheduler.New(svc, b.Announcer(), scheduler.Config{Interval: cfg.RotationInterval}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			slog.Error("Error stopping scheduler", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.SetupRoutes(httpapi.NewHandler(svc, state, slog.Default())),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("Bot is running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		slog.Info("Shutting down...")
	case err := <-serverErr:
		slog.Error("HTTP API failed", "error", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		slog.Error("Error stopping HTTP API", "error", err)
	}
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
