package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/squadhq/intake/internal/config"
	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/database"
	"github.com/squadhq/intake/internal/middleware"
	"github.com/squadhq/intake/internal/uploads"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.Info("configuration loaded successfully",
		"correlation_backend", cfg.Correlation.Backend,
		"correlation_ttl", cfg.Correlation.TTL,
		"storage_type", cfg.Storage.Type,
	)

	slog.Info("CORS configuration",
		"allowed_origins", cfg.CORS.AllowedOrigins,
		"allowed_methods", cfg.CORS.AllowedMethods,
		"allowed_headers", cfg.CORS.AllowedHeaders,
		"allow_credentials", cfg.CORS.AllowCredentials,
		"max_age", cfg.CORS.MaxAge,
	)

	slog.Info("server configuration",
		"port", cfg.Server.Port,
		"base_path", cfg.Server.BasePath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open correlation store: %v", err)
	}
	if db != nil {
		defer func() {
			if err := database.Close(db); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}()
	}

	storage, err := uploads.NewStorageFromConfig(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize attachment storage: %v", err)
	}

	// Set up HTTP routes
	mux := http.NewServeMux()
	correlation.NewHandler(store).Register(mux, cfg.Server.BasePath)
	uploads.NewHTTPHandler(uploads.NewUploadService(storage)).Register(mux, cfg.Server.BasePath)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux, middleware.Logging, middleware.CORS(&cfg.CORS)),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	if sweeper, ok := store.(*correlation.GormStore); ok {
		g.Go(func() error {
			return sweeper.RunSweeper(gctx, cfg.Correlation.SweepInterval)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
			return err
		}
		slog.Info("server gracefully stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openStore builds the correlation store for the configured backend. The
// returned *gorm.DB is nil for the in-memory store.
func openStore(cfg *config.Config) (correlation.Store, *gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Correlation.Backend {
	case config.BackendMemory:
		slog.Info("using in-memory correlation store; results are lost on restart")
		return correlation.NewMemoryStore(), nil, nil
	case config.BackendSQLite:
		db, err = database.OpenSQLite(cfg.Correlation.SQLitePath)
	case config.BackendPostgres:
		db, err = database.New(&cfg.Database)
	default:
		return nil, nil, fmt.Errorf("unsupported correlation backend: %s", cfg.Correlation.Backend)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := database.HealthCheck(db); err != nil {
		_ = database.Close(db)
		return nil, nil, fmt.Errorf("database health check failed: %w", err)
	}

	store, err := correlation.NewGormStore(db, cfg.Correlation.TTL)
	if err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	return store, db, nil
}
