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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/squadhq/intake/internal/config"
	"github.com/squadhq/intake/internal/correlation"
	"github.com/squadhq/intake/internal/database"
	"github.com/squadhq/intake/internal/desk"
	"github.com/squadhq/intake/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.LoadDesk()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.Info("analysis desk configuration",
		"port", cfg.Port,
		"db_path", cfg.DBPath,
		"correlation_url", cfg.CorrelationURL,
		"auto_draft", cfg.AutoDraft,
		"auto_draft_delay", cfg.AutoDraftDelay,
	)

	db, err := database.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open desk database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	store, err := desk.NewSubmissionStore(db)
	if err != nil {
		log.Fatalf("failed to create submission store: %v", err)
	}

	client := correlation.NewClient(cfg.CorrelationURL, nil)
	if err := client.Health(context.Background()); err != nil {
		slog.Warn("correlation server not reachable yet; deliveries will fail until it is up",
			"url", cfg.CorrelationURL, "error", err)
	}

	service := desk.NewService(store, client, desk.Options{
		AutoDraft:      cfg.AutoDraft,
		AutoDraftDelay: cfg.AutoDraftDelay,
	})

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: middleware.CORS(&cfg.CORS)(desk.NewHandler(service).Router()),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("starting analysis desk", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	slog.Info("shutting down analysis desk...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	service.Close()
	slog.Info("analysis desk stopped")
}
