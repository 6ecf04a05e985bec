// @title           TODOs API
// @version         1.0
// @description     Task CRUD with realtime change notifications and a periodic importer.
// @host            localhost:8080
// @BasePath        /api
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/like-Ocean/TODOs/internal/app"
	"github.com/like-Ocean/TODOs/internal/config"
	"github.com/like-Ocean/TODOs/internal/logging"

	_ "github.com/like-Ocean/TODOs/docs"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("config: %v", err)
	}
	logging.InitLogger(cfg.Log.Level, cfg.Log.Format)
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	slog.Info("Config loaded, connecting to DB and Redis", "env", cfg.App.Env, "version", cfg.App.Version)

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("App init failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      application.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Duration(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Duration(),
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	application.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-quit:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; Close ends them.
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		exitCode = 1
	}
	if err := application.Close(ctx); err != nil {
		slog.Error("App close error", "error", err)
		exitCode = 1
	}
	slog.Info("Shutdown complete")
	cancel()
	os.Exit(exitCode)
}
