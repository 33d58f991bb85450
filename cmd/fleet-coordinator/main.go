package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/gpufleet/fleet/internal/api/http"
	"github.com/gpufleet/fleet/internal/commands"
	"github.com/gpufleet/fleet/internal/db"
	"github.com/gpufleet/fleet/internal/registry"
	"github.com/gpufleet/fleet/internal/telemetry"
	"github.com/gpufleet/fleet/internal/users"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Fleet Coordinator", "version", AppVersion)

	if err := db.RunMigrations(config.Database.Url); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.InitDB(ctx, config.Database.Url)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	services := &internalhttp.Services{
		Registry:  registry.NewService(registry.NewPostgresStore(pool)),
		Commands:  commands.NewService(commands.NewPostgresStore(pool)),
		Telemetry: telemetry.NewService(telemetry.NewPostgresStore(pool)),
		Users:     users.NewService(users.NewPostgresStore(pool)),
		JWT:       config.JWT,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
