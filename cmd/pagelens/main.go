// main.go - HTTP server application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagelens/internal"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	app, err := internal.NewApp()
	if err != nil {
		slog.Error("Failed to create app", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.Logger

	logger.Info("Running database migrations...")
	if err := app.Migrate(); err != nil {
		logger.Error("Failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Migrations completed")

	if err := app.StartAsync(); err != nil {
		logger.Error("Failed to start application", slog.Any("error", err))
		os.Exit(1)
	}

	waitForShutdownSignal(app)
}

// waitForShutdownSignal blocks until a termination signal or a listen
// failure, then shuts the application down.
func waitForShutdownSignal(app *internal.Application) {
	logger := app.Logger
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("Received signal", slog.String("signal", sig.String()))
	case err := <-app.Errors():
		logger.Error("HTTP server stopped", slog.Any("error", err))
		exitCode = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown...")
	if err := app.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
	os.Exit(exitCode)
}
