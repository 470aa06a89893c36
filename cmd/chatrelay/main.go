package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatrelay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run loads the configuration, serves until SIGINT or SIGTERM and then shuts
// down gracefully.
func run(parent context.Context) (int, error) {
	// A missing .env file is fine; the real environment still applies.
	_ = godotenv.Load()

	cfg, err := config.LoadConfigWithPrecedence(os.Getenv("CHATRELAY_CONFIG_FILE"))
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(cfg.Log.Level)

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return exitConfig, fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("failed to start: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown requested")
	case runErr = <-application.Errors():
		log.Error("Server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return exitRuntime, fmt.Errorf("shutdown error: %w", err)
	}
	if runErr != nil {
		return exitRuntime, runErr
	}
	return exitOK, nil
}
