// Command mcp serves the billing admin tools over MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/tutorhub/internal/app"
	mcpinternal "github.com/felixgeelhaar/tutorhub/internal/mcp"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	userID, err := uuid.Parse(cfg.UserID)
	if err != nil {
		return fmt.Errorf("invalid TUTORHUB_USER_ID: %w", err)
	}

	container, err := app.NewContainerFromConfig(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	return mcpinternal.Serve(ctx, cfg, mcpinternal.NewCLIApp(container, userID), container.Metrics, logger)
}
