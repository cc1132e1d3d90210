package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	cliBilling "github.com/felixgeelhaar/tutorhub/adapter/cli/billing"
	"github.com/felixgeelhaar/tutorhub/adapter/cli/mcp"
	"github.com/felixgeelhaar/tutorhub/internal/app"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
)

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Logs go to stderr so command output stays clean
	logger := observability.NewLogger(observability.LogConfig{
		Level:       observability.LogLevel(cfg.LogLevel),
		Format:      observability.LogFormatText,
		Output:      os.Stderr,
		ServiceName: "tutorhub-cli",
	})
	cli.SetLogger(logger)

	// Try to initialize the full container
	var cliApp *cli.App
	container, err := app.NewContainerFromConfig(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		// In development, allow CLI to run without database
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()

		cliApp = cli.NewApp(
			container.TransitionHandler,
			container.Importer,
			container.BillingService,
			container.Maintenance,
			container.WebhookProcessor,
		)
		cliApp.SetLegacyDatabaseURL(cfg.LegacyDatabaseURL)

		// Local mode has no worker; deliver events before exiting
		if container.IsLocal() {
			cliApp.SetAfterCommand(container.DrainOutbox)
		}

		if cfg.UserID != "" {
			userID, err := uuid.Parse(cfg.UserID)
			if err != nil {
				logger.Error("invalid TUTORHUB_USER_ID", "error", err)
				os.Exit(1)
			}
			cliApp.SetCurrentUserID(userID)
		}
	}

	// Set the CLI app
	cli.SetApp(cliApp)

	// Register commands
	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(mcp.Cmd)

	// Execute CLI
	cli.ExecuteContext(ctx)
}
