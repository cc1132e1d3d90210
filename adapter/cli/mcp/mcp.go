// Package mcp holds the `tutorhub mcp` command group.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tutorhub/internal/app"
	mcpinternal "github.com/felixgeelhaar/tutorhub/internal/mcp"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the MCP command group.
var Cmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage the TutorHub MCP admin interface",
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the billing admin tools over MCP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}
		userID, err := adminUserID(cfg.UserID)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
		container, err := app.NewContainerFromConfig(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		err = mcpinternal.Serve(ctx, cfg, mcpinternal.NewCLIApp(container, userID), container.Metrics, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

// adminUserID parses the operator ID; empty means no default user.
func adminUserID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid TUTORHUB_USER_ID: %w", err)
	}
	return id, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides MCP_ADDR)")
	Cmd.AddCommand(serveCmd)
}
