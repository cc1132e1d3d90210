// Package mcp runs the MCP admin server on top of the CLI application.
package mcp

import (
	"context"
	"errors"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	mcplocal "github.com/felixgeelhaar/tutorhub/adapter/mcp"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
)

// Serve listens on cfg.MCPAddr until ctx is canceled.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, metrics observability.Metrics, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cliApp == nil {
		return errors.New("CLI app is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv, err := NewServer(cliApp, metrics, logger)
	if err != nil {
		return err
	}

	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

// NewServer builds the MCP server with the billing tools registered.
func NewServer(cliApp *cli.App, metrics observability.Metrics, logger *slog.Logger) (*mcpgo.Server, error) {
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:         "tutorhub-mcp",
		Version:      cli.CurrentBuild().Version,
		Capabilities: mcpgo.Capabilities{Tools: true},
	})

	err := mcplocal.RegisterCLITools(srv, mcplocal.ToolDependencies{
		App:     cliApp,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// middlewareStack puts bearer auth in front of the default stack when a token
// is configured.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger}
	stack := middleware.DefaultStack(log)
	if token == "" {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
		return stack
	}

	tokens := middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "admin", Name: "tutorhub admin"},
	})
	auth := middleware.Auth(middleware.BearerTokenAuthenticator(tokens), middleware.WithAuthLogger(log))
	return append([]middleware.Middleware{auth}, stack...)
}

// slogAdapter satisfies the middleware logger with slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) log(level slog.Level, msg string, fields []middleware.Field) {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	a.logger.Log(context.Background(), level, msg, args...)
}

func (a slogAdapter) Debug(msg string, fields ...middleware.Field) { a.log(slog.LevelDebug, msg, fields) }
func (a slogAdapter) Info(msg string, fields ...middleware.Field)  { a.log(slog.LevelInfo, msg, fields) }
func (a slogAdapter) Warn(msg string, fields ...middleware.Field)  { a.log(slog.LevelWarn, msg, fields) }
func (a slogAdapter) Error(msg string, fields ...middleware.Field) { a.log(slog.LevelError, msg, fields) }
