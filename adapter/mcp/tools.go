package mcp

import (
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/pkg/observability"
)

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App     *cli.App
	Logger  *slog.Logger
	Metrics observability.Metrics
}

func (d ToolDependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d ToolDependencies) metrics() observability.Metrics {
	if d.Metrics == nil {
		return observability.NoopMetrics{}
	}
	return d.Metrics
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	return registerBillingTools(srv, deps)
}
