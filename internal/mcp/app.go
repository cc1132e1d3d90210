package mcp

import (
	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/internal/app"
	"github.com/google/uuid"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container, currentUser uuid.UUID) *cli.App {
	cliApp := cli.NewApp(
		container.TransitionHandler,
		container.Importer,
		container.BillingService,
		container.Maintenance,
		container.WebhookProcessor,
	)

	cliApp.SetCurrentUserID(currentUser)

	if container.Config != nil {
		cliApp.SetLegacyDatabaseURL(container.Config.LegacyDatabaseURL)
	}
	if container.IsLocal() {
		cliApp.SetAfterCommand(container.DrainOutbox)
	}

	return cliApp
}
