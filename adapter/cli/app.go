package cli

import (
	"context"

	billingApp "github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/webhooks"
	"github.com/google/uuid"
)

// App holds the CLI application dependencies.
type App struct {
	// Billing Command Handlers
	TransitionHandler *commands.TransitionSubscriptionHandler
	Importer          *commands.Importer

	// Billing Services
	BillingService   *billingApp.Service
	Maintenance      *billingApp.MaintenanceService
	WebhookProcessor *webhooks.Processor

	// LegacyDatabaseURL is the default source for `billing import --legacy`.
	LegacyDatabaseURL string

	// AfterCommand runs once a mutating command succeeds.
	AfterCommand func(ctx context.Context) error

	// Current user (configured per environment)
	CurrentUserID uuid.UUID
}

// NewApp creates a new CLI application with the provided handlers.
func NewApp(
	transitionHandler *commands.TransitionSubscriptionHandler,
	importer *commands.Importer,
	billingService *billingApp.Service,
	maintenance *billingApp.MaintenanceService,
	webhookProcessor *webhooks.Processor,
) *App {
	return &App{
		TransitionHandler: transitionHandler,
		Importer:          importer,
		BillingService:    billingService,
		Maintenance:       maintenance,
		WebhookProcessor:  webhookProcessor,
		CurrentUserID:     uuid.Nil,
	}
}

// SetCurrentUserID updates the current user ID.
func (a *App) SetCurrentUserID(id uuid.UUID) {
	a.CurrentUserID = id
}

// SetLegacyDatabaseURL updates the default legacy import source.
func (a *App) SetLegacyDatabaseURL(url string) {
	a.LegacyDatabaseURL = url
}

// SetAfterCommand registers the hook run after mutating commands.
func (a *App) SetAfterCommand(fn func(ctx context.Context) error) {
	a.AfterCommand = fn
}

// Finish runs the after-command hook, if any.
func (a *App) Finish(ctx context.Context) error {
	if a == nil || a.AfterCommand == nil {
		return nil
	}
	return a.AfterCommand(ctx)
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
