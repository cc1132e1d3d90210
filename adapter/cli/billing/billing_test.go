package billing

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	appContainer "github.com/felixgeelhaar/tutorhub/internal/app"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/felixgeelhaar/tutorhub/pkg/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags() {
	statusUser = ""
	transitionUser = ""
	transitionStatus = ""
	transitionEndDate = ""
	transitionPlan = ""
	transitionCycle = ""
	transitionCustomer = ""
	transitionSubscription = ""
	transitionEmail = ""
	transitionReason = ""
	auditUser = ""
	auditLimit = 20
	importFile = ""
	importLegacy = false
	importLegacyURL = ""
	webhookEventPath = ""
	sweepJob = "all"
}

// setupApp wires the CLI against a local SQLite container.
func setupApp(t *testing.T) *cli.App {
	t.Helper()
	resetFlags()

	cfg := &config.Config{
		AppEnv:          "test",
		LocalMode:       true,
		DatabaseDriver:  "sqlite",
		SQLitePath:      filepath.Join(t.TempDir(), "billing.db"),
		WebhookDedupTTL: time.Hour,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	container, err := appContainer.NewLocalContainer(context.Background(), cfg, logger)
	require.NoError(t, err)

	app := cli.NewApp(
		container.TransitionHandler,
		container.Importer,
		container.BillingService,
		container.Maintenance,
		container.WebhookProcessor,
	)
	app.SetCurrentUserID(uuid.New())
	app.SetAfterCommand(container.DrainOutbox)
	cli.SetApp(app)

	t.Cleanup(func() {
		cli.SetApp(nil)
		container.Close()
	})
	return app
}

func run(cmd *cobra.Command) (string, error) {
	var output strings.Builder
	cmd.SetContext(context.Background())
	cmd.SetOut(&output)
	err := cmd.RunE(cmd, []string{})
	return output.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// Test status command
func TestStatusCmd_NoApp(t *testing.T) {
	resetFlags()
	cli.SetApp(nil)

	output, err := run(statusCmd)
	assert.NoError(t, err)
	assert.Contains(t, output, "requires database connection")
}

func TestStatusCmd_NoSubscription(t *testing.T) {
	setupApp(t)

	output, err := run(statusCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "No subscription found.")
}

func TestStatusCmd_InvalidUser(t *testing.T) {
	setupApp(t)
	statusUser = "not-a-uuid"

	_, err := run(statusCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid user id")
}

// Test transition command
func TestTransitionCmd_NoApp(t *testing.T) {
	resetFlags()
	cli.SetApp(nil)
	transitionStatus = "active"

	_, err := run(transitionCmd)
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestTransitionCmd_AppliesAndShowsStatus(t *testing.T) {
	setupApp(t)
	transitionStatus = "Active"
	transitionEndDate = "2099-01-31"
	transitionPlan = "pro"
	transitionCycle = "monthly"
	transitionCustomer = "cus_1"

	output, err := run(transitionCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Transition applied: none -> active")
	assert.Contains(t, output, "End date: - -> 2099-01-31T00:00:00Z")

	output, err = run(statusCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Subscription: pro (active)")
	assert.Contains(t, output, "Ends: 2099-01-31T00:00:00Z")
	assert.Contains(t, output, "Billing cycle: monthly")
	assert.Contains(t, output, "Dodo customer: cus_1")
	assert.Contains(t, output, "Access: yes")
	assert.Contains(t, output, "Allowed transitions: active, on_hold, payment_failed, cancelled, expired")
}

func TestTransitionCmd_RepeatIsSkipped(t *testing.T) {
	setupApp(t)
	transitionStatus = "active"
	transitionEndDate = "2099-01-31"

	_, err := run(transitionCmd)
	require.NoError(t, err)

	output, err := run(transitionCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Transition skipped: already active (idempotent)")
}

func TestTransitionCmd_Rejected(t *testing.T) {
	setupApp(t)
	transitionStatus = "expired"

	output, err := run(transitionCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transition rejected")
	assert.Contains(t, output, "Transition rejected")
	assert.Contains(t, output, "Allowed from none: pending, trialing, active")

	auditOutput, err := run(auditCmd)
	require.NoError(t, err)
	assert.Contains(t, auditOutput, "rejected_transition")
}

func TestTransitionCmd_InvalidInput(t *testing.T) {
	setupApp(t)

	transitionStatus = "active"
	transitionEndDate = "31/01/2099"
	_, err := run(transitionCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")

	transitionEndDate = ""
	transitionStatus = "paused"
	_, err = run(transitionCmd)
	assert.Error(t, err)
}

// Test audit command
func TestAuditCmd_NoEntries(t *testing.T) {
	setupApp(t)

	output, err := run(auditCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "No audit entries found.")
}

func TestAuditCmd_ListsNewestFirst(t *testing.T) {
	setupApp(t)

	transitionStatus = "trialing"
	transitionEndDate = "2099-01-01"
	_, err := run(transitionCmd)
	require.NoError(t, err)

	transitionStatus = "active"
	transitionEndDate = "2099-02-01"
	transitionReason = "upgraded by support"
	_, err = run(transitionCmd)
	require.NoError(t, err)

	output, err := run(auditCmd)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ACTION")
	assert.Contains(t, lines[1], "trialing")
	assert.Contains(t, lines[1], "active")
	assert.Contains(t, lines[1], "admin_cli")
	assert.Contains(t, lines[2], "none")
}

// Test import command
func TestImportCmd_RequiresSource(t *testing.T) {
	setupApp(t)

	_, err := run(importCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --file or --legacy is required")

	importLegacy = true
	_, err = run(importCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy database URL is not configured")
}

func TestImportCmd_File(t *testing.T) {
	app := setupApp(t)
	existing := app.CurrentUserID

	transitionStatus = "active"
	_, err := run(transitionCmd)
	require.NoError(t, err)

	fresh := uuid.New()
	importFile = writeFile(t, "subscriptions.json", `[
		{"user_id": "`+fresh.String()+`", "status": "canceled", "plan": "pro", "end_date": "2099-07-01T00:00:00Z"},
		{"user_id": "`+existing.String()+`", "status": "expired"}
	]`)

	output, err := run(importCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Imported from file:subscriptions.json: total=2 created=1 skipped=1 failed=0")

	statusUser = fresh.String()
	output, err = run(statusCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "pro (cancelled)")
}

// Test webhook command
func TestWebhookCmd_MissingEventPath(t *testing.T) {
	resetFlags()

	_, err := run(webhookCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event path is required")
}

func TestWebhookCmd_NonexistentFile(t *testing.T) {
	resetFlags()
	webhookEventPath = "/nonexistent/path/to/event.json"

	_, err := run(webhookCmd)
	assert.Error(t, err)
}

func TestWebhookCmd_InvalidJSON(t *testing.T) {
	resetFlags()
	webhookEventPath = writeFile(t, "invalid.json", "not valid json")

	_, err := run(webhookCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid webhook payload")
}

func TestWebhookCmd_MissingType(t *testing.T) {
	resetFlags()
	webhookEventPath = writeFile(t, "event.json", `{"id": "evt_1", "data": {}}`)

	_, err := run(webhookCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")
}

func TestWebhookCmd_NoApp(t *testing.T) {
	resetFlags()
	cli.SetApp(nil)
	webhookEventPath = writeFile(t, "event.json", `{"id": "evt_1", "type": "subscription.active"}`)

	_, err := run(webhookCmd)
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestWebhookCmd_AppliesOnceThenDeduplicates(t *testing.T) {
	app := setupApp(t)
	webhookEventPath = writeFile(t, "event.json", `{
		"id": "evt_cli_1",
		"type": "subscription.active",
		"timestamp": "2024-06-15T12:00:00Z",
		"data": {
			"subscription_id": "sub_1",
			"product_id": "prod_pro",
			"customer": {"customer_id": "cus_1", "email": "student@example.com"},
			"metadata": {"user_id": "`+app.CurrentUserID.String()+`"},
			"next_billing_date": "2099-07-15T12:00:00Z",
			"payment_frequency_interval": "Month"
		}
	}`)

	output, err := run(webhookCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Received billing webhook event: subscription.active (evt_cli_1)")
	assert.Contains(t, output, "Transition applied: none -> active")

	output, err = run(webhookCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "Event evt_cli_1 already processed.")
}

func TestWebhookCmd_UnresolvedUser(t *testing.T) {
	setupApp(t)
	webhookEventPath = writeFile(t, "event.json", `{
		"id": "evt_cli_2",
		"type": "subscription.on_hold",
		"data": {"customer": {"customer_id": "cus_unknown"}}
	}`)

	_, err := run(webhookCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not resolve to a user")
}

// Test sweep command
func TestSweepCmd_ExpiresLapsedTrial(t *testing.T) {
	setupApp(t)
	transitionStatus = "trialing"
	transitionEndDate = time.Now().Add(-48 * time.Hour).UTC().Format("2006-01-02")
	_, err := run(transitionCmd)
	require.NoError(t, err)

	output, err := run(sweepCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "trial_expiry: checked=1 expired=1 skipped=0 failed=0")
	assert.Contains(t, output, "grace_expiry: checked=0 expired=0 skipped=0 failed=0")

	output, err = run(statusCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "(expired)")
	assert.Contains(t, output, "Access: no")
}

func TestSweepCmd_SingleJob(t *testing.T) {
	setupApp(t)
	sweepJob = "grace_expiry"

	output, err := run(sweepCmd)
	require.NoError(t, err)
	assert.Contains(t, output, "grace_expiry")
	assert.NotContains(t, output, "trial_expiry")
}

func TestSweepCmd_UnknownJob(t *testing.T) {
	setupApp(t)
	sweepJob = "nightly"

	_, err := run(sweepCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

// Test command configuration
func TestCmdConfiguration(t *testing.T) {
	assert.Equal(t, "billing", Cmd.Use)

	subCmds := Cmd.Commands()
	cmdNames := make([]string, len(subCmds))
	for i, cmd := range subCmds {
		cmdNames[i] = cmd.Use
	}

	for _, name := range []string{"status", "transition", "audit", "import", "webhook", "sweep"} {
		assert.Contains(t, cmdNames, name)
	}
}

func TestCmdFlags(t *testing.T) {
	assert.NotNil(t, transitionCmd.Flags().Lookup("status"))
	assert.NotNil(t, transitionCmd.Flags().Lookup("end-date"))
	assert.NotNil(t, auditCmd.Flags().Lookup("limit"))
	assert.NotNil(t, importCmd.Flags().Lookup("legacy-url"))
	assert.NotNil(t, webhookCmd.Flags().Lookup("event"))
	assert.NotNil(t, sweepCmd.Flags().Lookup("job"))
}

func TestAllowedList(t *testing.T) {
	assert.Equal(t, "active, cancelled, expired", allowedList(domain.SubscriptionOnHold))
	assert.Equal(t, "-", allowedList(domain.SubscriptionStatus("bogus")))
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDate("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDate("2024-06-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC), *got)
	assert.Equal(t, time.UTC, got.Location())
}
