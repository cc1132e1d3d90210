package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/tutorhub/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

var webhookEventPath string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Replay a payment provider webhook payload",
	Long: `Map a stored webhook event to a transition and apply it. Events are
deduplicated by id, so replaying the same file twice changes nothing.

Examples:
  tutorhub billing webhook --event ./event.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}

		payload, err := security.ReadInputFile(webhookEventPath, 0)
		if err != nil {
			return err
		}

		event, err := webhooks.ParseEvent(payload)
		if err != nil {
			return fmt.Errorf("invalid webhook payload: %w", err)
		}

		app := cli.GetApp()
		if app == nil || app.WebhookProcessor == nil {
			return errNoDatabase
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Received billing webhook event: %s (%s)\n", event.Type, event.ID)

		result, err := app.WebhookProcessor.Process(cmd.Context(), event)
		if errors.Is(err, webhooks.ErrDuplicateEvent) {
			fmt.Fprintf(out, "Event %s already processed.\n", event.ID)
			return nil
		}
		if err != nil {
			return err
		}
		if err := printResult(out, result); err != nil {
			return err
		}
		return app.Finish(cmd.Context())
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to webhook event JSON")
}
