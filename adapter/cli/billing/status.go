package billing

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show subscription status",
	Long: `Show the subscription of a user.

Examples:
  tutorhub billing status
  tutorhub billing status --user 8f2a2f52-7c1e-4a53-9b3e-1d8c7f8a4b21`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Billing status requires database connection.")
			return nil
		}

		userID, err := resolveUserID(app, statusUser)
		if err != nil {
			return err
		}

		subscription, err := app.BillingService.GetSubscription(cmd.Context(), userID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if subscription == nil {
			fmt.Fprintln(out, "No subscription found.")
			return nil
		}

		statusLine := string(subscription.Status)
		if subscription.Plan != "" {
			statusLine = fmt.Sprintf("%s (%s)", subscription.Plan, statusLine)
		}

		fmt.Fprintf(out, "Subscription: %s\n", statusLine)
		if subscription.EndDate != nil {
			fmt.Fprintf(out, "Ends: %s\n", formatDate(subscription.EndDate))
		}
		if subscription.BillingCycle != "" {
			fmt.Fprintf(out, "Billing cycle: %s\n", subscription.BillingCycle)
		}
		if subscription.TrialEndsAt != nil {
			fmt.Fprintf(out, "Trial ends: %s\n", formatDate(subscription.TrialEndsAt))
		}
		if subscription.TrialGraceEndsAt != nil {
			fmt.Fprintf(out, "Trial grace ends: %s\n", formatDate(subscription.TrialGraceEndsAt))
		}
		if subscription.DodoCustomerID != "" {
			fmt.Fprintf(out, "Dodo customer: %s\n", subscription.DodoCustomerID)
		}
		if subscription.DodoSubscriptionID != "" {
			fmt.Fprintf(out, "Dodo subscription: %s\n", subscription.DodoSubscriptionID)
		}

		access := "no"
		if subscription.HasAccess(time.Now()) {
			access = "yes"
		}
		fmt.Fprintf(out, "Access: %s\n", access)
		fmt.Fprintf(out, "Allowed transitions: %s\n", allowedList(subscription.Status))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id (defaults to the configured user)")
}
