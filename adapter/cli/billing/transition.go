package billing

import (
	"strings"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/spf13/cobra"
)

var (
	transitionUser         string
	transitionStatus       string
	transitionEndDate      string
	transitionPlan         string
	transitionCycle        string
	transitionCustomer     string
	transitionSubscription string
	transitionEmail        string
	transitionReason       string
)

var transitionCmd = &cobra.Command{
	Use:   "transition",
	Short: "Apply an admin status transition",
	Long: `Move a subscription to a new status through the state machine.
Disallowed transitions are recorded in the audit log and reported as rejected.

Examples:
  tutorhub billing transition --status active --end-date 2025-01-31 --plan pro
  tutorhub billing transition --user <id> --status cancelled --reason "refund requested"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.TransitionHandler == nil {
			return errNoDatabase
		}

		userID, err := resolveUserID(app, transitionUser)
		if err != nil {
			return err
		}
		endDate, err := parseDate(transitionEndDate)
		if err != nil {
			return err
		}

		command := commands.TransitionSubscriptionCommand{
			UserID:             userID,
			NewStatus:          strings.ToLower(strings.TrimSpace(transitionStatus)),
			EndDate:            endDate,
			Plan:               transitionPlan,
			BillingCycle:       transitionCycle,
			DodoCustomerID:     transitionCustomer,
			DodoSubscriptionID: transitionSubscription,
			Email:              transitionEmail,
			Source:             commands.SourceAdminCLI,
		}
		if reason := strings.TrimSpace(transitionReason); reason != "" {
			command.Metadata = map[string]any{"reason": reason}
		}

		result, err := app.TransitionHandler.Handle(cmd.Context(), command)
		if err != nil {
			return err
		}
		if err := printResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		return app.Finish(cmd.Context())
	},
}

func init() {
	transitionCmd.Flags().StringVar(&transitionUser, "user", "", "user id (defaults to the configured user)")
	transitionCmd.Flags().StringVar(&transitionStatus, "status", "", "target status")
	transitionCmd.Flags().StringVar(&transitionEndDate, "end-date", "", "end date (YYYY-MM-DD or RFC 3339)")
	transitionCmd.Flags().StringVar(&transitionPlan, "plan", "", "plan name")
	transitionCmd.Flags().StringVar(&transitionCycle, "cycle", "", "billing cycle")
	transitionCmd.Flags().StringVar(&transitionCustomer, "customer", "", "payment provider customer id")
	transitionCmd.Flags().StringVar(&transitionSubscription, "subscription", "", "payment provider subscription id")
	transitionCmd.Flags().StringVar(&transitionEmail, "email", "", "billing email")
	transitionCmd.Flags().StringVar(&transitionReason, "reason", "", "reason stored in the audit metadata")
	_ = transitionCmd.MarkFlagRequired("status")
}
