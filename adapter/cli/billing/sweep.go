package billing

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	billingApp "github.com/felixgeelhaar/tutorhub/internal/billing/application"
	"github.com/spf13/cobra"
)

var sweepJob string

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed trials and grace periods now",
	Long: `Run the maintenance sweeps once instead of waiting for the worker.

Examples:
  tutorhub billing sweep
  tutorhub billing sweep --job trial_expiry`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Maintenance == nil {
			return errNoDatabase
		}
		ctx := cmd.Context()
		now := time.Now()

		jobs := map[string]func() (billingApp.SweepResult, error){
			billingApp.JobTrialExpiry: func() (billingApp.SweepResult, error) { return app.Maintenance.ExpireTrials(ctx, now) },
			billingApp.JobGraceExpiry: func() (billingApp.SweepResult, error) { return app.Maintenance.ExpireLapsed(ctx, now) },
		}

		var order []string
		switch sweepJob {
		case "", "all":
			order = []string{billingApp.JobTrialExpiry, billingApp.JobGraceExpiry}
		case billingApp.JobTrialExpiry, billingApp.JobGraceExpiry:
			order = []string{sweepJob}
		default:
			return fmt.Errorf("unknown job %q (all, %s, %s)", sweepJob, billingApp.JobTrialExpiry, billingApp.JobGraceExpiry)
		}

		for _, job := range order {
			result, err := jobs[job]()
			if err != nil {
				return fmt.Errorf("%s: %w", job, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: checked=%d expired=%d skipped=%d failed=%d\n",
				job, result.Checked, result.Expired, result.Skipped, result.Failed)
		}
		return app.Finish(ctx)
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepJob, "job", "all", "sweep to run: all, trial_expiry or grace_expiry")
}
