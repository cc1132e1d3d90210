package billing

import (
	"fmt"
	"text/tabwriter"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/spf13/cobra"
)

var (
	auditUser  string
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List subscription audit entries",
	Long: `List a user's audit entries, newest first.

Examples:
  tutorhub billing audit
  tutorhub billing audit --user <id> --limit 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.BillingService == nil {
			return errNoDatabase
		}

		userID, err := resolveUserID(app, auditUser)
		if err != nil {
			return err
		}

		entries, err := app.BillingService.ListAuditLog(cmd.Context(), userID, auditLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No audit entries found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tFROM\tTO\tEND DATE\tSOURCE")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				entry.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
				entry.Action,
				entry.OldStatus,
				entry.NewStatus,
				formatDate(entry.NewEndDate),
				entry.Source,
			)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditUser, "user", "", "user id (defaults to the configured user)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum entries to show")
}
