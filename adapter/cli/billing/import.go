package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/infrastructure/legacy"
	"github.com/spf13/cobra"
)

var (
	importFile      string
	importLegacy    bool
	importLegacyURL string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed subscriptions from a file or the legacy profiles table",
	Long: `Import subscriptions that do not exist yet. Records are written as-is and
audited with action "imported"; users that already have a subscription are skipped.

Examples:
  tutorhub billing import --file ./subscriptions.json
  tutorhub billing import --legacy
  tutorhub billing import --legacy-url postgres://localhost/legacy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Importer == nil {
			return errNoDatabase
		}
		ctx := cmd.Context()

		var source commands.ImportSource
		switch {
		case importFile != "":
			source = legacy.NewFileSource(importFile)
		case importLegacy || importLegacyURL != "":
			url := importLegacyURL
			if url == "" {
				url = app.LegacyDatabaseURL
			}
			if url == "" {
				return errors.New("legacy database URL is not configured (LEGACY_DATABASE_URL or --legacy-url)")
			}
			profiles, err := legacy.OpenPostgresProfileSource(ctx, url, cli.Logger())
			if err != nil {
				return err
			}
			defer profiles.Close()
			source = profiles
		default:
			return errors.New("either --file or --legacy is required")
		}

		summary, err := app.Importer.Import(ctx, source)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported from %s: total=%d created=%d skipped=%d failed=%d\n",
			source.Name(), summary.Total, summary.Created, summary.Skipped, summary.Failed)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "JSON file with an array of subscription records")
	importCmd.Flags().BoolVar(&importLegacy, "legacy", false, "read the legacy profiles table (LEGACY_DATABASE_URL)")
	importCmd.Flags().StringVar(&importLegacyURL, "legacy-url", "", "legacy PostgreSQL URL, overrides LEGACY_DATABASE_URL")
	importCmd.MarkFlagsMutuallyExclusive("file", "legacy")
	importCmd.MarkFlagsMutuallyExclusive("file", "legacy-url")
}
