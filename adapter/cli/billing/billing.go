package billing

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/tutorhub/adapter/cli"
	"github.com/felixgeelhaar/tutorhub/internal/billing/application/commands"
	"github.com/felixgeelhaar/tutorhub/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Administer learner subscriptions",
	Long:  `Inspect subscriptions and their audit trail, apply admin transitions, replay webhooks, import legacy records and run expiry sweeps.`,
}

var errNoDatabase = errors.New("billing commands require database connection")

func init() {
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(transitionCmd)
	Cmd.AddCommand(auditCmd)
	Cmd.AddCommand(importCmd)
	Cmd.AddCommand(webhookCmd)
	Cmd.AddCommand(sweepCmd)
}

// resolveUserID parses raw, falling back to the configured current user.
func resolveUserID(app *cli.App, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if app.CurrentUserID == uuid.Nil {
			return uuid.Nil, errors.New("user is required (--user or TUTORHUB_USER_ID)")
		}
		return app.CurrentUserID, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates (midnight UTC).
// An empty string yields nil.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD or RFC 3339)", raw)
}

func allowedList(from domain.SubscriptionStatus) string {
	targets := from.AllowedTransitions()
	if len(targets) == 0 {
		return "-"
	}
	names := make([]string, len(targets))
	for i, target := range targets {
		names[i] = target.String()
	}
	return strings.Join(names, ", ")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// printResult renders a transition result and returns an error for rejections
// so the process exits non-zero.
func printResult(out io.Writer, result *commands.TransitionResult) error {
	switch result.Outcome() {
	case "applied":
		fmt.Fprintf(out, "Transition applied: %s -> %s\n", domain.StatusOrNone(result.OldStatus), result.NewStatus)
		fmt.Fprintf(out, "End date: %s -> %s\n", formatDate(result.OldEndDate), formatDate(result.NewEndDate))
	case "skipped":
		fmt.Fprintf(out, "Transition skipped: already %s (%s)\n", result.NewStatus, result.Reason)
	default:
		from := domain.StatusOrNone(result.OldStatus)
		fmt.Fprintf(out, "Transition rejected: %s\n", result.Error)
		fmt.Fprintf(out, "Allowed from %s: %s\n", from, allowedList(from))
		return fmt.Errorf("transition rejected: %s", result.Error)
	}
	return nil
}
