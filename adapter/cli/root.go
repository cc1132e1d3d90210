package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/tutorhub/pkg/observability"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	logger  *slog.Logger
)

// commandRun is stored in the command context for the duration of a run.
type commandRun struct {
	startedAt time.Time
}

type commandRunKey struct{}

var rootCmd = &cobra.Command{
	Use:   "tutorhub",
	Short: "TutorHub - subscription administration",
	Long: `TutorHub administers learner subscriptions: it inspects status and
audit history, applies admin transitions, replays payment webhooks,
imports legacy records and runs expiry sweeps.`,
	SilenceUsage:      true,
	PersistentPreRun:  beginCommand,
	PersistentPostRun: endCommand,
}

// beginCommand gives every invocation its own correlation ID so the audit
// rows and log lines of one command can be tied together.
func beginCommand(cmd *cobra.Command, _ []string) {
	ctx := observability.NewRequestContext(cmd.Context(), uuid.NewString())
	ctx = context.WithValue(ctx, commandRunKey{}, commandRun{startedAt: time.Now()})
	cmd.SetContext(ctx)
	Logger().DebugContext(ctx, "command start", "command", cmd.CommandPath())
}

func endCommand(cmd *cobra.Command, _ []string) {
	run, ok := cmd.Context().Value(commandRunKey{}).(commandRun)
	if !ok {
		return
	}
	Logger().DebugContext(cmd.Context(), "command end",
		"command", cmd.CommandPath(),
		"duration_ms", time.Since(run.startedAt).Milliseconds(),
	)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// Verbose reports whether --verbose was passed.
func Verbose() bool {
	return verbose
}

// AddCommand adds a command to the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// SetLogger sets the CLI logger.
func SetLogger(l *slog.Logger) {
	logger = l
}

// Logger returns the CLI logger.
func Logger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
