package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forensiq/filescope/internal/report"
	"github.com/forensiq/filescope/internal/store"
)

const defaultSessionLimit = 10

// NewSessionsCommand creates the sessions listing command.
func NewSessionsCommand(factory AppFactory) *cobra.Command {
	var limit int

	cobraCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent analysis sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, appErr := factory()
			if appErr != nil {
				return appErr
			}
			defer func() { _ = app.Close() }()

			sessions, listErr := app.Manager.RecentSessions(cmd.Context(), limit)
			if listErr != nil {
				return listErr
			}

			report.RenderSessions(cmd.OutOrStdout(), sessions)

			return nil
		},
	}

	cobraCmd.Flags().IntVarP(&limit, "limit", "n", defaultSessionLimit, "maximum sessions to list")

	return cobraCmd
}

// NewDetailsCommand creates the per-session details command.
func NewDetailsCommand(factory AppFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "details <session-id>",
		Short: "Show one session with its statistics and failed files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, appErr := factory()
			if appErr != nil {
				return appErr
			}
			defer func() { _ = app.Close() }()

			ctx := cmd.Context()
			sessionID := args[0]

			session, sessionErr := app.Manager.Session(ctx, sessionID)
			if sessionErr != nil {
				return sessionErr
			}

			stats, statsErr := app.Manager.Statistics(ctx, sessionID)
			if statsErr != nil {
				return statsErr
			}

			out := cmd.OutOrStdout()
			report.RenderSessionDetails(out, session, stats)

			results, resultsErr := app.Manager.Results(ctx, store.ResultFilter{SessionID: sessionID})
			if resultsErr != nil {
				return resultsErr
			}

			report.RenderFailedResults(out, results)

			return nil
		},
	}
}

// NewCleanupCommand creates the retention sweep command.
func NewCleanupCommand(factory AppFactory) *cobra.Command {
	var days int

	cobraCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, appErr := factory()
			if appErr != nil {
				return appErr
			}
			defer func() { _ = app.Close() }()

			removed, cleanupErr := app.Manager.Cleanup(cmd.Context(), days)
			if cleanupErr != nil {
				return cleanupErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions older than %d days\n", removed, days)

			return nil
		},
	}

	cobraCmd.Flags().IntVar(&days, "days", 30, "delete sessions older than this many days")

	return cobraCmd
}
