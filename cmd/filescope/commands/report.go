package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forensiq/filescope/internal/report"
	"github.com/forensiq/filescope/internal/store"
)

// NewReportCommand creates the report regeneration command. Any supported
// format can be produced again from stored session data.
func NewReportCommand(factory AppFactory) *cobra.Command {
	var (
		format    string
		outputDir string
	)

	cobraCmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Regenerate a report from stored session data",
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

			results, resultsErr := app.Manager.Results(ctx, store.ResultFilter{SessionID: sessionID})
			if resultsErr != nil {
				return resultsErr
			}

			dir := outputDir
			if dir == "" {
				dir = app.Config.Report.OutputDir
			}

			path, writeErr := report.WriteFile(dir, format, report.Data{
				GeneratedAt: time.Now().UTC(),
				Session:     session,
				Statistics:  stats,
				Results:     results,
			})
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Report written: %s\n", path)

			return nil
		},
	}

	cobraCmd.Flags().StringVarP(&format, "format", "f", report.FormatJSON, "report format")
	cobraCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default from config)")

	return cobraCmd
}
