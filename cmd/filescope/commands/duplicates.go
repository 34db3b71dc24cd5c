package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forensiq/filescope/internal/hashing"
	"github.com/forensiq/filescope/internal/report"
)

// NewDuplicatesCommand creates the duplicate detection command.
func NewDuplicatesCommand(factory AppFactory) *cobra.Command {
	var (
		sessionID string
		algorithm string
	)

	cobraCmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find files sharing a digest",
		Long: `Duplicates groups files whose stored digests match. With --session the
search covers one session's results; without it the cross-session hash
catalog is searched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, appErr := factory()
			if appErr != nil {
				return appErr
			}
			defer func() { _ = app.Close() }()

			groups, findErr := app.Manager.Duplicates(cmd.Context(), algorithm, sessionID)
			if findErr != nil {
				return findErr
			}

			report.RenderDuplicates(cmd.OutOrStdout(), groups)

			return nil
		},
	}

	cobraCmd.Flags().StringVarP(&sessionID, "session", "s", "", "restrict to one session's results")
	cobraCmd.Flags().StringVarP(&algorithm, "algorithm", "a", "sha256", "digest algorithm to group by")

	return cobraCmd
}

// NewFormatsCommand creates the capability listing command.
func NewFormatsCommand(factory AppFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List registered analyzers, their extensions, and hash algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, appErr := factory()
			if appErr != nil {
				return appErr
			}
			defer func() { _ = app.Close() }()

			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Analyzers:")

			for _, analyzer := range app.Manager.Registry().All() {
				fmt.Fprintf(out, "  %-10s %s\n", analyzer.Name(), strings.Join(analyzer.Extensions(), " "))
			}

			fmt.Fprintf(out, "\nHash algorithms: %s\n", strings.Join(hashing.Supported(), ", "))
			fmt.Fprintf(out, "Report formats:  %s\n", strings.Join(report.Formats(), ", "))

			return nil
		},
	}
}
