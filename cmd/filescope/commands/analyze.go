package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"

	"github.com/forensiq/filescope/internal/manager"
	"github.com/forensiq/filescope/internal/report"
	"github.com/forensiq/filescope/internal/store"
)

// progressPollInterval is how often the live tracker samples session
// progress.
const progressPollInterval = 500 * time.Millisecond

// AnalyzeCommand holds the configuration for the analyze command.
type AnalyzeCommand struct {
	factory AppFactory

	sessionID string
	outputDir string
	formats   []string
	maxFiles  int
	hashes    bool
	noHashes  bool
}

// NewAnalyzeCommand creates and configures the analyze command.
func NewAnalyzeCommand(factory AppFactory) *cobra.Command {
	ac := &AnalyzeCommand{factory: factory}

	cobraCmd := &cobra.Command{
		Use:   "analyze [directory]",
		Short: "Run an analysis session over a directory",
		Long: `Analyze walks a directory tree, runs the matching analyzer on every
candidate file, optionally computes cryptographic hashes, and persists all
results. Interrupting with Ctrl-C cancels cooperatively: in-flight files
finish and their results are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: ac.run,
	}

	cobraCmd.Flags().StringVar(&ac.sessionID, "session-id", "", "session identifier (default: random UUID)")
	cobraCmd.Flags().BoolVar(&ac.hashes, "hashes", false, "compute file hashes (overrides config)")
	cobraCmd.Flags().BoolVar(&ac.noHashes, "no-hashes", false, "skip file hashes (overrides config)")
	cobraCmd.Flags().IntVar(&ac.maxFiles, "max-files", 0, "cap the number of files this session processes (0 = config default)")
	cobraCmd.Flags().StringVarP(&ac.outputDir, "output", "o", "", "report output directory (default from config)")
	cobraCmd.Flags().StringSliceVarP(&ac.formats, "formats", "f", nil, "report formats to write, e.g. json,csv,html (default from config)")

	return cobraCmd
}

func (ac *AnalyzeCommand) run(cmd *cobra.Command, args []string) error {
	app, appErr := ac.factory()
	if appErr != nil {
		return appErr
	}
	defer func() { _ = app.Close() }()

	directory := "."
	if len(args) > 0 {
		directory = args[0]
	}

	absDirectory, absErr := filepath.Abs(directory)
	if absErr != nil {
		return fmt.Errorf("resolve directory: %w", absErr)
	}

	sessionID := ac.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	includeHashes := app.Config.Analysis.IncludeHashes
	if ac.hashes {
		includeHashes = true
	}

	if ac.noHashes {
		includeHashes = false
	}

	ctx := cmd.Context()

	task, startErr := app.Manager.Start(ctx, manager.StartRequest{
		SessionID:     sessionID,
		Directory:     absDirectory,
		IncludeHashes: includeHashes,
		MaxFiles:      ac.maxFiles,
	})
	if startErr != nil {
		return startErr
	}

	out := cmd.OutOrStdout()

	if !app.Quiet {
		fmt.Fprintf(out, "Session %s analyzing %s\n", sessionID, absDirectory)
	}

	stopSignals := watchInterrupts(app, sessionID, out)
	defer stopSignals()

	waitErr := ac.awaitSession(app, task, out)
	if waitErr != nil {
		return waitErr
	}

	return ac.summarize(ctx, app, sessionID, out)
}

// watchInterrupts cancels the session on the first SIGINT/SIGTERM. The
// returned stop function releases the signal handler.
func watchInterrupts(app *App, sessionID string, out io.Writer) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nInterrupt received, cancelling session...")
			app.Manager.Cancel(sessionID)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// awaitSession blocks until the session drains, rendering a live progress
// tracker unless quiet mode is on.
func (ac *AnalyzeCommand) awaitSession(app *App, task *manager.Task, out io.Writer) error {
	if app.Quiet {
		return task.Wait(context.Background())
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetUpdateFrequency(progressPollInterval)
	pw.SetTrackerLength(40)
	pw.Style().Visibility.ETA = true

	tracker := &progress.Tracker{
		Message: "Analyzing files",
		Units:   progress.UnitsDefault,
	}
	pw.AppendTracker(tracker)

	go pw.Render()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-task.Done():
			break poll
		case <-ticker.C:
			snap, active := app.Manager.Progress(task.SessionID())
			if !active {
				continue
			}

			tracker.UpdateTotal(int64(snap.TotalFiles))
			tracker.SetValue(int64(snap.ProcessedFiles))
		}
	}

	tracker.MarkAsDone()
	pw.Stop()

	// Let the final render frame flush before printing the summary.
	for pw.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}

	return task.Err()
}

// summarize prints the terminal state, the statistics table, any failed
// files, and writes the requested reports.
func (ac *AnalyzeCommand) summarize(ctx context.Context, app *App, sessionID string, out io.Writer) error {
	session, sessionErr := app.Manager.Session(ctx, sessionID)
	if sessionErr != nil {
		return sessionErr
	}

	stats, statsErr := app.Manager.Statistics(ctx, sessionID)
	if statsErr != nil {
		return statsErr
	}

	printStatus(out, session.Status)
	report.RenderSessionDetails(out, session, stats)

	results, resultsErr := app.Manager.Results(ctx, store.ResultFilter{SessionID: sessionID})
	if resultsErr != nil {
		return resultsErr
	}

	report.RenderFailedResults(out, results)

	return ac.writeReports(out, app, report.Data{
		GeneratedAt: time.Now().UTC(),
		Session:     session,
		Statistics:  stats,
		Results:     results,
	})
}

func printStatus(out io.Writer, status string) {
	switch status {
	case store.StatusCompleted:
		color.New(color.FgGreen).Fprintf(out, "Session %s\n", status)
	case store.StatusCancelled:
		color.New(color.FgYellow).Fprintf(out, "Session %s\n", status)
	default:
		color.New(color.FgRed).Fprintf(out, "Session %s\n", status)
	}
}

func (ac *AnalyzeCommand) writeReports(out io.Writer, app *App, data report.Data) error {
	formats := ac.formats
	if len(formats) == 0 {
		formats = app.Config.Report.Formats
	}

	outputDir := ac.outputDir
	if outputDir == "" {
		outputDir = app.Config.Report.OutputDir
	}

	for _, format := range formats {
		path, writeErr := report.WriteFile(outputDir, format, data)
		if writeErr != nil {
			return writeErr
		}

		fmt.Fprintf(out, "Report written: %s\n", path)
	}

	return nil
}
