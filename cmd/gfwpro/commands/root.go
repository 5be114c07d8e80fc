package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/storage/db"
	"gfwpro-workflow/internal/shared/telemetry"
	"gfwpro-workflow/internal/workflow"
)

var buildApp = bootstrap.Build

type globalFlags struct {
	analysis    string
	listPrefix  string
	heavy       bool
	interval    time.Duration
	maxAttempts int
	outputDir   string
}

// NewRootCmd creates the gfwpro command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "gfwpro",
		Short:         "Upload a CSV to GFW Pro, run an analysis and download the result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.analysis, "analysis", "a", "", "analysis id (Alerts, GHG, FCD); defaults to ANALYSIS")
	pf.StringVar(&g.listPrefix, "list-prefix", "", "list name prefix; defaults to LIST_NAME_PREFIX")
	pf.BoolVar(&g.heavy, "heavy", false, "poll every 60s for up to 60 attempts")
	pf.DurationVar(&g.interval, "interval", 0, "poll interval; overrides POLL_INTERVAL")
	pf.IntVar(&g.maxAttempts, "max-attempts", 0, "maximum status requests; overrides POLL_MAX_ATTEMPTS")
	pf.StringVarP(&g.outputDir, "output-dir", "o", "", "directory for downloaded archives; overrides OUTPUT_DIR")

	rootCmd.AddCommand(
		newRunCommand(g),
		newTriggerCommand(g),
		newPollCommand(g),
		newFetchCommand(g),
		newEnqueueCommand(g),
	)
	return rootCmd
}

// loadConfig reads configuration and applies flag overrides.
func (g *globalFlags) loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	telemetry.SetOutput(cmd.ErrOrStderr())
	telemetry.Configure(cfg.LogLevel, cfg.LogFormat)

	flags := cmd.Flags()
	if g.analysis != "" {
		cfg.Analysis = g.analysis
	}
	cfg.Analysis = gfw.CanonicalAnalysisID(cfg.Analysis)
	if g.listPrefix != "" {
		cfg.ListNamePrefix = g.listPrefix
	}
	if g.heavy {
		cfg.PollInterval = config.HeavyPollInterval
		cfg.PollMaxAttempts = config.HeavyPollMaxAttempts
	}
	if flags.Changed("interval") {
		cfg.PollInterval = g.interval
	}
	if flags.Changed("max-attempts") {
		cfg.PollMaxAttempts = g.maxAttempts
	}
	if g.outputDir != "" {
		cfg.OutputDir = g.outputDir
	}
	return cfg
}

// openApp builds the runner and wires status output to w.
func openApp(ctx context.Context, cfg config.Config, w io.Writer) (*bootstrap.App, error) {
	app, err := buildApp(ctx, cfg, bootstrap.Options{RequireAPI: true, DBOptions: db.DefaultCLIOptions()})
	if err != nil {
		return nil, err
	}
	app.Runner.Pipeline.OnStep = func(step gfw.Step, progress workflow.Outcome) {
		switch step {
		case gfw.StepCreateList:
			fmt.Fprintf(w, "list created: %s (%s)\n", progress.Job.ListID, progress.ListName)
		default:
			fmt.Fprintf(w, "%s ok\n", step)
		}
	}
	app.Runner.OnStatus = func(ev workflow.StatusEvent) {
		fmt.Fprintf(w, "[attempt %d] status: %s\n", ev.Attempt, ev.Snapshot.Status)
	}
	return app, nil
}

// printReport writes the final summary line for a run.
func printReport(w io.Writer, report workflow.Report) {
	run := report.Run
	switch {
	case report.Outcome.Kind == workflow.OutcomePartial:
		fmt.Fprintf(w, "list %s was created but the %s analysis was not triggered: %v\n", run.ListID, run.AnalysisID, report.Outcome.Err)
		fmt.Fprintf(w, "retry with: gfwpro trigger --list-id %s --analysis %s\n", run.ListID, run.AnalysisID)
	case report.Artifact != nil:
		fmt.Fprintf(w, "saved %s (%d bytes)\n", report.Artifact.Location, report.Artifact.Size)
	case run.Status != "":
		fmt.Fprintf(w, "list %s analysis %s: %s\n", run.ListID, run.AnalysisID, run.Status)
	}
}
