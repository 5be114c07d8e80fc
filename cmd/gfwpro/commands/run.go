package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/workflow"
)

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		csvPath    string
		commodity  string
		email      string
		noDownload bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload a CSV, create a list, trigger the analysis, poll and download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig(cmd)
			if csvPath != "" {
				cfg.CSVPath = csvPath
			}
			if commodity != "" {
				cfg.Commodity = commodity
			}
			if email != "" {
				cfg.UserEmail = email
			}
			if strings.TrimSpace(cfg.CSVPath) == "" {
				return &exitError{code: ExitFailure, err: fmt.Errorf("no CSV given: pass --csv or set CSV_PATH")}
			}
			data, err := os.ReadFile(cfg.CSVPath)
			if err != nil {
				return &exitError{code: ExitFailure, err: fmt.Errorf("read csv: %w", err)}
			}

			app, err := openApp(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			defer app.Close()

			report, err := app.Runner.Execute(cmd.Context(), workflow.RunRequest{
				RequestID:      uuid.NewString(),
				UserEmail:      cfg.UserEmail,
				CSV:            data,
				Commodity:      cfg.Commodity,
				AnalysisID:     cfg.Analysis,
				ListNamePrefix: cfg.ListNamePrefix,
				Payload:        gfw.BuildTriggerPayload(cfg.Analysis, bootstrap.PayloadSettings(cfg)),
				Poll:           bootstrap.PollOptions(cfg),
				SkipDownload:   noDownload,
			})
			printReport(cmd.OutOrStdout(), report)
			return reportError(report, err)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to upload; defaults to CSV_PATH")
	cmd.Flags().StringVar(&commodity, "commodity", "", "commodity name; defaults to COMMODITY")
	cmd.Flags().StringVar(&email, "email", "", "user email; defaults to USER_EMAIL")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "stop once the analysis completes")
	return cmd
}
