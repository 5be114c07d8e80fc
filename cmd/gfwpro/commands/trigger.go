package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/gfw"
	"gfwpro-workflow/internal/workflow"
)

func newTriggerCommand(g *globalFlags) *cobra.Command {
	var (
		listID string
		email  string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Re-trigger the analysis on an existing list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig(cmd)
			if email != "" {
				cfg.UserEmail = email
			}
			app, err := openApp(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			defer app.Close()

			payload := gfw.BuildTriggerPayload(cfg.Analysis, bootstrap.PayloadSettings(cfg))
			report, err := app.Runner.Retrigger(cmd.Context(), listID, cfg.Analysis, payload)
			if err != nil || report.Outcome.Kind == workflow.OutcomePartial {
				printReport(cmd.OutOrStdout(), report)
				return reportError(report, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered %s on list %s\n", cfg.Analysis, listID)
			if !wait {
				return nil
			}

			report, err = app.Runner.Resume(cmd.Context(), listID, cfg.Analysis, bootstrap.PollOptions(cfg), false)
			printReport(cmd.OutOrStdout(), report)
			return reportError(report, err)
		},
	}
	cmd.Flags().StringVar(&listID, "list-id", "", "list to trigger")
	cmd.Flags().StringVar(&email, "email", "", "user email; defaults to USER_EMAIL")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll and download after triggering")
	_ = cmd.MarkFlagRequired("list-id")
	return cmd
}
