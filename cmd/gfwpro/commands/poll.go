package commands

import (
	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/bootstrap"
)

func newPollCommand(g *globalFlags) *cobra.Command {
	var (
		listID     string
		noDownload bool
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll an existing list until the analysis finishes, then download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig(cmd)
			app, err := openApp(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			defer app.Close()

			report, err := app.Runner.Resume(cmd.Context(), listID, cfg.Analysis, bootstrap.PollOptions(cfg), noDownload)
			printReport(cmd.OutOrStdout(), report)
			return reportError(report, err)
		},
	}
	cmd.Flags().StringVar(&listID, "list-id", "", "list to poll")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "stop once the analysis completes")
	_ = cmd.MarkFlagRequired("list-id")
	return cmd
}
