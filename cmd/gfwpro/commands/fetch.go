package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/gfw"
)

func newFetchCommand(g *globalFlags) *cobra.Command {
	var (
		listID    string
		resultURL string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a result archive for a completed list",
		Long: "Download a result archive. Without --result-url the current status is " +
			"read once and its resultUrl is used; the analysis must be complete.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig(cmd)
			app, err := openApp(cmd.Context(), cfg, cmd.OutOrStdout())
			if err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			defer app.Close()

			fetcher := app.Runner.Fetcher
			if resultURL == "" {
				snap, err := app.Client.Status(cmd.Context(), listID, cfg.Analysis)
				if err != nil {
					return &exitError{code: ExitFailure, err: err}
				}
				artifact, err := fetcher.FetchSnapshot(cmd.Context(), snap, listID, cfg.Analysis)
				return finishFetch(cmd, artifact.Location, artifact.Size, err)
			}
			artifact, err := fetcher.Fetch(cmd.Context(), resultURL, listID, cfg.Analysis)
			return finishFetch(cmd, artifact.Location, artifact.Size, err)
		},
	}
	cmd.Flags().StringVar(&listID, "list-id", "", "list the result belongs to")
	cmd.Flags().StringVar(&resultURL, "result-url", "", "signed result URL; read from the status endpoint when empty")
	_ = cmd.MarkFlagRequired("list-id")
	return cmd
}

func finishFetch(cmd *cobra.Command, location string, size int64, err error) error {
	if err != nil {
		code := ExitFailure
		if errors.Is(err, gfw.ErrMissingResultURL) {
			code = ExitServerSide
		}
		return &exitError{code: code, err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", location, size)
	return nil
}
