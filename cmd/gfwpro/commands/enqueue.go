package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gfwpro-workflow/internal/bootstrap"
	"gfwpro-workflow/internal/queue"
	"gfwpro-workflow/internal/shared/storage/db"
	"gfwpro-workflow/internal/shared/storage/object"
	"gfwpro-workflow/internal/shared/util"
)

func newEnqueueCommand(g *globalFlags) *cobra.Command {
	var (
		csvPath   string
		commodity string
		email     string
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Stage a CSV and queue a run for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.loadConfig(cmd)
			if csvPath != "" {
				cfg.CSVPath = csvPath
			}
			data, err := os.ReadFile(cfg.CSVPath)
			if err != nil {
				return &exitError{code: ExitFailure, err: fmt.Errorf("read csv: %w", err)}
			}

			app, err := buildApp(cmd.Context(), cfg, bootstrap.Options{DBOptions: db.DefaultCLIOptions()})
			if err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			defer app.Close()
			if app.Queue == nil {
				return &exitError{code: ExitFailure, err: errors.New("GFW_SQS_QUEUE_URL is not set")}
			}

			key := object.InputKey(util.ContentHash(data), filepath.Base(cfg.CSVPath))
			if _, err := app.Inputs.SaveWithKey(cmd.Context(), key, "text/csv", bytes.NewReader(data)); err != nil {
				return &exitError{code: ExitFailure, err: fmt.Errorf("stage csv: %w", err)}
			}

			msg := queue.Message{
				RequestID:      uuid.NewString(),
				AnalysisID:     cfg.Analysis,
				CSVKey:         key,
				Commodity:      commodity,
				ListNamePrefix: g.listPrefix,
				UserEmail:      email,
				EnqueuedAt:     time.Now().UTC().Format(time.RFC3339),
				Version:        queue.MessageVersion,
			}
			if err := app.Queue.Send(cmd.Context(), msg); err != nil {
				return &exitError{code: ExitFailure, err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued request %s (%s)\n", msg.RequestID, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to stage; defaults to CSV_PATH")
	cmd.Flags().StringVar(&commodity, "commodity", "", "commodity name; the worker default applies when empty")
	cmd.Flags().StringVar(&email, "email", "", "user email; the worker default applies when empty")
	return cmd
}
