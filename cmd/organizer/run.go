package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/organizer-backend/internal/app"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/services"
	"github.com/yungbote/organizer-backend/internal/types"
)

func newRunCmd() *cobra.Command {
	var (
		zipPath string
		outDir  string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Organize a ZIP archive in one shot, without a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			absOut, err := filepath.Abs(outDir)
			if err != nil {
				return errkind.New(errkind.Validation, "cli.run", err)
			}

			stateDir, err := os.MkdirTemp("", "organizer-run-*")
			if err != nil {
				return errkind.New(errkind.IO, "cli.run", err)
			}
			defer os.RemoveAll(stateDir)

			a, err := app.NewLocal(filepath.Join(stateDir, "organizer.db"))
			if err != nil {
				return err
			}
			defer a.Close()

			gate := false
			job, err := a.Services.Jobs.Submit(ctx, services.SubmitRequest{
				ZipPath:    zipPath,
				DryRun:     dryRun,
				ReviewGate: &gate,
			})
			if err != nil {
				return err
			}
			if err := a.Repos.Jobs.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
				"output_dir": absOut,
			}); err != nil {
				return errkind.New(errkind.Store, "cli.run", err)
			}

			if err := a.Services.Worker.Drain(ctx); err != nil {
				return err
			}

			job, err = a.Repos.Jobs.GetByID(ctx, nil, job.ID)
			if err != nil {
				return errkind.New(errkind.Store, "cli.run", err)
			}
			return reportOutcome(cmd, job, absOut)
		},
	}
	cmd.Flags().StringVar(&zipPath, "zip", "", "path to the source ZIP archive")
	cmd.Flags().StringVar(&outDir, "out", "", "directory to write the organized tree into")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan only, touch nothing on disk")
	cmd.MarkFlagRequired("zip")
	cmd.MarkFlagRequired("out")
	return cmd
}

// reportOutcome turns the final job row into CLI output and an exit status.
func reportOutcome(cmd *cobra.Command, job *types.Job, outDir string) error {
	switch job.Status {
	case types.JobStatusCompleted:
		if len(job.Result) > 0 {
			var result map[string]any
			if err := json.Unmarshal(job.Result, &result); err == nil {
				pretty, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(pretty))
			}
		}
		if job.DryRun {
			fmt.Fprintln(cmd.OutOrStdout(), "dry run complete, no files written")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "organized tree written to %s\n", outDir)
		}
		return nil
	case types.JobStatusReviewRequired:
		return errkind.Newf(errkind.Validation, "cli.run",
			"job parked for review: %s", job.Message)
	default:
		kind := errkind.Kind(job.ErrorKind)
		if kind == "" {
			kind = errkind.Fatal
		}
		msg := job.Error
		if msg == "" {
			msg = "job finished in status " + job.Status
		}
		return errkind.Newf(kind, "cli.run", "%s", msg)
	}
}
