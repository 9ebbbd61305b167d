package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/organizer-backend/internal/app"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

func newRollbackCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Undo a finished job: delete its organized output and execution records",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(jobID)
			if err != nil {
				return errkind.Newf(errkind.Validation, "cli.rollback", "invalid job id %q", jobID)
			}

			a, err := app.New()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.Services.Jobs.Rollback(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s rolled back, status %s\n", job.ID, job.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "id of the job to roll back")
	cmd.MarkFlagRequired("job")
	return cmd
}
