package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs with their statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := container.Scheduler.List(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(jobs)
	},
}

func jobAction(use, short string, fn func(ctx context.Context, id string) (*models.ScheduledJob, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := fn(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(job)
		},
	}
}

func init() {
	jobsCmd.AddCommand(
		jobsListCmd,
		jobAction("pause", "Pause a job", func(ctx context.Context, id string) (*models.ScheduledJob, error) {
			return container.Scheduler.Pause(ctx, id)
		}),
		jobAction("resume", "Resume a paused job", func(ctx context.Context, id string) (*models.ScheduledJob, error) {
			return container.Scheduler.Resume(ctx, id)
		}),
		jobAction("run", "Make a job due immediately", func(ctx context.Context, id string) (*models.ScheduledJob, error) {
			return container.Scheduler.TriggerNow(ctx, id)
		}),
	)
}
