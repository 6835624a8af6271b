package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/enforcement"
)

var cycleKind string

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run the membership enforcement cycle",
}

var cycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one enforcement pass now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()
		var (
			summary enforcement.Summary
			err     error
		)
		switch cycleKind {
		case "full":
			summary, err = container.Engine.RunCycle(cmd.Context(), now)
		case "reminders":
			summary, err = container.Engine.RunReminderSweep(cmd.Context(), now)
		default:
			return fmt.Errorf("unknown kind %q (must be full or reminders)", cycleKind)
		}
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

func init() {
	cycleRunCmd.Flags().StringVar(&cycleKind, "kind", "full", "cycle kind (full or reminders)")
	cycleCmd.AddCommand(cycleRunCmd)
}
