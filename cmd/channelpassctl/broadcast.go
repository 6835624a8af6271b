package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChannelPass/app/models"
)

var (
	bcSegment   string
	bcLocale    string
	bcText      string
	bcParseMode string
	bcNoPreview bool
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Queue and manage broadcasts",
}

var broadcastEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a broadcast for a segment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := container.Broadcasts.Enqueue(cmd.Context(), bcSegment, bcLocale, models.BroadcastPayload{
			Text:                  bcText,
			ParseMode:             bcParseMode,
			DisableWebPagePreview: bcNoPreview,
		})
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var broadcastCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running broadcast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := container.Broadcasts.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(job)
	},
}

var broadcastStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show broadcast progress and failed recipients",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := container.Broadcasts.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		failures, err := container.Broadcasts.Failures(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"job": job, "failures": failures})
	},
}

func init() {
	f := broadcastEnqueueCmd.Flags()
	f.StringVar(&bcSegment, "segment", models.SegmentAll, "recipient segment (new, active, expired, all)")
	f.StringVar(&bcLocale, "locale", "", "only users with this locale")
	f.StringVar(&bcText, "text", "", "message text")
	f.StringVar(&bcParseMode, "parse-mode", "", "HTML, Markdown or MarkdownV2")
	f.BoolVar(&bcNoPreview, "no-preview", false, "disable link previews")
	_ = broadcastEnqueueCmd.MarkFlagRequired("text")

	broadcastCmd.AddCommand(broadcastEnqueueCmd, broadcastCancelCmd, broadcastStatusCmd)
}
