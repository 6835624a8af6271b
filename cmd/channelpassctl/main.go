package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/bootstrap"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/env"
)

var (
	container *bootstrap.Container
	cancelCtx context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "channelpassctl <command>",
	Short:         "Operator CLI for the ChannelPass membership service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env.SetupEnvFile()
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		cancelCtx = cancel
		cmd.SetContext(ctx)

		c, err := bootstrap.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("startup failed: %w", err)
		}
		container = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if container != nil {
			container.Close()
		}
		if cancelCtx != nil {
			cancelCtx()
		}
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd, jobsCmd, membershipCmd, broadcastCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
