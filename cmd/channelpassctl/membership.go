package main

import (
	"github.com/spf13/cobra"
)

var revokeReason string

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Inspect and revoke memberships",
}

var membershipShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		m, err := container.Memberships.Get(cmd.Context(), userID)
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

var membershipRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id>",
	Short: "Revoke a membership and remove access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		m, err := container.Memberships.Revoke(cmd.Context(), userID, revokeReason)
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

func init() {
	membershipRevokeCmd.Flags().StringVar(&revokeReason, "reason", "", "reason shown to the user")
	membershipCmd.AddCommand(membershipShowCmd, membershipRevokeCmd)
}
