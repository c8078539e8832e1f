package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solidSpoon/DashChat/syncserver"
)

var tokenCmd = &cobra.Command{
	Use:   "token <owner-id>",
	Short: "Mint a development bearer token for an owner",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := viper.GetString("jwt-secret")
		if secret == "" {
			return fmt.Errorf("JWT secret is required (--jwt-secret or DASHSYNC_JWT_SECRET)")
		}
		syncEnabled, _ := cmd.Flags().GetBool("sync-enabled")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		auth := syncserver.NewJWTAuth(secret)
		token, err := auth.GenerateToken(args[0], syncEnabled, ttl)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("sync-enabled", true, "mark the owner as opted in to cloud sync")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")

	rootCmd.AddCommand(tokenCmd)
}
