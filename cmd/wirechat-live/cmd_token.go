package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-live/internal/app"
	"github.com/vovakirdan/wirechat-live/internal/auth"
	"github.com/vovakirdan/wirechat-live/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a broker bearer token",
	Long:  `Sign a bearer token for a user with the broker's JWT settings. Useful for local testing.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().String("user", "", "User id (required)")
	tokenCmd.Flags().String("name", "", "Display name")
}

func runToken(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	name, _ := cmd.Flags().GetString("name")
	if userID == "" {
		return errors.New("--user is required")
	}

	cfg, _, err := loadConfig(cmd, config.Config{})
	if err != nil {
		return err
	}

	token, err := auth.GenerateToken(app.JWTConfig(cfg.Broker), userID, name)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
