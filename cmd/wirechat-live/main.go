package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/log"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "wirechat-live",
	Short: "Live discussion sessions for wirechat spaces",
	Long: `wirechat-live runs the meeting broker and the live session client.

Examples:
  # Run the meeting broker
  wirechat-live broker --addr :8080

  # Issue a bearer token for a user
  wirechat-live token --user u-42 --name alice

  # Join the live session of a discussion
  wirechat-live join --space s1 --discussion d1 --token <jwt>`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(tokenCmd)

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig resolves the config file, env and flags. overrides holds values
// set on the command line.
func loadConfig(cmd *cobra.Command, overrides config.Config) (*config.Config, *zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	bootstrap := log.New("info")
	cfg, resolved, err := config.Load(bootstrap, path)
	if err != nil {
		return nil, nil, err
	}
	overrides.LogLevel = level
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", resolved).Msg("configuration loaded")
	return &cfg, logger, nil
}
