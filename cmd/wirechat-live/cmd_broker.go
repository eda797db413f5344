package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-live/internal/app"
	"github.com/vovakirdan/wirechat-live/internal/config"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the meeting broker API",
	Long:  `Serve the meeting start, register, join, exit and roster endpoints backed by SQLite and LiveKit.`,
	RunE:  runBroker,
}

func init() {
	brokerCmd.Flags().String("addr", "", "HTTP listen address")
	brokerCmd.Flags().String("db", "", "SQLite database path")
}

func runBroker(cmd *cobra.Command, _ []string) error {
	var overrides config.Config
	overrides.Broker.Addr, _ = cmd.Flags().GetString("addr")
	overrides.Broker.DatabasePath, _ = cmd.Flags().GetString("db")

	cfg, logger, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Broker.Addr).Msg("starting meeting broker")
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("broker stopped")
	return nil
}
