package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-live/internal/app"
	"github.com/vovakirdan/wirechat-live/internal/config"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join the live session of a discussion",
	Long: `Run the join handshake against the broker, connect to the media room and
serve the session to a presentation client over a WebSocket.
Interrupting the process tears the session down.`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().String("broker", "", "Meeting broker base URL")
	joinCmd.Flags().String("token", "", "Bearer token for the broker")
	joinCmd.Flags().String("space", "", "Space id")
	joinCmd.Flags().String("discussion", "", "Discussion id")
	joinCmd.Flags().String("ui-addr", "", "Listen address of the UI bridge")
}

func runJoin(cmd *cobra.Command, _ []string) error {
	var overrides config.Config
	overrides.Session.BrokerURL, _ = cmd.Flags().GetString("broker")
	overrides.Session.Token, _ = cmd.Flags().GetString("token")
	overrides.Session.SpaceID, _ = cmd.Flags().GetString("space")
	overrides.Session.DiscussionID, _ = cmd.Flags().GetString("discussion")
	overrides.Session.UIAddr, _ = cmd.Flags().GetString("ui-addr")

	cfg, logger, err := loadConfig(cmd, overrides)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := app.NewSession(cfg, logger)
	if err != nil {
		return err
	}
	return sess.Run(ctx)
}
