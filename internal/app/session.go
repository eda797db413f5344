package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirechat-live/internal/broker"
	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/media/device"
	lkmedia "github.com/vovakirdan/wirechat-live/internal/media/livekit"
	"github.com/vovakirdan/wirechat-live/internal/session"
	"github.com/vovakirdan/wirechat-live/internal/transport/ui"
)

// SessionApp runs one live session for the configured discussion and
// serves its UI bridge.
type SessionApp struct {
	ctrl   *session.Controller
	server *stdhttp.Server
	log    *zerolog.Logger
}

// NewSession wires the broker client, devices and LiveKit dialer into a
// session controller.
func NewSession(cfg *config.Config, logger *zerolog.Logger) (*SessionApp, error) {
	if cfg.Session.SpaceID == "" || cfg.Session.DiscussionID == "" {
		return nil, errors.New("session space_id and discussion_id are required")
	}
	client := broker.New(cfg.Session.BrokerURL, cfg.Session.Token, cfg.Session.CallTimeout, logger)

	ctrl, err := session.New(session.OptionsFromConfig(cfg.Session), session.Deps{
		Broker:  client,
		Roster:  client,
		Dialer:  lkmedia.NewDialer(logger),
		Devices: device.New(cfg.Devices, logger),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	return &SessionApp{
		ctrl:   ctrl,
		server: ui.NewServer(ctrl, cfg.Session.UIAddr, logger),
		log:    logger,
	}, nil
}

// Run joins the meeting and blocks until the session closes, ctx is
// cancelled, or the join fails. Cancellation tears the session down as an
// unload.
func (a *SessionApp) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("ui bridge listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("ui server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := a.ctrl.Join(gctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, session.ErrSessionClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			if err := a.ctrl.Exit(context.Background(), session.ExitUnload); err != nil {
				a.log.Warn().Err(err).Msg("teardown did not finish")
			}
		case <-a.ctrl.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.log.Info().Str("reason", string(a.ctrl.Snapshot().ExitReason)).Msg("session finished")
	return err
}
