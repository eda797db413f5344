package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/auth"
	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/callengine/livekit"
	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
	"github.com/vovakirdan/wirechat-live/internal/store"
	"github.com/vovakirdan/wirechat-live/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-live/internal/transport/http"
)

// App wires together the meeting broker layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// JWTConfig builds the bearer token config from the broker section.
func JWTConfig(cfg config.BrokerConfig) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
}

// New constructs the broker with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// Initialize database store
	st, err := sqlite.New(cfg.Broker.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.Broker.DatabasePath).Msg("database initialized")

	// Initialize media engine (optional)
	var engine callengine.Engine
	if cfg.LiveKit.Enabled {
		engine = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL, cfg.LiveKit.TokenTTL)
		logger.Info().Str("url", cfg.LiveKit.URL).Msg("livekit engine initialized")
	} else {
		logger.Warn().Msg("livekit disabled, meetings cannot be started")
	}

	svc := meetings.New(st, engine, logger)
	server := transporthttp.NewServer(svc, JWTConfig(cfg.Broker), cfg.Broker, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.Broker.ShutdownTimeout,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("broker listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
