package livekit

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

// Dialer builds LiveKit engines for the session controller.
type Dialer struct {
	connect connectFunc
	log     *zerolog.Logger
}

// NewDialer returns a Dialer that connects with the LiveKit server SDK.
func NewDialer(logger *zerolog.Logger) *Dialer {
	return &Dialer{connect: connectSDK, log: logger}
}

// Dial binds an engine to the room in info. The engine captures from
// devices when they can hand out tracks. The connection is made by Start.
func (d *Dialer) Dial(ctx context.Context, info media.JoinInfo, devices media.DeviceController) (media.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if info.URL == "" || info.Token == "" {
		return nil, errors.New("media url and token are required")
	}

	var tracks trackSource
	if ts, ok := devices.(trackSource); ok {
		tracks = ts
	}
	return newEngine(info, tracks, d.connect, d.log), nil
}

var _ media.Dialer = (*Dialer)(nil)
