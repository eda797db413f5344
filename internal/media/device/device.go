// Package device implements media.DeviceController over a configured set of
// capture devices, handing out pion sample tracks for the chosen inputs.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/media"
)

// ErrDestroyed is returned after Destroy has released the controller.
var ErrDestroyed = errors.New("device controller destroyed")

// Controller is a media.DeviceController. Devices are hidden until
// permission has been granted, as a browser would hide them.
type Controller struct {
	mu             sync.Mutex
	audio          []media.Device
	video          []media.Device
	granted        bool
	grantOnRequest bool
	chosen         map[media.DeviceKind]media.Device
	tracks         map[string]*webrtc.TrackLocalStaticSample
	destroyed      bool
	log            zerolog.Logger
}

// New builds a controller from the devices section of the config.
func New(cfg config.DevicesConfig, logger *zerolog.Logger) *Controller {
	c := &Controller{
		granted:        cfg.Granted,
		grantOnRequest: cfg.GrantPermission,
		chosen:         make(map[media.DeviceKind]media.Device),
		tracks:         make(map[string]*webrtc.TrackLocalStaticSample),
		log:            log.Component(logger, "devices"),
	}
	for _, label := range cfg.AudioInputs {
		c.audio = append(c.audio, media.Device{ID: "audio:" + label, Label: label, Kind: media.DeviceAudioInput})
	}
	for _, label := range cfg.VideoInputs {
		c.video = append(c.video, media.Device{ID: "video:" + label, Label: label, Kind: media.DeviceVideoInput})
	}
	return c
}

// ListAudioInputs returns the visible microphones.
func (c *Controller) ListAudioInputs(_ context.Context) ([]media.Device, error) {
	return c.list(c.audioLocked)
}

// ListVideoInputs returns the visible cameras.
func (c *Controller) ListVideoInputs(_ context.Context) ([]media.Device, error) {
	return c.list(c.videoLocked)
}

func (c *Controller) audioLocked() []media.Device { return c.audio }
func (c *Controller) videoLocked() []media.Device { return c.video }

func (c *Controller) list(pick func() []media.Device) ([]media.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil, ErrDestroyed
	}
	if !c.granted {
		return []media.Device{}, nil
	}
	src := pick()
	out := make([]media.Device, len(src))
	copy(out, src)
	return out, nil
}

// RequestPermission grants device visibility when the config allows it.
func (c *Controller) RequestPermission(_ context.Context, kind media.DeviceKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if !c.grantOnRequest {
		c.log.Debug().Str("kind", string(kind)).Msg("permission request refused")
		return media.ErrPermissionDenied
	}
	c.granted = true
	return nil
}

// ChooseAudioInput selects the microphone used for local audio.
func (c *Controller) ChooseAudioInput(_ context.Context, d media.Device) error {
	return c.choose(media.DeviceAudioInput, d)
}

// ChooseVideoInput selects the camera used for local video.
func (c *Controller) ChooseVideoInput(_ context.Context, d media.Device) error {
	return c.choose(media.DeviceVideoInput, d)
}

func (c *Controller) choose(kind media.DeviceKind, d media.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	pool := c.audio
	if kind == media.DeviceVideoInput {
		pool = c.video
	}
	for _, candidate := range pool {
		if candidate.ID == d.ID {
			c.chosen[kind] = candidate
			return nil
		}
	}
	return fmt.Errorf("choose %s %q: %w", kind, d.ID, media.ErrNoDevice)
}

// Track returns the local sample track for the chosen device of kind,
// creating it on first use.
func (c *Controller) Track(kind media.DeviceKind) (*webrtc.TrackLocalStaticSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil, ErrDestroyed
	}
	d, ok := c.chosen[kind]
	if !ok {
		return nil, media.ErrNoDevice
	}
	if track, ok := c.tracks[d.ID]; ok {
		return track, nil
	}

	mime := webrtc.MimeTypeOpus
	trackID := "audio"
	if kind == media.DeviceVideoInput {
		mime = webrtc.MimeTypeVP8
		trackID = "video"
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, trackID, d.ID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	c.tracks[d.ID] = track
	c.log.Debug().Str("device", d.ID).Msg("track acquired")
	return track, nil
}

// StopTracks drops the track held for d, if any.
func (c *Controller) StopTracks(d media.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tracks[d.ID]; ok {
		delete(c.tracks, d.ID)
		c.log.Debug().Str("device", d.ID).Msg("track released")
	}
	return nil
}

// Destroy releases every track and disables the controller. Safe to call
// more than once.
func (c *Controller) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return nil
	}
	c.destroyed = true
	c.tracks = make(map[string]*webrtc.TrackLocalStaticSample)
	c.chosen = make(map[media.DeviceKind]media.Device)
	return nil
}

var _ media.DeviceController = (*Controller)(nil)
