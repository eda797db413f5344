// Package livekit implements media.Engine on top of a LiveKit room.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/media"
)

// Tile ids used for the local camera and screen share.
const (
	localVideoTile = "local-video"
	localShareTile = "local-share"
)

// remoteParticipant is a participant already in the room when we connect.
type remoteParticipant struct {
	Identity string
	UserID   string
	Tracks   []remoteTrack
}

// remoteTrack is a published track of a remote participant.
type remoteTrack struct {
	SID    string
	Kind   media.DeviceKind
	Source livekit.TrackSource
	Muted  bool
}

// room is the part of a connected LiveKit room the engine drives.
type room interface {
	Remotes() []remoteParticipant
	Publish(track webrtc.TrackLocal, name string, source livekit.TrackSource) (sid string, err error)
	Unpublish(sid string) error
	SetMuted(sid string, muted bool) error
	SendData(topic string, payload []byte) error
	Disconnect()
}

// roomEvents receives room callbacks. Engine implements it.
type roomEvents interface {
	participantConnected(identity, userID string)
	participantDisconnected(identity string)
	trackAdded(identity string, t remoteTrack)
	trackRemoved(identity, sid string)
	trackMuted(identity string, t remoteTrack)
	dataReceived(sender, topic string, payload []byte)
	disconnected()
}

// connectFunc joins the room at url with token, delivering events to ev.
type connectFunc func(url, token string, ev roomEvents) (room, error)

// trackSource hands out capture tracks for the chosen devices.
type trackSource interface {
	Track(kind media.DeviceKind) (*webrtc.TrackLocalStaticSample, error)
}

// Engine is a media.Engine bound to one LiveKit room.
type Engine struct {
	info    media.JoinInfo
	tracks  trackSource
	connect connectFunc
	now     func() time.Time
	log     zerolog.Logger

	tileUpdated media.Listeners[media.TileUpdate]
	tileRemoved media.Listeners[string]
	presence    media.Listeners[media.PresenceEvent]
	volume      media.Listeners[media.VolumeEvent]

	topicsMu sync.Mutex
	topics   map[string]*media.Listeners[media.DataMessage]

	mu       sync.Mutex
	room     room
	videoSID string
	audioSID string
	shareSID string
	// videoTiles maps a remote video track sid to its owner.
	videoTiles map[string]string
	// audioOwners maps a remote audio track sid to its owner.
	audioOwners map[string]string
}

func newEngine(info media.JoinInfo, tracks trackSource, connect connectFunc, logger *zerolog.Logger) *Engine {
	return &Engine{
		info:        info,
		tracks:      tracks,
		connect:     connect,
		now:         time.Now,
		log:         log.Component(logger, "livekit-engine").With().Str("room", info.RoomName).Logger(),
		topics:      make(map[string]*media.Listeners[media.DataMessage]),
		videoTiles:  make(map[string]string),
		audioOwners: make(map[string]string),
	}
}

// Start connects to the room and replays the participants and tracks that
// were there before us.
func (e *Engine) Start(ctx context.Context) error {
	type result struct {
		room room
		err  error
	}
	done := make(chan result, 1)
	go func() {
		r, err := e.connect(e.info.URL, e.info.Token, e)
		done <- result{r, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.err == nil {
				late.room.Disconnect()
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("connect to room %s: %w", e.info.RoomName, res.err)
	}

	e.mu.Lock()
	e.room = res.room
	e.mu.Unlock()

	for _, p := range res.room.Remotes() {
		e.participantConnected(p.Identity, p.UserID)
		for _, t := range p.Tracks {
			e.trackAdded(p.Identity, t)
		}
	}
	e.log.Info().Str("attendee_id", e.info.AttendeeID).Msg("connected to media room")
	return nil
}

// Stop unpublishes local tracks and leaves the room. Stopping twice is a
// no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	r := e.room
	e.room = nil
	sids := []string{e.videoSID, e.audioSID, e.shareSID}
	e.videoSID, e.audioSID, e.shareSID = "", "", ""
	e.mu.Unlock()

	if r == nil {
		return nil
	}
	var errs []error
	for _, sid := range sids {
		if sid == "" {
			continue
		}
		if err := r.Unpublish(sid); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", sid, err))
		}
	}
	r.Disconnect()
	e.log.Info().Msg("left media room")
	return errors.Join(errs...)
}

// LocalAttendeeID is the identity this engine joined with.
func (e *Engine) LocalAttendeeID() string {
	return e.info.AttendeeID
}

func (e *Engine) connected() (room, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room == nil {
		return nil, media.ErrNotStarted
	}
	return e.room, nil
}

// StartLocalVideo publishes the chosen camera.
func (e *Engine) StartLocalVideo(_ context.Context) error {
	r, err := e.connected()
	if err != nil {
		return err
	}
	e.mu.Lock()
	running := e.videoSID != ""
	e.mu.Unlock()
	if running {
		return nil
	}

	track, err := e.capture(media.DeviceVideoInput)
	if err != nil {
		return err
	}
	sid, err := r.Publish(track, "camera", livekit.TrackSource_CAMERA)
	if err != nil {
		return fmt.Errorf("publish camera: %w", err)
	}

	e.mu.Lock()
	e.videoSID = sid
	e.mu.Unlock()

	e.tileUpdated.Emit(media.TileUpdate{
		TileID:     localVideoTile,
		AttendeeID: e.info.AttendeeID,
		Active:     true,
		Local:      true,
	})
	return nil
}

// StopLocalVideo unpublishes the camera. It is a no-op when it is not on.
func (e *Engine) StopLocalVideo() error {
	e.mu.Lock()
	r, sid := e.room, e.videoSID
	e.videoSID = ""
	e.mu.Unlock()

	if r == nil || sid == "" {
		return nil
	}
	if err := r.Unpublish(sid); err != nil {
		return fmt.Errorf("unpublish camera: %w", err)
	}
	e.tileRemoved.Emit(localVideoTile)
	return nil
}

// MuteLocalAudio mutes the published microphone.
func (e *Engine) MuteLocalAudio() error {
	e.mu.Lock()
	r, sid := e.room, e.audioSID
	e.mu.Unlock()

	if r == nil {
		return media.ErrNotStarted
	}
	if sid == "" {
		return nil
	}
	if err := r.SetMuted(sid, true); err != nil {
		return fmt.Errorf("mute microphone: %w", err)
	}
	return nil
}

// UnmuteLocalAudio publishes the chosen microphone on first use and unmutes
// it afterwards.
func (e *Engine) UnmuteLocalAudio(_ context.Context) error {
	r, err := e.connected()
	if err != nil {
		return err
	}
	e.mu.Lock()
	sid := e.audioSID
	e.mu.Unlock()

	if sid != "" {
		if err := r.SetMuted(sid, false); err != nil {
			return fmt.Errorf("unmute microphone: %w", err)
		}
		return nil
	}

	track, err := e.capture(media.DeviceAudioInput)
	if err != nil {
		return err
	}
	sid, err = r.Publish(track, "microphone", livekit.TrackSource_MICROPHONE)
	if err != nil {
		return fmt.Errorf("publish microphone: %w", err)
	}
	e.mu.Lock()
	e.audioSID = sid
	e.mu.Unlock()
	return nil
}

// StartContentShare publishes a screen share track.
func (e *Engine) StartContentShare(_ context.Context) error {
	r, err := e.connected()
	if err != nil {
		return err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "screen", e.info.AttendeeID+"-screen")
	if err != nil {
		return fmt.Errorf("create screen track: %w", err)
	}
	sid, err := r.Publish(track, "screen", livekit.TrackSource_SCREEN_SHARE)
	if err != nil {
		return fmt.Errorf("publish screen: %w", err)
	}

	e.mu.Lock()
	e.shareSID = sid
	e.mu.Unlock()

	e.tileUpdated.Emit(media.TileUpdate{
		TileID:     localShareTile,
		AttendeeID: e.info.AttendeeID,
		IsContent:  true,
		Active:     true,
		Local:      true,
	})
	return nil
}

// StopContentShare unpublishes the screen share.
func (e *Engine) StopContentShare() error {
	e.mu.Lock()
	r, sid := e.room, e.shareSID
	e.shareSID = ""
	e.mu.Unlock()

	if r == nil || sid == "" {
		return nil
	}
	if err := r.Unpublish(sid); err != nil {
		return fmt.Errorf("unpublish screen: %w", err)
	}
	e.tileRemoved.Emit(localShareTile)
	return nil
}

// SendMessage broadcasts payload on topic to everyone else in the room.
func (e *Engine) SendMessage(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := e.connected()
	if err != nil {
		return err
	}
	if err := r.SendData(topic, payload); err != nil {
		return fmt.Errorf("send on %s: %w", topic, err)
	}
	return nil
}

func (e *Engine) capture(kind media.DeviceKind) (webrtc.TrackLocal, error) {
	if e.tracks == nil {
		return nil, media.ErrNoDevice
	}
	track, err := e.tracks.Track(kind)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", kind, err)
	}
	return track, nil
}

// SubscribeTiles registers tile handlers.
func (e *Engine) SubscribeTiles(h media.TileHandler) media.Unsubscribe {
	updated := e.tileUpdated.Add(h.OnTileUpdated)
	removed := e.tileRemoved.Add(h.OnTileRemoved)
	return func() {
		updated()
		removed()
	}
}

// SubscribePresence registers a presence handler.
func (e *Engine) SubscribePresence(fn func(media.PresenceEvent)) media.Unsubscribe {
	return e.presence.Add(fn)
}

// SubscribeVolume registers a mute state handler.
func (e *Engine) SubscribeVolume(fn func(media.VolumeEvent)) media.Unsubscribe {
	return e.volume.Add(fn)
}

// SubscribeMessages registers a handler for one data topic.
func (e *Engine) SubscribeMessages(topic string, fn func(media.DataMessage)) media.Unsubscribe {
	e.topicsMu.Lock()
	l, ok := e.topics[topic]
	if !ok {
		l = &media.Listeners[media.DataMessage]{}
		e.topics[topic] = l
	}
	e.topicsMu.Unlock()
	return l.Add(fn)
}

func (e *Engine) participantConnected(identity, userID string) {
	e.presence.Emit(media.PresenceEvent{AttendeeID: identity, ExternalUserID: userID, Present: true})
}

func (e *Engine) participantDisconnected(identity string) {
	e.mu.Lock()
	var tiles []string
	for sid, owner := range e.videoTiles {
		if owner == identity {
			tiles = append(tiles, sid)
			delete(e.videoTiles, sid)
		}
	}
	for sid, owner := range e.audioOwners {
		if owner == identity {
			delete(e.audioOwners, sid)
		}
	}
	e.mu.Unlock()

	for _, sid := range tiles {
		e.tileRemoved.Emit(sid)
	}
	e.presence.Emit(media.PresenceEvent{AttendeeID: identity})
}

func (e *Engine) trackAdded(identity string, t remoteTrack) {
	switch t.Kind {
	case media.DeviceVideoInput:
		e.mu.Lock()
		e.videoTiles[t.SID] = identity
		e.mu.Unlock()
		e.tileUpdated.Emit(remoteTile(identity, t))
	case media.DeviceAudioInput:
		e.mu.Lock()
		e.audioOwners[t.SID] = identity
		e.mu.Unlock()
		e.volume.Emit(media.VolumeEvent{AttendeeID: identity, Muted: t.Muted})
	}
}

func (e *Engine) trackRemoved(identity, sid string) {
	e.mu.Lock()
	_, video := e.videoTiles[sid]
	delete(e.videoTiles, sid)
	_, audio := e.audioOwners[sid]
	delete(e.audioOwners, sid)
	e.mu.Unlock()

	switch {
	case video:
		e.tileRemoved.Emit(sid)
	case audio:
		e.volume.Emit(media.VolumeEvent{AttendeeID: identity, Muted: true})
	}
}

func (e *Engine) trackMuted(identity string, t remoteTrack) {
	switch t.Kind {
	case media.DeviceVideoInput:
		e.mu.Lock()
		_, known := e.videoTiles[t.SID]
		e.mu.Unlock()
		if known {
			e.tileUpdated.Emit(remoteTile(identity, t))
		}
	case media.DeviceAudioInput:
		e.volume.Emit(media.VolumeEvent{AttendeeID: identity, Muted: t.Muted})
	}
}

func (e *Engine) dataReceived(sender, topic string, payload []byte) {
	e.topicsMu.Lock()
	l := e.topics[topic]
	e.topicsMu.Unlock()
	if l == nil {
		e.log.Debug().Str("topic", topic).Msg("dropping data on unsubscribed topic")
		return
	}
	l.Emit(media.DataMessage{
		Topic:            topic,
		SenderAttendeeID: sender,
		Payload:          payload,
		ReceivedAt:       e.now(),
	})
}

func (e *Engine) disconnected() {
	e.log.Warn().Msg("media room disconnected")
}

func remoteTile(identity string, t remoteTrack) media.TileUpdate {
	return media.TileUpdate{
		TileID:     t.SID,
		AttendeeID: identity,
		IsContent:  t.Source == livekit.TrackSource_SCREEN_SHARE,
		Active:     !t.Muted,
	}
}

var _ media.Engine = (*Engine)(nil)
