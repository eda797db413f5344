// Package media defines the boundary between the session controller and a
// real-time media engine: device access, local capture, tile and presence
// callbacks, and a topic-keyed broadcast channel.
package media

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotStarted is returned by operations that need a connected engine.
	ErrNotStarted = errors.New("media engine not started")
	// ErrPermissionDenied is returned when device access is refused.
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrNoDevice is returned when no input device is selected or available.
	ErrNoDevice = errors.New("no input device")
)

// Unsubscribe detaches a previously registered handler. Calling it more than
// once is safe.
type Unsubscribe func()

// DeviceKind identifies a class of capture device.
type DeviceKind string

const (
	DeviceAudioInput DeviceKind = "audioinput"
	DeviceVideoInput DeviceKind = "videoinput"
)

// Device is a capture device as enumerated by the DeviceController.
type Device struct {
	ID    string
	Label string
	Kind  DeviceKind
}

// TileUpdate reports that a video tile was bound or changed.
type TileUpdate struct {
	TileID     string
	AttendeeID string
	IsContent  bool
	Active     bool
	Local      bool
}

// TileHandler receives tile lifecycle events.
type TileHandler struct {
	OnTileUpdated func(TileUpdate)
	OnTileRemoved func(tileID string)
}

// PresenceEvent reports an attendee joining or leaving the live channel.
type PresenceEvent struct {
	AttendeeID     string
	ExternalUserID string
	Present        bool
}

// VolumeEvent carries the mute state and level of an attendee's audio.
type VolumeEvent struct {
	AttendeeID string
	Muted      bool
	Volume     float64
}

// DataMessage is a payload received on a broadcast topic.
type DataMessage struct {
	Topic            string
	SenderAttendeeID string
	Payload          []byte
	ReceivedAt       time.Time
}

// Engine is a connected (or connectable) media session. It is owned by a
// single session controller and must not be shared.
type Engine interface {
	// Start performs the media handshake. Handlers registered before Start
	// observe every event of the session.
	Start(ctx context.Context) error
	// Stop tears down the audio/video pipeline.
	Stop() error

	LocalAttendeeID() string

	StartLocalVideo(ctx context.Context) error
	StopLocalVideo() error
	MuteLocalAudio() error
	UnmuteLocalAudio(ctx context.Context) error
	StartContentShare(ctx context.Context) error
	StopContentShare() error

	SendMessage(ctx context.Context, topic string, payload []byte) error

	SubscribeTiles(h TileHandler) Unsubscribe
	SubscribePresence(fn func(PresenceEvent)) Unsubscribe
	SubscribeVolume(fn func(VolumeEvent)) Unsubscribe
	SubscribeMessages(topic string, fn func(DataMessage)) Unsubscribe
}

// DeviceController enumerates and releases local capture devices.
type DeviceController interface {
	ListAudioInputs(ctx context.Context) ([]Device, error)
	ListVideoInputs(ctx context.Context) ([]Device, error)
	RequestPermission(ctx context.Context, kind DeviceKind) error
	ChooseAudioInput(ctx context.Context, d Device) error
	ChooseVideoInput(ctx context.Context, d Device) error
	// StopTracks releases every stream track still held for the device.
	StopTracks(d Device) error
	Destroy() error
}

// JoinInfo carries the credentials a Dialer needs to reach the media room.
type JoinInfo struct {
	URL        string
	Token      string
	RoomName   string
	AttendeeID string
}

// Dialer builds an Engine bound to a media room.
type Dialer interface {
	Dial(ctx context.Context, info JoinInfo, devices DeviceController) (Engine, error)
}
