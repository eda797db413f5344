package livekit

import (
	"context"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/store"
)

// roomEmptyTimeout keeps an abandoned room around long enough for a rejoin.
const roomEmptyTimeout = 5 * time.Minute

// roomService is the part of lksdk.RoomServiceClient the engine uses.
type roomService interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

// LiveKitEngine implements callengine.Engine using LiveKit as the media backend.
type LiveKitEngine struct {
	apiKey    string
	apiSecret string
	wsURL     string
	tokenTTL  time.Duration
	rooms     roomService
}

// New creates a new LiveKitEngine talking to the server at wsURL.
func New(apiKey, apiSecret, wsURL string, tokenTTL time.Duration) *LiveKitEngine {
	return newWithRooms(apiKey, apiSecret, wsURL, tokenTTL, lksdk.NewRoomServiceClient(wsURL, apiKey, apiSecret))
}

func newWithRooms(apiKey, apiSecret, wsURL string, tokenTTL time.Duration, rooms roomService) *LiveKitEngine {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &LiveKitEngine{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		wsURL:     wsURL,
		tokenTTL:  tokenTTL,
		rooms:     rooms,
	}
}

// RoomName is the media room used for a meeting.
func RoomName(m *store.Meeting) string {
	return fmt.Sprintf("wirechat-%s-%s-%s", m.SpaceID, m.DiscussionID, m.ID)
}

// CreateRoom creates the LiveKit room up front so the empty timeout applies
// from the start.
func (e *LiveKitEngine) CreateRoom(ctx context.Context, m *store.Meeting) (string, error) {
	name := RoomName(m)
	room, err := e.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:         name,
		EmptyTimeout: uint32(roomEmptyTimeout.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("create livekit room: %w", err)
	}
	return room.GetName(), nil
}

// EndRoom deletes the LiveKit room, disconnecting anyone still inside.
func (e *LiveKitEngine) EndRoom(ctx context.Context, m *store.Meeting) error {
	if m.ExternalRoomID == nil {
		return nil
	}
	if _, err := e.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: *m.ExternalRoomID}); err != nil {
		return fmt.Errorf("delete livekit room: %w", err)
	}
	return nil
}

// GenerateJoinInfo creates join credentials for an attendee. The attendee ID
// is the room identity; the user ID travels as participant metadata.
func (e *LiveKitEngine) GenerateJoinInfo(_ context.Context, m *store.Meeting, attendee callengine.Attendee) (*callengine.JoinInfo, error) {
	if m.ExternalRoomID == nil {
		return nil, fmt.Errorf("meeting has no external room ID")
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true

	at := auth.NewAccessToken(e.apiKey, e.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           *m.ExternalRoomID,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}
	at.SetVideoGrant(grant).
		SetIdentity(attendee.AttendeeID).
		SetName(attendee.Username).
		SetMetadata(attendee.UserID).
		SetValidFor(e.tokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &callengine.JoinInfo{
		URL:        e.wsURL,
		Token:      token,
		RoomName:   *m.ExternalRoomID,
		AttendeeID: attendee.AttendeeID,
	}, nil
}

// Ensure LiveKitEngine implements callengine.Engine
var _ callengine.Engine = (*LiveKitEngine)(nil)
