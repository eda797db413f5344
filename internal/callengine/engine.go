package callengine

import (
	"context"

	"github.com/vovakirdan/wirechat-live/internal/store"
)

// JoinInfo contains what an attendee needs to connect to the media room.
type JoinInfo struct {
	URL        string `json:"url"`         // WebSocket URL (e.g., ws://localhost:7880)
	Token      string `json:"token"`       // Access token for the media server
	RoomName   string `json:"room_name"`   // Media room name
	AttendeeID string `json:"attendee_id"` // Identity inside the room
}

// Attendee identifies who a join token is issued for.
type Attendee struct {
	AttendeeID string
	UserID     string
	Username   string
}

// Engine abstracts the media backend for meetings.
type Engine interface {
	// CreateRoom provisions the media room for a meeting.
	// Returns external room ID to store in Meeting.ExternalRoomID.
	CreateRoom(ctx context.Context, m *store.Meeting) (externalRoomID string, err error)

	// EndRoom terminates the media room.
	EndRoom(ctx context.Context, m *store.Meeting) error

	// GenerateJoinInfo creates join credentials for an attendee.
	GenerateJoinInfo(ctx context.Context, m *store.Meeting, attendee Attendee) (*JoinInfo, error)
}
