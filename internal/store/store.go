package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// MeetingStatus defines meeting status.
type MeetingStatus string

const (
	MeetingStatusActive MeetingStatus = "active"
	MeetingStatusEnded  MeetingStatus = "ended"
)

// Meeting is the live session attached to one discussion. At most one
// meeting per discussion is active at a time.
type Meeting struct {
	ID             string // UUID
	SpaceID        string
	DiscussionID   string
	Status         MeetingStatus
	ExternalRoomID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	EndedAt        *time.Time
}

// MeetingParticipant is a user registered for a meeting. AttendeeID is
// reissued on every join and cleared on exit.
type MeetingParticipant struct {
	ID           int64
	MeetingID    string
	UserID       string
	Username     string
	AttendeeID   *string
	RegisteredAt time.Time
	JoinedAt     *time.Time
	LeftAt       *time.Time
}

// Joined reports whether the participant is currently in the live channel.
func (p *MeetingParticipant) Joined() bool {
	return p.JoinedAt != nil && p.LeftAt == nil && p.AttendeeID != nil
}

// MeetingStore handles meeting persistence.
type MeetingStore interface {
	// CreateMeeting creates a new meeting.
	CreateMeeting(ctx context.Context, m *Meeting) error

	// UpdateMeeting updates status, external room and end time.
	UpdateMeeting(ctx context.Context, m *Meeting) error

	// GetMeeting retrieves a meeting by ID.
	GetMeeting(ctx context.Context, id string) (*Meeting, error)

	// GetActiveMeeting returns the active meeting for a discussion, or nil if none exists.
	GetActiveMeeting(ctx context.Context, spaceID, discussionID string) (*Meeting, error)
}

// ParticipantStore handles meeting participant persistence.
type ParticipantStore interface {
	// AddParticipant registers a user for a meeting.
	AddParticipant(ctx context.Context, p *MeetingParticipant) error

	// UpdateParticipant updates attendee and presence timestamps.
	UpdateParticipant(ctx context.Context, p *MeetingParticipant) error

	// GetParticipant retrieves a participant from a meeting.
	GetParticipant(ctx context.Context, meetingID, userID string) (*MeetingParticipant, error)

	// ListParticipants lists participants of a meeting in registration order.
	// With joinedOnly set, only users currently in the live channel are returned.
	ListParticipants(ctx context.Context, meetingID string, joinedOnly bool) ([]*MeetingParticipant, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MeetingStore
	ParticipantStore

	// Close closes the underlying database connection.
	Close() error
}
