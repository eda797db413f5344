package session

import "context"

// MeetingInfo describes the media room a meeting runs in.
type MeetingInfo struct {
	MeetingID string
	RoomName  string
	MediaURL  string
}

// AttendeeInfo is the local user's identity for one session instance.
type AttendeeInfo struct {
	AttendeeID string
	UserID     string
	Token      string
}

// JoinResult is what the broker hands back from JoinMeeting.
type JoinResult struct {
	Meeting      MeetingInfo
	Attendee     AttendeeInfo
	Participants []Participant
}

// Broker is the session-broker API the join handshake and teardown talk to.
type Broker interface {
	StartMeeting(ctx context.Context, spaceID, discussionID string) error
	RegisterParticipant(ctx context.Context, spaceID, discussionID string) error
	JoinMeeting(ctx context.Context, spaceID, discussionID string) (*JoinResult, error)
	// ExitMeeting is idempotent and safe to call when the join never completed.
	ExitMeeting(ctx context.Context, spaceID, discussionID string) error
}

// Roster is the discussion service used to re-validate presence.
type Roster interface {
	FetchParticipants(ctx context.Context, spaceID, discussionID string) ([]Participant, error)
}
