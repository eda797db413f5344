package proto

// ErrorResponse is the body of every failed broker API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MeetingResponse describes a meeting in API responses.
type MeetingResponse struct {
	ID             string  `json:"id"`
	SpaceID        string  `json:"space_id"`
	DiscussionID   string  `json:"discussion_id"`
	Status         string  `json:"status"`
	ExternalRoomID *string `json:"external_room_id,omitempty"`
	MediaURL       string  `json:"media_url,omitempty"`
	CreatedAt      string  `json:"created_at"`
	EndedAt        *string `json:"ended_at,omitempty"`
}

// ParticipantResponse is one roster entry.
type ParticipantResponse struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	AttendeeID string `json:"attendee_id,omitempty"`
	Joined     bool   `json:"joined"`
}

// AttendeeResponse is the caller's identity and media credentials.
type AttendeeResponse struct {
	AttendeeID string `json:"attendee_id"`
	UserID     string `json:"user_id"`
	Token      string `json:"token"`
}

// JoinResponse is returned by the join endpoint.
type JoinResponse struct {
	Meeting      MeetingResponse       `json:"meeting"`
	Attendee     AttendeeResponse      `json:"attendee"`
	Participants []ParticipantResponse `json:"participants"`
}

// ParticipantsResponse is returned by the roster endpoint.
type ParticipantsResponse struct {
	Participants []ParticipantResponse `json:"participants"`
}
