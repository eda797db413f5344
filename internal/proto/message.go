package proto

import "encoding/json"

// Inbound is the envelope for intents coming from the presentation client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	ProtocolVersion = 1

	InboundTypeToggleAudio  = "toggle_audio"
	InboundTypeToggleVideo  = "toggle_video"
	InboundTypeShareStart   = "share_start"
	InboundTypeShareStop    = "share_stop"
	InboundTypeChat         = "chat"
	InboundTypeFocus        = "focus"
	InboundTypeLeave        = "leave"
	InboundTypeNavigateBack = "navigate_back"

	OutboundTypeHello    = "hello"
	OutboundTypeSnapshot = "snapshot"
	OutboundTypeError    = "error"
)

// ChatData carries a chat message typed by the user.
type ChatData struct {
	Text string `json:"text"`
}

// FocusData selects a tile; an empty attendee clears the focus.
type FocusData struct {
	AttendeeID string `json:"attendee_id"`
}

// Outbound is the envelope for messages sent to the presentation client.
type Outbound struct {
	Type     string    `json:"type"`
	Protocol int       `json:"protocol,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Error    *Error    `json:"error,omitempty"`
}

// Snapshot is the wire form of the session state.
type Snapshot struct {
	Status            string          `json:"status"`
	SpaceID           string          `json:"space_id"`
	DiscussionID      string          `json:"discussion_id"`
	LocalAttendeeID   string          `json:"local_attendee_id,omitempty"`
	Participants      []Participant   `json:"participants"`
	Tiles             []Tile          `json:"tiles"`
	MicStates         map[string]bool `json:"mic_states"`
	VideoStates       map[string]bool `json:"video_states"`
	ChatMessages      []ChatMessage   `json:"chat_messages"`
	Recording         bool            `json:"recording"`
	FocusedAttendeeID string          `json:"focused_attendee_id,omitempty"`
	ContentShareOwner string          `json:"content_share_owner,omitempty"`
	LocalVideo        bool            `json:"local_video"`
	LocalAudio        bool            `json:"local_audio"`
	LocalSharing      bool            `json:"local_sharing"`
	ExitReason        string          `json:"exit_reason,omitempty"`
}

// Participant is one roster entry.
type Participant struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	AttendeeID  string `json:"attendee_id,omitempty"`
	MicOn       bool   `json:"mic_on"`
	VideoOn     bool   `json:"video_on"`
}

// Tile is a bound camera tile.
type Tile struct {
	TileID     string `json:"tile_id"`
	AttendeeID string `json:"attendee_id"`
	Active     bool   `json:"active"`
	Local      bool   `json:"local"`
}

// ChatMessage is one timeline entry.
type ChatMessage struct {
	Seq          uint64 `json:"seq"`
	SenderUserID string `json:"sender_user_id,omitempty"`
	SenderID     string `json:"sender_attendee_id"`
	Text         string `json:"text"`
	TS           int64  `json:"ts"`
	Local        bool   `json:"local"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
