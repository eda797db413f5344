package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewMeetingID returns a fresh meeting identifier.
func NewMeetingID() string {
	return uuid.NewString()
}

// NewAttendeeID returns a media identity. A new one is issued on every join,
// so a rejoining user never reuses a stale attendee.
func NewAttendeeID() string {
	return "att-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
