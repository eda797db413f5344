package http

import (
	"time"

	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
	"github.com/vovakirdan/wirechat-live/internal/store"
)

func meetingToResponse(m *store.Meeting) proto.MeetingResponse {
	resp := proto.MeetingResponse{
		ID:             m.ID,
		SpaceID:        m.SpaceID,
		DiscussionID:   m.DiscussionID,
		Status:         string(m.Status),
		ExternalRoomID: m.ExternalRoomID,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.EndedAt != nil {
		endedAt := m.EndedAt.Format(time.RFC3339)
		resp.EndedAt = &endedAt
	}
	return resp
}

func participantToResponse(p *store.MeetingParticipant) proto.ParticipantResponse {
	resp := proto.ParticipantResponse{
		UserID:   p.UserID,
		Username: p.Username,
		Joined:   p.Joined(),
	}
	if p.AttendeeID != nil {
		resp.AttendeeID = *p.AttendeeID
	}
	return resp
}

func participantsToResponse(ps []*store.MeetingParticipant) []proto.ParticipantResponse {
	out := make([]proto.ParticipantResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, participantToResponse(p))
	}
	return out
}

func joinToResponse(res *meetings.JoinResult) proto.JoinResponse {
	meeting := meetingToResponse(res.Meeting)
	meeting.MediaURL = res.JoinInfo.URL
	if meeting.ExternalRoomID == nil {
		meeting.ExternalRoomID = &res.JoinInfo.RoomName
	}
	return proto.JoinResponse{
		Meeting: meeting,
		Attendee: proto.AttendeeResponse{
			AttendeeID: res.JoinInfo.AttendeeID,
			UserID:     res.Participant.UserID,
			Token:      res.JoinInfo.Token,
		},
		Participants: participantsToResponse(res.Participants),
	}
}
