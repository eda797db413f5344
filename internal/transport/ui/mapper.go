package ui

import (
	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/session"
)

func snapshotToProto(s session.Snapshot) *proto.Snapshot {
	out := &proto.Snapshot{
		Status:            string(s.Status),
		SpaceID:           s.SpaceID,
		DiscussionID:      s.DiscussionID,
		LocalAttendeeID:   s.LocalAttendeeID,
		Participants:      make([]proto.Participant, 0, len(s.Participants)),
		Tiles:             make([]proto.Tile, 0, len(s.Tiles)),
		MicStates:         s.MicStates,
		VideoStates:       s.VideoStates,
		ChatMessages:      make([]proto.ChatMessage, 0, len(s.ChatMessages)),
		Recording:         s.Recording,
		FocusedAttendeeID: s.FocusedAttendeeID,
		ContentShareOwner: s.ContentShareOwner,
		LocalVideo:        s.LocalVideo,
		LocalAudio:        s.LocalAudio,
		LocalSharing:      s.LocalSharing,
		ExitReason:        string(s.ExitReason),
	}
	for _, p := range s.Participants {
		out.Participants = append(out.Participants, proto.Participant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AttendeeID:  p.AttendeeID,
			MicOn:       p.MicOn,
			VideoOn:     p.VideoOn,
		})
	}
	for _, t := range s.Tiles {
		out.Tiles = append(out.Tiles, proto.Tile{
			TileID:     t.TileID,
			AttendeeID: t.AttendeeID,
			Active:     t.Active,
			Local:      t.Local,
		})
	}
	for _, m := range s.ChatMessages {
		out.ChatMessages = append(out.ChatMessages, proto.ChatMessage{
			Seq:          m.Seq,
			SenderUserID: m.SenderUserID,
			SenderID:     m.SenderAttendeeID,
			Text:         m.Text,
			TS:           m.Timestamp.UnixMilli(),
			Local:        m.Local,
		})
	}
	return out
}
