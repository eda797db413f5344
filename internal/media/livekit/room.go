package livekit

import (
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

// sdkRoom adapts *lksdk.Room to room.
type sdkRoom struct {
	room *lksdk.Room

	mu   sync.Mutex
	pubs map[string]*lksdk.LocalTrackPublication
}

// connectSDK joins a LiveKit room with the server SDK.
func connectSDK(url, token string, ev roomEvents) (room, error) {
	cb := &lksdk.RoomCallback{
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			ev.participantConnected(rp.Identity(), rp.Metadata())
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			ev.participantDisconnected(rp.Identity())
		},
		OnDisconnected: ev.disconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				ev.trackAdded(rp.Identity(), toRemoteTrack(pub))
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				ev.trackRemoved(rp.Identity(), pub.SID())
			},
			OnTrackMuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				ev.trackMuted(p.Identity(), toRemoteTrack(pub))
			},
			OnTrackUnmuted: func(pub lksdk.TrackPublication, p lksdk.Participant) {
				ev.trackMuted(p.Identity(), toRemoteTrack(pub))
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				user, ok := data.(*lksdk.UserDataPacket)
				if !ok {
					return
				}
				ev.dataReceived(params.SenderIdentity, user.Topic, user.Payload)
			},
		},
	}

	r, err := lksdk.ConnectToRoomWithToken(url, token, cb, lksdk.WithAutoSubscribe(false))
	if err != nil {
		return nil, err
	}
	return &sdkRoom{room: r, pubs: make(map[string]*lksdk.LocalTrackPublication)}, nil
}

func toRemoteTrack(pub lksdk.TrackPublication) remoteTrack {
	kind := media.DeviceAudioInput
	if pub.Kind() == lksdk.TrackKindVideo {
		kind = media.DeviceVideoInput
	}
	return remoteTrack{
		SID:    pub.SID(),
		Kind:   kind,
		Source: pub.Source(),
		Muted:  pub.IsMuted(),
	}
}

func (r *sdkRoom) Remotes() []remoteParticipant {
	var out []remoteParticipant
	for _, rp := range r.room.GetRemoteParticipants() {
		p := remoteParticipant{Identity: rp.Identity(), UserID: rp.Metadata()}
		for _, pub := range rp.TrackPublications() {
			p.Tracks = append(p.Tracks, toRemoteTrack(pub))
		}
		out = append(out, p)
	}
	return out
}

func (r *sdkRoom) Publish(track webrtc.TrackLocal, name string, source livekit.TrackSource) (string, error) {
	pub, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: source,
	})
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.pubs[pub.SID()] = pub
	r.mu.Unlock()
	return pub.SID(), nil
}

func (r *sdkRoom) Unpublish(sid string) error {
	r.mu.Lock()
	delete(r.pubs, sid)
	r.mu.Unlock()
	return r.room.LocalParticipant.UnpublishTrack(sid)
}

func (r *sdkRoom) SetMuted(sid string, muted bool) error {
	r.mu.Lock()
	pub, ok := r.pubs[sid]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("track %s is not published", sid)
	}
	pub.SetMuted(muted)
	return nil
}

func (r *sdkRoom) SendData(topic string, payload []byte) error {
	return r.room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishTopic(topic),
		lksdk.WithDataPublishReliable(true),
	)
}

func (r *sdkRoom) Disconnect() {
	r.room.Disconnect()
}
