package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-live/internal/auth"
	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
	"github.com/vovakirdan/wirechat-live/internal/session"
	"github.com/vovakirdan/wirechat-live/internal/store"
	"github.com/vovakirdan/wirechat-live/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-live/internal/transport/http"
)

type stubEngine struct{}

func (stubEngine) CreateRoom(_ context.Context, m *store.Meeting) (string, error) {
	return "room-" + m.ID, nil
}

func (stubEngine) EndRoom(context.Context, *store.Meeting) error { return nil }

func (stubEngine) GenerateJoinInfo(_ context.Context, m *store.Meeting, a callengine.Attendee) (*callengine.JoinInfo, error) {
	return &callengine.JoinInfo{
		URL:        "ws://media.test",
		Token:      "media-token",
		RoomName:   *m.ExternalRoomID,
		AttendeeID: a.AttendeeID,
	}, nil
}

func newBroker(t *testing.T) (*httptest.Server, *auth.JWTConfig) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{Secret: []byte("secret"), Issuer: "test", Audience: "test", TTL: time.Hour}
	svc := meetings.New(st, stubEngine{}, log.Nop())
	server := transporthttp.NewServer(svc, jwtConfig, config.BrokerConfig{}, log.Nop())

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts, jwtConfig
}

func newUserClient(t *testing.T, baseURL string, jwtConfig *auth.JWTConfig, userID, username string) *Client {
	t.Helper()
	token, err := auth.GenerateToken(jwtConfig, userID, username)
	require.NoError(t, err)
	return New(baseURL, token, 5*time.Second, log.Nop())
}

func TestClientAgainstBroker(t *testing.T) {
	ts, jwtConfig := newBroker(t)
	ctx := context.Background()

	alice := newUserClient(t, ts.URL, jwtConfig, "u-alice", "alice")
	bob := newUserClient(t, ts.URL, jwtConfig, "u-bob", "bob")

	for _, c := range []*Client{alice, bob} {
		require.NoError(t, c.StartMeeting(ctx, "space", "disc"))
		require.NoError(t, c.RegisterParticipant(ctx, "space", "disc"))
	}

	first, err := alice.JoinMeeting(ctx, "space", "disc")
	require.NoError(t, err)
	require.Equal(t, "u-alice", first.Attendee.UserID)
	require.NotEmpty(t, first.Attendee.AttendeeID)
	require.Equal(t, "media-token", first.Attendee.Token)
	require.Equal(t, "ws://media.test", first.Meeting.MediaURL)
	require.NotEmpty(t, first.Meeting.RoomName)

	second, err := bob.JoinMeeting(ctx, "space", "disc")
	require.NoError(t, err)
	require.Len(t, second.Participants, 2)
	require.Equal(t, first.Meeting.MeetingID, second.Meeting.MeetingID)

	roster, err := alice.FetchParticipants(ctx, "space", "disc")
	require.NoError(t, err)
	require.ElementsMatch(t, []session.Participant{
		{UserID: "u-alice", DisplayName: "alice", AttendeeID: first.Attendee.AttendeeID},
		{UserID: "u-bob", DisplayName: "bob", AttendeeID: second.Attendee.AttendeeID},
	}, roster)

	require.NoError(t, bob.ExitMeeting(ctx, "space", "disc"))
	require.NoError(t, bob.ExitMeeting(ctx, "space", "disc"))

	roster, err = alice.FetchParticipants(ctx, "space", "disc")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "u-alice", roster[0].UserID)
}

func TestClientRejections(t *testing.T) {
	ts, jwtConfig := newBroker(t)
	ctx := context.Background()

	anonymous := New(ts.URL, "not-a-token", time.Second, log.Nop())
	err := anonymous.StartMeeting(ctx, "space", "disc")
	require.ErrorIs(t, err, session.ErrBrokerRejected)

	alice := newUserClient(t, ts.URL, jwtConfig, "u-alice", "alice")
	_, err = alice.JoinMeeting(ctx, "space", "disc")
	require.ErrorIs(t, err, session.ErrBrokerRejected)
	require.Contains(t, err.Error(), "no active meeting")
}

func TestServerErrorsAreRetryable(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		rejected bool
	}{
		{"internal error", http.StatusInternalServerError, false},
		{"unavailable", http.StatusServiceUnavailable, false},
		{"too many requests", http.StatusTooManyRequests, false},
		{"forbidden", http.StatusForbidden, true},
		{"conflict", http.StatusConflict, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer ts.Close()

			err := New(ts.URL, "token", time.Second, log.Nop()).ExitMeeting(context.Background(), "s", "d")
			require.Error(t, err)
			require.Contains(t, err.Error(), "nope")
			require.Equal(t, tt.rejected, errors.Is(err, session.ErrBrokerRejected))
		})
	}
}

func TestClientHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(ts.URL, "token", 0, log.Nop()).FetchParticipants(ctx, "s", "d")
	require.Error(t, err)
	require.False(t, errors.Is(err, session.ErrBrokerRejected))
}
