package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-live/internal/auth"
	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
	"github.com/vovakirdan/wirechat-live/internal/store"
)

// testEngine hands out deterministic media credentials.
type testEngine struct{}

func (testEngine) CreateRoom(_ context.Context, m *store.Meeting) (string, error) {
	return "room-" + m.ID, nil
}

func (testEngine) EndRoom(context.Context, *store.Meeting) error { return nil }

func (testEngine) GenerateJoinInfo(_ context.Context, m *store.Meeting, a callengine.Attendee) (*callengine.JoinInfo, error) {
	return &callengine.JoinInfo{
		URL:        "ws://media.test",
		Token:      "media-" + a.AttendeeID,
		RoomName:   *m.ExternalRoomID,
		AttendeeID: a.AttendeeID,
	}, nil
}

const meetingPath = "/api/spaces/s1/discussions/d1/meeting"

type testServer struct {
	handler   http.Handler
	jwtConfig *auth.JWTConfig
}

func newTestServer(t *testing.T, engine callengine.Engine, rateLimit int) *testServer {
	t.Helper()

	st := createTestStore(t)
	jwtConfig := createTestJWTConfig(t)
	svc := meetings.New(st, engine, log.Nop())

	cfg := config.BrokerConfig{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		RateLimit:         rateLimit,
	}
	server := NewServer(svc, jwtConfig, cfg, log.Nop())
	return &testServer{handler: server.Handler, jwtConfig: jwtConfig}
}

func (s *testServer) token(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := auth.GenerateToken(s.jwtConfig, userID, username)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func (s *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestMeetingFlow(t *testing.T) {
	srv := newTestServer(t, testEngine{}, 0)
	alice := srv.token(t, "u-alice", "alice")
	bob := srv.token(t, "u-bob", "bob")

	resp := srv.do(http.MethodPost, meetingPath+"/start", alice)
	if resp.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	started := decode[proto.MeetingResponse](t, resp)
	if started.Status != "active" || started.SpaceID != "s1" || started.DiscussionID != "d1" {
		t.Fatalf("unexpected meeting %+v", started)
	}

	resp = srv.do(http.MethodPost, meetingPath+"/join", alice)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("join before register: expected 403, got %d", resp.Code)
	}

	for _, token := range []string{alice, bob} {
		resp = srv.do(http.MethodPost, meetingPath+"/register", token)
		if resp.Code != http.StatusOK {
			t.Fatalf("register: expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
	}

	resp = srv.do(http.MethodPost, meetingPath+"/join", alice)
	if resp.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	joined := decode[proto.JoinResponse](t, resp)
	if joined.Meeting.ID != started.ID {
		t.Fatalf("join returned meeting %s, want %s", joined.Meeting.ID, started.ID)
	}
	if joined.Meeting.MediaURL != "ws://media.test" {
		t.Fatalf("unexpected media url %q", joined.Meeting.MediaURL)
	}
	if joined.Attendee.UserID != "u-alice" || joined.Attendee.Token != "media-"+joined.Attendee.AttendeeID {
		t.Fatalf("unexpected attendee %+v", joined.Attendee)
	}
	if len(joined.Participants) != 1 || joined.Participants[0].AttendeeID != joined.Attendee.AttendeeID {
		t.Fatalf("expected alice alone in roster, got %+v", joined.Participants)
	}

	resp = srv.do(http.MethodGet, meetingPath+"/participants", bob)
	if resp.Code != http.StatusOK {
		t.Fatalf("participants: expected 200, got %d", resp.Code)
	}
	roster := decode[proto.ParticipantsResponse](t, resp)
	if len(roster.Participants) != 1 || roster.Participants[0].UserID != "u-alice" || !roster.Participants[0].Joined {
		t.Fatalf("unexpected roster %+v", roster.Participants)
	}

	for i := 0; i < 2; i++ {
		resp = srv.do(http.MethodPost, meetingPath+"/exit", alice)
		if resp.Code != http.StatusNoContent {
			t.Fatalf("exit #%d: expected 204, got %d", i+1, resp.Code)
		}
	}

	resp = srv.do(http.MethodGet, meetingPath+"/participants", bob)
	roster = decode[proto.ParticipantsResponse](t, resp)
	if len(roster.Participants) != 0 {
		t.Fatalf("expected empty roster after exit, got %+v", roster.Participants)
	}
}

func TestMeetingErrors(t *testing.T) {
	srv := newTestServer(t, testEngine{}, 0)
	alice := srv.token(t, "u-alice", "alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"missing token", http.MethodPost, meetingPath + "/start", "", http.StatusUnauthorized},
		{"bad token", http.MethodPost, meetingPath + "/start", "garbage", http.StatusUnauthorized},
		{"register without meeting", http.MethodPost, meetingPath + "/register", alice, http.StatusNotFound},
		{"join without meeting", http.MethodPost, meetingPath + "/join", alice, http.StatusNotFound},
		{"exit without meeting", http.MethodPost, meetingPath + "/exit", alice, http.StatusNoContent},
		{"blank discussion", http.MethodPost, "/api/spaces/s1/discussions/%20/meeting/start", alice, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(tt.method, tt.path, tt.token)
			if resp.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestMediaDisabled(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	resp := srv.do(http.MethodPost, meetingPath+"/start", srv.token(t, "u-alice", "alice"))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, testEngine{}, 2)
	alice := srv.token(t, "u-alice", "alice")
	bob := srv.token(t, "u-bob", "bob")

	for i := 0; i < 2; i++ {
		if resp := srv.do(http.MethodGet, meetingPath+"/participants", alice); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.Code)
		}
	}
	if resp := srv.do(http.MethodGet, meetingPath+"/participants", alice); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp := srv.do(http.MethodGet, meetingPath+"/participants", bob); resp.Code != http.StatusOK {
		t.Fatalf("other users keep their own budget, got %d", resp.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testEngine{}, 0)
	resp := srv.do(http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK || resp.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", resp.Code, resp.Body.String())
	}
}
