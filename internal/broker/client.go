// Package broker is the HTTP client the session controller uses to reach
// the meeting broker and the discussion roster.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/session"
)

// Client talks to the meeting broker API on behalf of one user.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New creates a broker client for baseURL authenticating with token.
func New(baseURL, token string, timeout time.Duration, logger *zerolog.Logger) *Client {
	c := &Client{log: log.Component(logger, "broker-client")}

	c.http = resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("User-Agent", "wirechat-live/1.0").
		SetError(&proto.ErrorResponse{})
	if timeout > 0 {
		c.http.SetTimeout(timeout)
	}
	c.http.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		c.log.Debug().
			Str("method", r.Request.Method).
			Str("url", r.Request.URL).
			Int("status", r.StatusCode()).
			Dur("latency", r.Time()).
			Msg("broker request")
		return nil
	})
	return c
}

func meetingPath(spaceID, discussionID, op string) string {
	return fmt.Sprintf("/api/spaces/%s/discussions/%s/meeting/%s",
		url.PathEscape(spaceID), url.PathEscape(discussionID), op)
}

// StartMeeting finds or creates the discussion meeting.
func (c *Client) StartMeeting(ctx context.Context, spaceID, discussionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&proto.MeetingResponse{}).
		Post(meetingPath(spaceID, discussionID, "start"))
	return check("start meeting", resp, err)
}

// RegisterParticipant adds the caller to the meeting roster.
func (c *Client) RegisterParticipant(ctx context.Context, spaceID, discussionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&proto.ParticipantResponse{}).
		Post(meetingPath(spaceID, discussionID, "register"))
	return check("register participant", resp, err)
}

// JoinMeeting fetches media credentials and the live roster.
func (c *Client) JoinMeeting(ctx context.Context, spaceID, discussionID string) (*session.JoinResult, error) {
	var out proto.JoinResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post(meetingPath(spaceID, discussionID, "join"))
	if err := check("join meeting", resp, err); err != nil {
		return nil, err
	}

	roomName := ""
	if out.Meeting.ExternalRoomID != nil {
		roomName = *out.Meeting.ExternalRoomID
	}
	return &session.JoinResult{
		Meeting: session.MeetingInfo{
			MeetingID: out.Meeting.ID,
			RoomName:  roomName,
			MediaURL:  out.Meeting.MediaURL,
		},
		Attendee: session.AttendeeInfo{
			AttendeeID: out.Attendee.AttendeeID,
			UserID:     out.Attendee.UserID,
			Token:      out.Attendee.Token,
		},
		Participants: toParticipants(out.Participants),
	}, nil
}

// ExitMeeting tells the broker the caller left. The broker treats repeats
// and unknown meetings as success.
func (c *Client) ExitMeeting(ctx context.Context, spaceID, discussionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Post(meetingPath(spaceID, discussionID, "exit"))
	return check("exit meeting", resp, err)
}

// FetchParticipants returns the users currently in the live channel.
func (c *Client) FetchParticipants(ctx context.Context, spaceID, discussionID string) ([]session.Participant, error) {
	var out proto.ParticipantsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(meetingPath(spaceID, discussionID, "participants"))
	if err := check("fetch participants", resp, err); err != nil {
		return nil, err
	}
	return toParticipants(out.Participants), nil
}

func toParticipants(in []proto.ParticipantResponse) []session.Participant {
	out := make([]session.Participant, 0, len(in))
	for _, p := range in {
		out = append(out, session.Participant{
			UserID:      p.UserID,
			DisplayName: p.Username,
			AttendeeID:  p.AttendeeID,
		})
	}
	return out
}

// check turns a transport failure or error status into an error. Client
// errors other than 408 and 429 are marked as rejected so the caller does
// not retry them.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*proto.ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}

	code := resp.StatusCode()
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w (status %d): %s", op, session.ErrBrokerRejected, code, msg)
	}
	return fmt.Errorf("%s: status %d: %s", op, code, msg)
}

var (
	_ session.Broker = (*Client)(nil)
	_ session.Roster = (*Client)(nil)
)
