package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/metrics"
	"github.com/vovakirdan/wirechat-live/internal/store"
	"github.com/vovakirdan/wirechat-live/internal/utils"
)

// Common errors for meeting operations.
var (
	ErrInvalidDiscussion  = errors.New("space and discussion ids are required")
	ErrMeetingNotFound    = errors.New("no active meeting for discussion")
	ErrNotRegistered      = errors.New("not registered for this meeting")
	ErrMediaNotEnabled    = errors.New("media backend is not enabled")
	ErrInvalidParticipant = errors.New("user id is required")
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string
	Username string
}

// JoinResult is handed back from Join.
type JoinResult struct {
	Meeting      *store.Meeting
	Participant  *store.MeetingParticipant
	JoinInfo     *callengine.JoinInfo
	Participants []*store.MeetingParticipant
}

// Service provides meeting broker business logic.
type Service struct {
	store  store.Store
	engine callengine.Engine
	log    zerolog.Logger
	now    func() time.Time

	// mu serializes find-or-create, registration, joins and the
	// end-of-meeting decision.
	mu sync.Mutex
}

// New creates a new meeting Service.
// engine can be nil if LiveKit is not enabled.
func New(st store.Store, engine callengine.Engine, logger *zerolog.Logger) *Service {
	return &Service{
		store:  st,
		engine: engine,
		log:    log.Component(logger, "meetings"),
		now:    time.Now,
	}
}

func validDiscussion(spaceID, discussionID string) error {
	if strings.TrimSpace(spaceID) == "" || strings.TrimSpace(discussionID) == "" {
		return ErrInvalidDiscussion
	}
	return nil
}

// Start returns the active meeting of a discussion, creating it and its
// media room when none exists.
func (s *Service) Start(ctx context.Context, spaceID, discussionID string) (m *store.Meeting, err error) {
	defer func() { metrics.BrokerCalls.WithLabelValues("start", metrics.Result(err)).Inc() }()

	if err := validDiscussion(spaceID, discussionID); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, ErrMediaNotEnabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetActiveMeeting(ctx, spaceID, discussionID)
	if err != nil {
		return nil, fmt.Errorf("get active meeting: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.now()
	m = &store.Meeting{
		ID:           utils.NewMeetingID(),
		SpaceID:      spaceID,
		DiscussionID: discussionID,
		Status:       store.MeetingStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	externalRoomID, err := s.engine.CreateRoom(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("create external room: %w", err)
	}
	m.ExternalRoomID = &externalRoomID

	if err := s.store.CreateMeeting(ctx, m); err != nil {
		//nolint:errcheck // Best effort, the room expires when empty
		s.engine.EndRoom(ctx, m)
		return nil, fmt.Errorf("save meeting: %w", err)
	}

	metrics.ActiveMeetings.Inc()
	s.log.Info().Str("meeting_id", m.ID).Str("room", externalRoomID).Msg("meeting started")
	return m, nil
}

func (s *Service) activeMeeting(ctx context.Context, spaceID, discussionID string) (*store.Meeting, error) {
	if err := validDiscussion(spaceID, discussionID); err != nil {
		return nil, err
	}
	m, err := s.store.GetActiveMeeting(ctx, spaceID, discussionID)
	if err != nil {
		return nil, fmt.Errorf("get active meeting: %w", err)
	}
	if m == nil {
		return nil, ErrMeetingNotFound
	}
	return m, nil
}

// Register records user as a participant of the active meeting. Calling it
// again is harmless and brings back a user who exited.
func (s *Service) Register(ctx context.Context, spaceID, discussionID string, user Identity) (p *store.MeetingParticipant, err error) {
	defer func() { metrics.BrokerCalls.WithLabelValues("register", metrics.Result(err)).Inc() }()

	if user.UserID == "" {
		return nil, ErrInvalidParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.activeMeeting(ctx, spaceID, discussionID)
	if err != nil {
		return nil, err
	}

	p, err = s.store.GetParticipant(ctx, m.ID, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		p = &store.MeetingParticipant{
			MeetingID:    m.ID,
			UserID:       user.UserID,
			Username:     user.Username,
			RegisteredAt: s.now(),
		}
		if err := s.store.AddParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("add participant: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}

	if p.LeftAt != nil || (user.Username != "" && user.Username != p.Username) {
		p.LeftAt = nil
		if user.Username != "" {
			p.Username = user.Username
		}
		if err := s.store.UpdateParticipant(ctx, p); err != nil {
			return nil, fmt.Errorf("update participant: %w", err)
		}
	}
	return p, nil
}

// Join issues a fresh attendee identity and media credentials for a
// registered user and returns the current live roster.
func (s *Service) Join(ctx context.Context, spaceID, discussionID string, user Identity) (res *JoinResult, err error) {
	defer func() { metrics.BrokerCalls.WithLabelValues("join", metrics.Result(err)).Inc() }()

	if s.engine == nil {
		return nil, ErrMediaNotEnabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.activeMeeting(ctx, spaceID, discussionID)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetParticipant(ctx, m.ID, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}

	attendeeID := utils.NewAttendeeID()
	info, err := s.engine.GenerateJoinInfo(ctx, m, callengine.Attendee{
		AttendeeID: attendeeID,
		UserID:     p.UserID,
		Username:   p.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("generate join info: %w", err)
	}

	now := s.now()
	p.AttendeeID = &attendeeID
	p.JoinedAt = &now
	p.LeftAt = nil
	if err := s.store.UpdateParticipant(ctx, p); err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}

	roster, err := s.store.ListParticipants(ctx, m.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	s.log.Info().
		Str("meeting_id", m.ID).
		Str("user_id", p.UserID).
		Str("attendee_id", attendeeID).
		Msg("participant joined")

	return &JoinResult{
		Meeting:      m,
		Participant:  p,
		JoinInfo:     info,
		Participants: roster,
	}, nil
}

// Exit marks user as gone. It succeeds when there is no meeting or the user
// never joined. The meeting ends once every registered participant has left.
func (s *Service) Exit(ctx context.Context, spaceID, discussionID string, user Identity) (err error) {
	defer func() { metrics.BrokerCalls.WithLabelValues("exit", metrics.Result(err)).Inc() }()

	if err := validDiscussion(spaceID, discussionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.store.GetActiveMeeting(ctx, spaceID, discussionID)
	if err != nil {
		return fmt.Errorf("get active meeting: %w", err)
	}
	if m == nil {
		return nil // Already ended, idempotent
	}

	p, err := s.store.GetParticipant(ctx, m.ID, user.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get participant: %w", err)
	}

	if p.LeftAt == nil {
		now := s.now()
		p.LeftAt = &now
		p.AttendeeID = nil
		if err := s.store.UpdateParticipant(ctx, p); err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		s.log.Info().Str("meeting_id", m.ID).Str("user_id", p.UserID).Msg("participant left")
	}

	all, err := s.store.ListParticipants(ctx, m.ID, false)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	for _, other := range all {
		if other.LeftAt == nil {
			return nil
		}
	}

	return s.end(ctx, m)
}

func (s *Service) end(ctx context.Context, m *store.Meeting) error {
	now := s.now()
	m.Status = store.MeetingStatusEnded
	m.EndedAt = &now
	m.UpdatedAt = now
	if err := s.store.UpdateMeeting(ctx, m); err != nil {
		return fmt.Errorf("update meeting: %w", err)
	}
	metrics.ActiveMeetings.Dec()

	if s.engine != nil {
		if err := s.engine.EndRoom(ctx, m); err != nil {
			s.log.Warn().Err(err).Str("meeting_id", m.ID).Msg("failed to end media room")
		}
	}
	s.log.Info().Str("meeting_id", m.ID).Msg("meeting ended")
	return nil
}

// ListParticipants returns the users currently in the live channel. A
// discussion without an active meeting has an empty roster.
func (s *Service) ListParticipants(ctx context.Context, spaceID, discussionID string) (ps []*store.MeetingParticipant, err error) {
	defer func() { metrics.BrokerCalls.WithLabelValues("participants", metrics.Result(err)).Inc() }()

	m, err := s.activeMeeting(ctx, spaceID, discussionID)
	if errors.Is(err, ErrMeetingNotFound) {
		return []*store.MeetingParticipant{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, m.ID, true)
}
