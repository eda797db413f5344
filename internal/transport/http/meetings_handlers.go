package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/proto"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
)

// ErrorResponse represents an error response.
type ErrorResponse = proto.ErrorResponse

// MeetingHandlers provides HTTP handlers for the meeting broker endpoints.
type MeetingHandlers struct {
	service *meetings.Service
	log     *zerolog.Logger
}

// NewMeetingHandlers creates a new meeting handlers instance.
func NewMeetingHandlers(svc *meetings.Service, logger *zerolog.Logger) *MeetingHandlers {
	return &MeetingHandlers{
		service: svc,
		log:     logger,
	}
}

func discussionParams(c *gin.Context) (spaceID, discussionID string) {
	return c.Param("space_id"), c.Param("discussion_id")
}

// Start handles creating or fetching the discussion meeting.
func (h *MeetingHandlers) Start(c *gin.Context) {
	spaceID, discussionID := discussionParams(c)

	m, err := h.service.Start(c.Request.Context(), spaceID, discussionID)
	if err != nil {
		h.writeError(c, "start", err)
		return
	}

	c.JSON(http.StatusOK, meetingToResponse(m))
}

// Register handles adding the caller to the meeting roster.
func (h *MeetingHandlers) Register(c *gin.Context) {
	user, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	spaceID, discussionID := discussionParams(c)

	p, err := h.service.Register(c.Request.Context(), spaceID, discussionID, user)
	if err != nil {
		h.writeError(c, "register", err)
		return
	}

	c.JSON(http.StatusOK, participantToResponse(p))
}

// Join handles issuing media credentials to a registered caller.
func (h *MeetingHandlers) Join(c *gin.Context) {
	user, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	spaceID, discussionID := discussionParams(c)

	res, err := h.service.Join(c.Request.Context(), spaceID, discussionID, user)
	if err != nil {
		h.writeError(c, "join", err)
		return
	}

	c.JSON(http.StatusOK, joinToResponse(res))
}

// Exit handles the caller leaving the meeting. Repeated calls succeed.
func (h *MeetingHandlers) Exit(c *gin.Context) {
	user, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	spaceID, discussionID := discussionParams(c)

	if err := h.service.Exit(c.Request.Context(), spaceID, discussionID, user); err != nil {
		h.writeError(c, "exit", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Participants handles listing the users currently in the meeting.
func (h *MeetingHandlers) Participants(c *gin.Context) {
	spaceID, discussionID := discussionParams(c)

	ps, err := h.service.ListParticipants(c.Request.Context(), spaceID, discussionID)
	if err != nil {
		h.writeError(c, "participants", err)
		return
	}

	c.JSON(http.StatusOK, proto.ParticipantsResponse{Participants: participantsToResponse(ps)})
}

func (h *MeetingHandlers) writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, meetings.ErrInvalidDiscussion), errors.Is(err, meetings.ErrInvalidParticipant):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, meetings.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, meetings.ErrNotRegistered):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, meetings.ErrMediaNotEnabled):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Str("op", op).Msg("meeting operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
