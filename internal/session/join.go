package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/vovakirdan/wirechat-live/internal/media"
	"github.com/vovakirdan/wirechat-live/internal/metrics"
)

// Join runs the handshake: start, register and join against the broker, then
// dial and start the media engine. Each broker call is retried with bounded
// exponential backoff; when the handshake cannot complete the session is torn
// down and ends Closed.
func (c *Controller) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusInitializing || c.joinClaimed {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.joinClaimed = true
	c.mu.Unlock()

	joinCtx, cancel := withTimeout(ctx, c.opts.JoinTimeout)
	defer cancel()
	// An exit aborts whichever step is in flight.
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	space, discussion := c.opts.SpaceID, c.opts.DiscussionID

	if err := c.callBroker(joinCtx, "start_meeting", func(ctx context.Context) error {
		return c.broker.StartMeeting(ctx, space, discussion)
	}); err != nil {
		return c.failJoin(ctx, fmt.Errorf("start meeting: %w", err))
	}

	if err := c.callBroker(joinCtx, "register_participant", func(ctx context.Context) error {
		return c.broker.RegisterParticipant(ctx, space, discussion)
	}); err != nil {
		return c.failJoin(ctx, fmt.Errorf("register participant: %w", err))
	}

	var joined *JoinResult
	joinErr := c.callBroker(joinCtx, "join_meeting", func(ctx context.Context) error {
		res, err := c.broker.JoinMeeting(ctx, space, discussion)
		if err != nil {
			return err
		}
		joined = res
		return nil
	})

	c.mu.Lock()
	if c.status != StatusInitializing {
		c.mu.Unlock()
		return c.abandonJoin(ctx, joinErr)
	}
	if joinErr != nil {
		c.mu.Unlock()
		return c.failJoin(ctx, fmt.Errorf("join meeting: %w", joinErr))
	}
	c.setStatusLocked(StatusJoining)
	c.selfAttendee = joined.Attendee.AttendeeID
	c.selfUser = joined.Attendee.UserID
	c.participants.setSelf(c.selfAttendee, c.selfUser)
	c.tiles.selfAttendee = c.selfAttendee
	c.participants.merge(joined.Participants)
	c.participants.ensure(Participant{UserID: c.selfUser, AttendeeID: c.selfAttendee})
	c.publishLocked()
	c.mu.Unlock()

	c.log.Info().
		Str("meeting_id", joined.Meeting.MeetingID).
		Str("attendee_id", joined.Attendee.AttendeeID).
		Int("participants", len(joined.Participants)).
		Msg("meeting joined, connecting media")

	eng, err := c.dialer.Dial(joinCtx, media.JoinInfo{
		URL:        joined.Meeting.MediaURL,
		Token:      joined.Attendee.Token,
		RoomName:   joined.Meeting.RoomName,
		AttendeeID: joined.Attendee.AttendeeID,
	}, c.devices)
	if err != nil {
		return c.failJoin(ctx, fmt.Errorf("dial media engine: %w", err))
	}

	unsubs := c.subscribe(eng)
	if err := eng.Start(joinCtx); err != nil {
		releaseEngine(eng, unsubs)
		return c.failJoin(ctx, fmt.Errorf("start media engine: %w", err))
	}

	c.registerLocalDevices(joinCtx)

	c.mu.Lock()
	if c.status != StatusJoining {
		c.mu.Unlock()
		releaseEngine(eng, unsubs)
		return c.abandonJoin(ctx, nil)
	}
	c.engine = eng
	c.unsubs = unsubs
	c.setStatusLocked(StatusActive)
	c.publishLocked()
	go c.runOutbox(eng)
	c.mu.Unlock()

	c.log.Info().Msg("session active")
	return nil
}

// failJoin tears the session down after a handshake step failed. When an
// exit already started the teardown, the failure is only its echo.
func (c *Controller) failJoin(ctx context.Context, cause error) error {
	if c.ctx.Err() != nil {
		return c.abandonJoin(ctx, cause)
	}
	c.log.Error().Err(cause).Msg("join handshake failed")
	if err := c.Exit(context.WithoutCancel(ctx), ExitJoinFailed); err != nil {
		c.log.Warn().Err(err).Msg("teardown after failed join did not finish")
	}
	return fmt.Errorf("%w: %w", ErrJoinFailed, cause)
}

// abandonJoin waits for the teardown started by an exit and reports the
// session as closed. Teardown may have notified the broker before a start,
// register or join landed there, so the exit is sent once more.
func (c *Controller) abandonJoin(ctx context.Context, cause error) error {
	c.log.Info().AnErr("cause", cause).Msg("join abandoned, session exited")
	if err := c.Exit(context.WithoutCancel(ctx), ExitJoinFailed); err != nil {
		c.log.Warn().Err(err).Msg("teardown did not finish")
	}
	c.retractJoin(ctx)
	if cause != nil {
		return fmt.Errorf("%w: %w", ErrSessionClosed, cause)
	}
	return ErrSessionClosed
}

// retractJoin tells the broker the user is gone, after teardown's own exit.
func (c *Controller) retractJoin(ctx context.Context) {
	callCtx, cancel := withTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
	defer cancel()
	if err := c.broker.ExitMeeting(callCtx, c.opts.SpaceID, c.opts.DiscussionID); err != nil {
		c.log.Warn().Err(err).Msg("failed to retract join from broker")
	}
}

func releaseEngine(eng media.Engine, unsubs []media.Unsubscribe) {
	for _, unsub := range unsubs {
		unsub()
	}
	_ = eng.Stop()
}

// callBroker retries fn with exponential backoff, at most JoinAttempts times.
// Rejections from the broker are not retried.
func (c *Controller) callBroker(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	if c.opts.JoinInitialBackoff > 0 {
		policy.InitialInterval = c.opts.JoinInitialBackoff
	}
	if c.opts.JoinMaxBackoff > 0 {
		policy.MaxInterval = c.opts.JoinMaxBackoff
	}
	policy.MaxElapsedTime = 0

	retries := backoff.WithMaxRetries(policy, uint64(c.opts.JoinAttempts-1))
	attempt := 0

	return backoff.Retry(func() error {
		attempt++
		callCtx, cancel := withTimeout(ctx, c.opts.CallTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("broker call failed")
		if errors.Is(err, ErrBrokerRejected) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(retries, ctx))
}

// subscribe registers every engine handler and returns the handles.
func (c *Controller) subscribe(eng media.Engine) []media.Unsubscribe {
	return []media.Unsubscribe{
		eng.SubscribeTiles(media.TileHandler{
			OnTileUpdated: c.handleTileUpdated,
			OnTileRemoved: c.handleTileRemoved,
		}),
		eng.SubscribePresence(c.handlePresence),
		eng.SubscribeVolume(c.handleVolume),
		eng.SubscribeMessages(c.opts.ChatTopic, c.handleChatMessage),
		eng.SubscribeMessages(c.opts.RecordingTopic, c.handleRecordingMessage),
	}
}

// registerLocalDevices picks the first visible microphone so a later unmute
// has an input ready. Missing devices are not an error here.
func (c *Controller) registerLocalDevices(ctx context.Context) {
	mics, err := c.devices.ListAudioInputs(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to list audio inputs")
		return
	}
	if len(mics) == 0 {
		c.log.Debug().Msg("no audio input visible yet")
		return
	}
	if err := c.devices.ChooseAudioInput(ctx, mics[0]); err != nil {
		c.log.Warn().Err(err).Msg("failed to choose audio input")
	}
}

func (c *Controller) handleTileUpdated(u media.TileUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() {
		return
	}
	if c.tiles.update(u) {
		c.publishLocked()
	}
}

func (c *Controller) handleTileRemoved(tileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() {
		return
	}
	if _, ok := c.tiles.remove(tileID); ok {
		c.publishLocked()
	}
}

// handlePresence records the delta and schedules a roster re-validation.
// The local attendee leaving never touches the roster.
func (c *Controller) handlePresence(ev media.PresenceEvent) {
	c.mu.Lock()
	if !c.status.live() {
		c.mu.Unlock()
		return
	}
	if !ev.Present && ev.AttendeeID == c.selfAttendee {
		c.mu.Unlock()
		c.log.Debug().Str("attendee_id", ev.AttendeeID).Msg("ignoring own departure for roster")
		return
	}
	if ev.Present {
		c.participants.clearExited(ev.AttendeeID)
		// A rejoining user is reachable under the new attendee before the
		// refetch lands.
		if c.participants.rebind(ev.ExternalUserID, ev.AttendeeID) {
			c.publishLocked()
		}
	} else {
		c.participants.markExited(ev.AttendeeID)
	}
	c.mu.Unlock()

	c.goAsync(func() { c.refetchRoster(ev.Present) })
}

func (c *Controller) refetchRoster(present bool) {
	ctx, cancel := withTimeout(c.ctx, c.opts.CallTimeout)
	defer cancel()

	fetched, err := c.roster.FetchParticipants(ctx, c.opts.SpaceID, c.opts.DiscussionID)
	metrics.RosterRefetches.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		c.log.Warn().Err(err).Msg("roster refetch failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() {
		return
	}
	if present {
		c.participants.merge(fetched)
	} else {
		c.participants.intersect(fetched)
	}
	if c.focused != "" && !c.participants.hasAttendee(c.focused) {
		c.focused = ""
	}
	c.publishLocked()
}

func (c *Controller) handleVolume(ev media.VolumeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() || ev.AttendeeID == c.selfAttendee {
		return
	}
	if c.participants.setMic(ev.AttendeeID, !ev.Muted) {
		c.publishLocked()
	}
}

func (c *Controller) handleChatMessage(msg media.DataMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() || msg.SenderAttendeeID == c.selfAttendee {
		return
	}
	var senderUser string
	if p, ok := c.participants.byAttendeeID(msg.SenderAttendeeID); ok {
		senderUser = p.UserID
	}
	c.chat.append(ChatMessage{
		SenderUserID:     senderUser,
		SenderAttendeeID: msg.SenderAttendeeID,
		Text:             string(msg.Payload),
		Timestamp:        c.opts.Clock(),
	})
	c.publishLocked()
}

func (c *Controller) handleRecordingMessage(msg media.DataMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.status.live() {
		return
	}
	if c.recording.apply(msg.Payload) {
		c.log.Info().Bool("recording", c.recording.on).Msg("recording state changed")
		c.publishLocked()
	}
}
