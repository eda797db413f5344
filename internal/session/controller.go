// Package session implements the live discussion session controller: the
// join handshake, reconciliation of engine events into a participant roster,
// and a teardown that runs exactly once whichever exit path fires first.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/log"
	"github.com/vovakirdan/wirechat-live/internal/media"
	"github.com/vovakirdan/wirechat-live/internal/metrics"
)

// Options configures a Controller.
type Options struct {
	SpaceID      string
	DiscussionID string

	ChatTopic      string
	RecordingTopic string

	JoinAttempts       int
	JoinInitialBackoff time.Duration
	JoinMaxBackoff     time.Duration
	JoinTimeout        time.Duration
	CallTimeout        time.Duration
	CleanupTimeout     time.Duration

	// Clock stamps chat messages. Defaults to time.Now.
	Clock func() time.Time
}

// OptionsFromConfig maps the session section of the config to Options.
func OptionsFromConfig(cfg config.SessionConfig) Options {
	return Options{
		SpaceID:            cfg.SpaceID,
		DiscussionID:       cfg.DiscussionID,
		ChatTopic:          cfg.ChatTopic,
		RecordingTopic:     cfg.RecordingTopic,
		JoinAttempts:       cfg.JoinAttempts,
		JoinInitialBackoff: cfg.JoinInitialBackoff,
		JoinMaxBackoff:     cfg.JoinMaxBackoff,
		JoinTimeout:        cfg.JoinTimeout,
		CallTimeout:        cfg.CallTimeout,
		CleanupTimeout:     cfg.CleanupTimeout,
	}
}

func (o *Options) applyDefaults() {
	if o.ChatTopic == "" {
		o.ChatTopic = "chat"
	}
	if o.RecordingTopic == "" {
		o.RecordingTopic = "recording"
	}
	if o.JoinAttempts < 1 {
		o.JoinAttempts = 1
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Broker  Broker
	Roster  Roster
	Dialer  media.Dialer
	Devices media.DeviceController
	Logger  *zerolog.Logger
}

// Controller owns one live session. Engine callbacks and user intents are
// serialized through mu; slow calls (roster fetches, broker, engine I/O) run
// outside the lock.
type Controller struct {
	opts    Options
	broker  Broker
	roster  Roster
	dialer  media.Dialer
	devices media.DeviceController
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	status       Status
	joinClaimed  bool
	engine       media.Engine
	unsubs       []media.Unsubscribe
	selfAttendee string
	selfUser     string
	participants *roster
	tiles        *tileRegistry
	chat         *chatChannel
	recording    *recordingSignal
	focused      string
	localVideo   bool
	localAudio   bool
	localSharing bool
	exitReason   ExitReason

	// outbox holds local chat messages waiting for broadcast, drained in
	// order by runOutbox.
	outbox     []outgoingChat
	outboxWake chan struct{}

	pub     *publisher
	cleanup *cleanupCoordinator
	wg      sync.WaitGroup
}

// New builds a Controller in the Initializing state.
func New(opts Options, deps Deps) (*Controller, error) {
	switch {
	case deps.Broker == nil:
		return nil, fmt.Errorf("%w: broker", ErrMissingDependency)
	case deps.Roster == nil:
		return nil, fmt.Errorf("%w: roster", ErrMissingDependency)
	case deps.Dialer == nil:
		return nil, fmt.Errorf("%w: dialer", ErrMissingDependency)
	case deps.Devices == nil:
		return nil, fmt.Errorf("%w: devices", ErrMissingDependency)
	}
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.Component(deps.Logger, "session").With().
		Str("space_id", opts.SpaceID).
		Str("discussion_id", opts.DiscussionID).
		Logger()

	return &Controller{
		opts:         opts,
		broker:       deps.Broker,
		roster:       deps.Roster,
		dialer:       deps.Dialer,
		devices:      deps.Devices,
		log:          logger,
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusInitializing,
		participants: newRoster(),
		tiles:        newTileRegistry(),
		chat:         newChatChannel(),
		recording:    &recordingSignal{},
		outboxWake:   make(chan struct{}, 1),
		pub:          newPublisher(),
		cleanup:      newCleanupCoordinator(),
	}, nil
}

// Status returns the current lifecycle stage.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a consistent copy of the session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe streams snapshots, starting with the current one. The channel is
// closed once the session is Closed or the handle is invoked.
func (c *Controller) Subscribe() (<-chan Snapshot, media.Unsubscribe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub.subscribe(c.snapshotLocked())
}

// Done is closed when teardown has completed.
func (c *Controller) Done() <-chan struct{} {
	return c.cleanup.finished()
}

// ToggleVideo flips the local camera. It clears any focused tile and is a
// no-op unless the session is Active.
func (c *Controller) ToggleVideo(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusActive || c.engine == nil {
		c.mu.Unlock()
		return
	}
	eng := c.engine
	turnOn := !c.localVideo
	c.focused = ""
	c.publishLocked()
	c.mu.Unlock()

	if turnOn {
		if err := c.startLocalVideo(ctx, eng); err != nil {
			c.log.Warn().Err(err).Msg("failed to start local video")
			return
		}
	} else if err := eng.StopLocalVideo(); err != nil {
		c.log.Warn().Err(err).Msg("failed to stop local video")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusActive {
		c.localVideo = turnOn
		c.publishLocked()
	}
}

func (c *Controller) startLocalVideo(ctx context.Context, eng media.Engine) error {
	cams, err := c.devices.ListVideoInputs(ctx)
	if err != nil {
		return fmt.Errorf("list video inputs: %w", err)
	}
	if len(cams) == 0 {
		if err := c.devices.RequestPermission(ctx, media.DeviceVideoInput); err != nil {
			return fmt.Errorf("request camera permission: %w", err)
		}
		if cams, err = c.devices.ListVideoInputs(ctx); err != nil {
			return fmt.Errorf("list video inputs: %w", err)
		}
		if len(cams) == 0 {
			return media.ErrNoDevice
		}
	}
	if err := c.devices.ChooseVideoInput(ctx, cams[0]); err != nil {
		return fmt.Errorf("choose video input: %w", err)
	}
	return eng.StartLocalVideo(ctx)
}

// ToggleAudio mutes immediately when the microphone is on. Otherwise it makes
// sure an audio input exists (asking for permission once) before unmuting;
// with no input it gives up quietly.
func (c *Controller) ToggleAudio(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusActive || c.engine == nil {
		c.mu.Unlock()
		return
	}
	eng := c.engine
	if c.localAudio {
		c.localAudio = false
		c.participants.setMic(c.selfAttendee, false)
		c.publishLocked()
		c.mu.Unlock()

		c.goAsync(func() {
			if err := eng.MuteLocalAudio(); err != nil {
				c.log.Warn().Err(err).Msg("failed to mute local audio")
			}
		})
		return
	}
	c.mu.Unlock()

	mics, err := c.devices.ListAudioInputs(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to list audio inputs")
		return
	}
	if len(mics) == 0 {
		if err := c.devices.RequestPermission(ctx, media.DeviceAudioInput); err != nil {
			c.log.Info().Err(err).Msg("microphone permission not granted")
		}
		if mics, err = c.devices.ListAudioInputs(ctx); err != nil {
			c.log.Warn().Err(err).Msg("failed to list audio inputs")
			return
		}
		if len(mics) == 0 {
			c.log.Info().Msg("no audio input available, microphone stays off")
			return
		}
	}
	if err := c.devices.ChooseAudioInput(ctx, mics[0]); err != nil {
		c.log.Warn().Err(err).Msg("failed to choose audio input")
		return
	}
	if err := eng.UnmuteLocalAudio(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to unmute local audio")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusActive {
		c.localAudio = true
		c.participants.setMic(c.selfAttendee, true)
		c.publishLocked()
	}
}

// StartContentShare starts a screen share. The share flag only flips on
// success.
func (c *Controller) StartContentShare(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusActive || c.engine == nil || c.localSharing {
		c.mu.Unlock()
		return
	}
	eng := c.engine
	c.mu.Unlock()

	if err := eng.StartContentShare(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to start content share")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusActive {
		c.localSharing = true
		c.publishLocked()
	}
}

// StopContentShare ends a running screen share.
func (c *Controller) StopContentShare(_ context.Context) {
	c.mu.Lock()
	if c.status != StatusActive || c.engine == nil || !c.localSharing {
		c.mu.Unlock()
		return
	}
	eng := c.engine
	c.mu.Unlock()

	if err := eng.StopContentShare(); err != nil {
		c.log.Warn().Err(err).Msg("failed to stop content share")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusActive {
		c.localSharing = false
		c.publishLocked()
	}
}

// SendChatMessage appends text to the timeline right away and queues it for
// broadcast. Broadcasts go out one at a time in timeline order; a failed one
// is logged, not retried, and the message stays in the timeline.
func (c *Controller) SendChatMessage(_ context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusActive || c.engine == nil {
		return
	}
	msg := c.chat.append(ChatMessage{
		SenderUserID:     c.selfUser,
		SenderAttendeeID: c.selfAttendee,
		Text:             text,
		Timestamp:        c.opts.Clock(),
		Local:            true,
	})
	c.publishLocked()

	c.wg.Add(1)
	c.outbox = append(c.outbox, outgoingChat{seq: msg.Seq, text: text})
	select {
	case c.outboxWake <- struct{}{}:
	default:
	}
}

type outgoingChat struct {
	seq  uint64
	text string
}

// runOutbox broadcasts queued chat messages until teardown cancels the
// session context. Messages still queued at that point are dropped.
func (c *Controller) runOutbox(eng media.Engine) {
	for {
		c.mu.Lock()
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()

		for _, m := range batch {
			c.broadcastChat(eng, m)
			c.wg.Done()
		}

		select {
		case <-c.ctx.Done():
			c.mu.Lock()
			dropped := len(c.outbox)
			c.outbox = nil
			c.mu.Unlock()
			if dropped > 0 {
				c.log.Debug().Int("dropped", dropped).Msg("chat broadcasts dropped on exit")
			}
			c.wg.Add(-dropped)
			return
		case <-c.outboxWake:
		}
	}
}

func (c *Controller) broadcastChat(eng media.Engine, m outgoingChat) {
	if c.ctx.Err() != nil {
		return
	}
	ctx, cancel := withTimeout(c.ctx, c.opts.CallTimeout)
	defer cancel()
	if err := eng.SendMessage(ctx, c.opts.ChatTopic, []byte(m.text)); err != nil {
		c.log.Warn().Err(err).Uint64("seq", m.seq).Msg("failed to broadcast chat message")
	}
}

// SetFocusedParticipant selects the tile shown on its own. An empty id or an
// attendee missing from the roster clears the focus.
func (c *Controller) SetFocusedParticipant(attendeeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if attendeeID != "" && !c.participants.hasAttendee(attendeeID) {
		attendeeID = ""
	}
	if c.focused == attendeeID {
		return
	}
	c.focused = attendeeID
	c.publishLocked()
}

// Leave tears the session down. When it returns the caller may navigate away.
func (c *Controller) Leave(ctx context.Context) error {
	return c.Exit(ctx, ExitLeave)
}

// Exit is the one teardown entry shared by every exit path. The first call
// runs the teardown; later and concurrent calls wait for it.
func (c *Controller) Exit(ctx context.Context, reason ExitReason) error {
	first, err := c.cleanup.trigger(ctx, func() { c.teardown(reason) })
	if !first {
		c.log.Debug().Str("reason", string(reason)).Msg("exit already in progress")
	}
	return err
}

func (c *Controller) teardown(reason ExitReason) {
	c.mu.Lock()
	eng := c.engine
	c.engine = nil
	unsubs := c.unsubs
	c.unsubs = nil
	c.exitReason = reason
	c.setStatusLocked(StatusCleaning)
	// A done ctx always comes with a status past Joining.
	c.cancel()
	c.publishLocked()
	c.mu.Unlock()

	metrics.CleanupRuns.WithLabelValues(string(reason)).Inc()
	c.log.Info().Str("reason", string(reason)).Bool("engine", eng != nil).Msg("session teardown started")

	for _, unsub := range unsubs {
		unsub()
	}

	ctx, cancel := withTimeout(context.Background(), c.opts.CleanupTimeout)
	defer cancel()

	if eng != nil {
		c.step("stop_local_video", eng.StopLocalVideo)
		c.step("stop_engine", eng.Stop)
	}

	cams, err := c.devices.ListVideoInputs(ctx)
	if err != nil {
		c.stepFailed("list_video_inputs", err)
	}
	for _, cam := range cams {
		c.step("release_tracks", func() error { return c.devices.StopTracks(cam) })
	}
	c.step("destroy_devices", c.devices.Destroy)

	c.step("exit_meeting", func() error {
		return c.broker.ExitMeeting(ctx, c.opts.SpaceID, c.opts.DiscussionID)
	})

	c.mu.Lock()
	c.tiles.clearContentOwner()
	c.setStatusLocked(StatusClosed)
	c.participants = newRoster()
	c.tiles = newTileRegistry()
	c.chat = newChatChannel()
	c.recording = &recordingSignal{}
	c.focused = ""
	c.localVideo = false
	c.localAudio = false
	c.localSharing = false
	c.publishLocked()
	c.pub.closeAll()
	c.mu.Unlock()

	c.log.Info().Str("reason", string(reason)).Msg("session closed")
}

func (c *Controller) step(name string, fn func() error) {
	if err := fn(); err != nil {
		c.stepFailed(name, err)
	}
}

func (c *Controller) stepFailed(name string, err error) {
	metrics.CleanupStepFailures.WithLabelValues(name).Inc()
	c.log.Warn().Err(err).Str("step", name).Msg("teardown step failed")
}

func (c *Controller) setStatusLocked(next Status) bool {
	if !canTransition(c.status, next) {
		c.log.Error().Str("from", string(c.status)).Str("to", string(next)).Msg("invalid status transition")
		return false
	}
	metrics.SessionTransitions.WithLabelValues(string(c.status), string(next)).Inc()
	c.log.Debug().Str("from", string(c.status)).Str("to", string(next)).Msg("status changed")
	c.status = next
	return true
}

func (c *Controller) snapshotLocked() Snapshot {
	participants := c.participants.list()
	mics := make(map[string]bool, len(participants))
	videos := c.tiles.videoStates()
	for i := range participants {
		p := &participants[i]
		if p.AttendeeID == "" {
			continue
		}
		p.VideoOn = c.tiles.videoOn(p.AttendeeID)
		mics[p.AttendeeID] = p.MicOn
		if _, ok := videos[p.AttendeeID]; !ok {
			videos[p.AttendeeID] = false
		}
	}

	return Snapshot{
		Status:            c.status,
		SpaceID:           c.opts.SpaceID,
		DiscussionID:      c.opts.DiscussionID,
		LocalAttendeeID:   c.selfAttendee,
		Participants:      participants,
		Tiles:             c.tiles.list(),
		MicStates:         mics,
		VideoStates:       videos,
		ChatMessages:      c.chat.list(),
		Recording:         c.recording.on,
		FocusedAttendeeID: c.focused,
		ContentShareOwner: c.tiles.contentOwner(),
		LocalVideo:        c.localVideo,
		LocalAudio:        c.localAudio,
		LocalSharing:      c.localSharing,
		ExitReason:        c.exitReason,
	}
}

func (c *Controller) publishLocked() {
	c.pub.publish(c.snapshotLocked())
}

// goAsync runs fn in the background and tracks it so tests can wait.
func (c *Controller) goAsync(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
