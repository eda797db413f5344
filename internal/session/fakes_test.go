package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

var errUnavailable = errors.New("unavailable")

type fakeBroker struct {
	mu sync.Mutex

	startFailures int
	joinFailures  int
	failErr       error

	calls        []string
	exitCalls    int
	participants []Participant
	attendee     AttendeeInfo

	// joinEntered is closed when JoinMeeting is called; the call then blocks
	// until joinRelease is closed, whatever its context says.
	joinEntered chan struct{}
	joinRelease chan struct{}
}

func newFakeBroker(attendee AttendeeInfo, participants ...Participant) *fakeBroker {
	return &fakeBroker{attendee: attendee, participants: participants, failErr: errUnavailable}
}

func (b *fakeBroker) record(op string) {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.mu.Unlock()
}

func (b *fakeBroker) StartMeeting(context.Context, string, string) error {
	b.record("start")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startFailures > 0 {
		b.startFailures--
		return b.failErr
	}
	return nil
}

func (b *fakeBroker) RegisterParticipant(context.Context, string, string) error {
	b.record("register")
	return nil
}

func (b *fakeBroker) JoinMeeting(context.Context, string, string) (*JoinResult, error) {
	b.record("join")
	if b.joinEntered != nil {
		close(b.joinEntered)
		<-b.joinRelease
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.joinFailures != 0 {
		if b.joinFailures > 0 {
			b.joinFailures--
		}
		return nil, b.failErr
	}
	return &JoinResult{
		Meeting:      MeetingInfo{MeetingID: "m-1", RoomName: "room-1", MediaURL: "ws://media"},
		Attendee:     b.attendee,
		Participants: append([]Participant(nil), b.participants...),
	}, nil
}

func (b *fakeBroker) ExitMeeting(context.Context, string, string) error {
	b.record("exit")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exitCalls++
	return errUnavailable
}

func (b *fakeBroker) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBroker) exits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCalls
}

func (b *fakeBroker) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == op {
			n++
		}
	}
	return n
}

type fakeRoster struct {
	mu           sync.Mutex
	participants []Participant
	fetches      int
}

func (r *fakeRoster) set(participants ...Participant) {
	r.mu.Lock()
	r.participants = participants
	r.mu.Unlock()
}

func (r *fakeRoster) FetchParticipants(context.Context, string, string) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	return append([]Participant(nil), r.participants...), nil
}

func (r *fakeRoster) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

type fakeEngine struct {
	mu sync.Mutex

	stopCalls      int
	stopVideoCalls int
	unmuteCalls    int
	muteCalls      int
	sent           []media.DataMessage
	shareErr       error
	sendErr        error
	sendDelay      map[string]time.Duration

	stopEntered chan struct{}
	stopRelease chan struct{}

	tileUpdated media.Listeners[media.TileUpdate]
	tileRemoved media.Listeners[string]
	presence    media.Listeners[media.PresenceEvent]
	volume      media.Listeners[media.VolumeEvent]
	topics      map[string]*media.Listeners[media.DataMessage]
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{topics: make(map[string]*media.Listeners[media.DataMessage])}
}

func (e *fakeEngine) Start(context.Context) error { return nil }

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	e.stopCalls++
	entered, release := e.stopEntered, e.stopRelease
	e.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if release != nil {
		<-release
	}
	return nil
}

func (e *fakeEngine) LocalAttendeeID() string { return "a-self" }

func (e *fakeEngine) StartLocalVideo(context.Context) error { return nil }

func (e *fakeEngine) StopLocalVideo() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopVideoCalls++
	return nil
}

func (e *fakeEngine) MuteLocalAudio() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muteCalls++
	return nil
}

func (e *fakeEngine) UnmuteLocalAudio(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unmuteCalls++
	return nil
}

func (e *fakeEngine) StartContentShare(context.Context) error { return e.shareErr }

func (e *fakeEngine) StopContentShare() error { return nil }

func (e *fakeEngine) SendMessage(_ context.Context, topic string, payload []byte) error {
	e.mu.Lock()
	delay := e.sendDelay[string(payload)]
	e.mu.Unlock()
	time.Sleep(delay)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, media.DataMessage{Topic: topic, Payload: payload})
	return e.sendErr
}

func (e *fakeEngine) SubscribeTiles(h media.TileHandler) media.Unsubscribe {
	u1 := e.tileUpdated.Add(h.OnTileUpdated)
	u2 := e.tileRemoved.Add(h.OnTileRemoved)
	return func() {
		u1()
		u2()
	}
}

func (e *fakeEngine) SubscribePresence(fn func(media.PresenceEvent)) media.Unsubscribe {
	return e.presence.Add(fn)
}

func (e *fakeEngine) SubscribeVolume(fn func(media.VolumeEvent)) media.Unsubscribe {
	return e.volume.Add(fn)
}

func (e *fakeEngine) SubscribeMessages(topic string, fn func(media.DataMessage)) media.Unsubscribe {
	e.mu.Lock()
	l, ok := e.topics[topic]
	if !ok {
		l = &media.Listeners[media.DataMessage]{}
		e.topics[topic] = l
	}
	e.mu.Unlock()
	return l.Add(fn)
}

func (e *fakeEngine) deliver(topic, sender, payload string) {
	e.mu.Lock()
	l := e.topics[topic]
	e.mu.Unlock()
	if l != nil {
		l.Emit(media.DataMessage{Topic: topic, SenderAttendeeID: sender, Payload: []byte(payload)})
	}
}

func (e *fakeEngine) sentPayloads() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.sent))
	for i, m := range e.sent {
		out[i] = string(m.Payload)
	}
	return out
}

func (e *fakeEngine) stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopCalls
}

type fakeDialer struct {
	engine *fakeEngine
	err    error
	dials  int

	// dialEntered is closed when Dial is called; the call then blocks until
	// its context is done.
	dialEntered chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, _ media.JoinInfo, _ media.DeviceController) (media.Engine, error) {
	d.dials++
	if d.dialEntered != nil {
		close(d.dialEntered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.engine, nil
}

type fakeDevices struct {
	mu sync.Mutex

	audio       []media.Device
	video       []media.Device
	grantAudio  []media.Device
	permissions int
	stopped     []string
	destroyed   int
	chosenAudio string
}

func (d *fakeDevices) ListAudioInputs(context.Context) ([]media.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.Device(nil), d.audio...), nil
}

func (d *fakeDevices) ListVideoInputs(context.Context) ([]media.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]media.Device(nil), d.video...), nil
}

func (d *fakeDevices) RequestPermission(_ context.Context, kind media.DeviceKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.permissions++
	if kind == media.DeviceAudioInput && len(d.grantAudio) > 0 {
		d.audio = append(d.audio, d.grantAudio...)
		return nil
	}
	return media.ErrPermissionDenied
}

func (d *fakeDevices) ChooseAudioInput(_ context.Context, dev media.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chosenAudio = dev.ID
	return nil
}

func (d *fakeDevices) ChooseVideoInput(context.Context, media.Device) error { return nil }

func (d *fakeDevices) StopTracks(dev media.Device) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, dev.ID)
	return nil
}

func (d *fakeDevices) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed++
	return nil
}

type harness struct {
	ctrl    *Controller
	broker  *fakeBroker
	roster  *fakeRoster
	dialer  *fakeDialer
	engine  *fakeEngine
	devices *fakeDevices
}

var (
	self  = Participant{UserID: "u-self", DisplayName: "Me", AttendeeID: "a-self"}
	alice = Participant{UserID: "u-alice", DisplayName: "Alice", AttendeeID: "a-alice"}
	bob   = Participant{UserID: "u-bob", DisplayName: "Bob", AttendeeID: "a-bob"}
)

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		broker:  newFakeBroker(AttendeeInfo{AttendeeID: self.AttendeeID, UserID: self.UserID, Token: "tok"}, self, alice, bob),
		roster:  &fakeRoster{participants: []Participant{self, alice, bob}},
		engine:  newFakeEngine(),
		devices: &fakeDevices{video: []media.Device{{ID: "video:cam", Label: "cam", Kind: media.DeviceVideoInput}}},
	}
	h.dialer = &fakeDialer{engine: h.engine}

	ctrl, err := New(Options{
		SpaceID:            "space-1",
		DiscussionID:       "disc-1",
		JoinAttempts:       3,
		JoinInitialBackoff: time.Millisecond,
		JoinMaxBackoff:     2 * time.Millisecond,
		JoinTimeout:        5 * time.Second,
		CallTimeout:        time.Second,
		CleanupTimeout:     time.Second,
		Clock:              func() time.Time { return time.Unix(1700000000, 0) },
	}, Deps{
		Broker:  h.broker,
		Roster:  h.roster,
		Dialer:  h.dialer,
		Devices: h.devices,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	h.ctrl = ctrl
	return h
}

func (h *harness) join(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := h.ctrl.Status(); got != StatusActive {
		t.Fatalf("expected active after join, got %s", got)
	}
}

// settle waits for background refetches and sends to finish.
func (h *harness) settle() {
	h.ctrl.wg.Wait()
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for teardown")
	}
}

func userIDs(ps []Participant) map[string]int {
	out := make(map[string]int, len(ps))
	for _, p := range ps {
		out[p.UserID]++
	}
	return out
}
