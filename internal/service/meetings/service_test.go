package meetings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/vovakirdan/wirechat-live/internal/callengine"
	"github.com/vovakirdan/wirechat-live/internal/store"
	"github.com/vovakirdan/wirechat-live/internal/store/sqlite"
)

type fakeEngine struct {
	mu      sync.Mutex
	created int
	ended   []string
}

func (e *fakeEngine) CreateRoom(_ context.Context, m *store.Meeting) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created++
	return "room-" + m.ID, nil
}

func (e *fakeEngine) EndRoom(_ context.Context, m *store.Meeting) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, *m.ExternalRoomID)
	return nil
}

func (e *fakeEngine) GenerateJoinInfo(_ context.Context, m *store.Meeting, a callengine.Attendee) (*callengine.JoinInfo, error) {
	return &callengine.JoinInfo{
		URL:        "ws://media",
		Token:      "token-" + a.AttendeeID,
		RoomName:   *m.ExternalRoomID,
		AttendeeID: a.AttendeeID,
	}, nil
}

func newTestService(t *testing.T) (*Service, *fakeEngine) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engine := &fakeEngine{}
	return New(st, engine, nil), engine
}

var (
	alice = Identity{UserID: "u-alice", Username: "alice"}
	bob   = Identity{UserID: "u-bob", Username: "bob"}
)

func joinUser(t *testing.T, svc *Service, user Identity) *JoinResult {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.Start(ctx, "space", "disc"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Register(ctx, "space", "disc", user); err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Join(ctx, "space", "disc", user)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return res
}

func TestStartIsIdempotent(t *testing.T) {
	svc, engine := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := svc.Start(ctx, "space", "disc")
			if err != nil {
				t.Errorf("Start: %v", err)
				return
			}
			ids <- m.ID
		}()
	}
	wg.Wait()
	close(ids)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("expected a single meeting, got %s and %s", first, id)
		}
	}
	if engine.created != 1 {
		t.Fatalf("expected one media room, got %d", engine.created)
	}
}

func TestStartValidatesIDs(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Start(context.Background(), " ", "disc"); !errors.Is(err, ErrInvalidDiscussion) {
		t.Fatalf("expected ErrInvalidDiscussion, got %v", err)
	}
}

func TestStartWithoutMedia(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer st.Close()

	svc := New(st, nil, nil)
	if _, err := svc.Start(context.Background(), "space", "disc"); !errors.Is(err, ErrMediaNotEnabled) {
		t.Fatalf("expected ErrMediaNotEnabled, got %v", err)
	}
}

func TestRegisterRequiresMeeting(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register(context.Background(), "space", "disc", alice); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected ErrMeetingNotFound, got %v", err)
	}
}

func TestJoinRequiresRegistration(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Start(ctx, "space", "disc"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Join(ctx, "space", "disc", alice); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestJoinReturnsRosterAndFreshAttendee(t *testing.T) {
	svc, _ := newTestService(t)

	first := joinUser(t, svc, alice)
	res := joinUser(t, svc, bob)

	if res.JoinInfo.AttendeeID == "" || res.JoinInfo.AttendeeID == first.JoinInfo.AttendeeID {
		t.Fatalf("expected distinct attendee ids, got %q and %q", first.JoinInfo.AttendeeID, res.JoinInfo.AttendeeID)
	}
	if len(res.Participants) != 2 {
		t.Fatalf("expected 2 joined participants, got %d", len(res.Participants))
	}

	again := joinUser(t, svc, alice)
	if again.JoinInfo.AttendeeID == first.JoinInfo.AttendeeID {
		t.Fatal("rejoin must issue a new attendee id")
	}
	if len(again.Participants) != 2 {
		t.Fatalf("rejoin must not duplicate the user, got %d", len(again.Participants))
	}
}

func TestExitIsIdempotentAndEndsMeeting(t *testing.T) {
	svc, engine := newTestService(t)
	ctx := context.Background()

	if err := svc.Exit(ctx, "space", "disc", alice); err != nil {
		t.Fatalf("Exit without meeting: %v", err)
	}

	joinUser(t, svc, alice)
	joinUser(t, svc, bob)

	if err := svc.Exit(ctx, "space", "disc", alice); err != nil {
		t.Fatalf("Exit alice: %v", err)
	}
	if err := svc.Exit(ctx, "space", "disc", alice); err != nil {
		t.Fatalf("second Exit alice: %v", err)
	}

	roster, err := svc.ListParticipants(ctx, "space", "disc")
	if err != nil {
		t.Fatalf("ListParticipants: %v", err)
	}
	if len(roster) != 1 || roster[0].UserID != bob.UserID {
		t.Fatalf("expected only bob, got %+v", roster)
	}
	if len(engine.ended) != 0 {
		t.Fatal("meeting must stay while bob is inside")
	}

	if err := svc.Exit(ctx, "space", "disc", bob); err != nil {
		t.Fatalf("Exit bob: %v", err)
	}
	if len(engine.ended) != 1 {
		t.Fatalf("expected media room ended once, got %v", engine.ended)
	}

	roster, err = svc.ListParticipants(ctx, "space", "disc")
	if err != nil {
		t.Fatalf("ListParticipants after end: %v", err)
	}
	if len(roster) != 0 {
		t.Fatalf("expected empty roster, got %d", len(roster))
	}
	if err := svc.Exit(ctx, "space", "disc", bob); err != nil {
		t.Fatalf("Exit after end: %v", err)
	}
}

func TestRegisteredUserKeepsMeetingOpen(t *testing.T) {
	svc, engine := newTestService(t)
	ctx := context.Background()

	joinUser(t, svc, alice)
	if _, err := svc.Register(ctx, "space", "disc", bob); err != nil {
		t.Fatalf("Register bob: %v", err)
	}
	if err := svc.Exit(ctx, "space", "disc", alice); err != nil {
		t.Fatalf("Exit alice: %v", err)
	}
	if len(engine.ended) != 0 {
		t.Fatal("bob is about to join, meeting must stay")
	}
	if _, err := svc.Join(ctx, "space", "disc", bob); err != nil {
		t.Fatalf("Join bob: %v", err)
	}
}

func TestRegisterRacingLastExit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		disc := fmt.Sprintf("disc-%d", i)
		if _, err := svc.Start(ctx, "space", disc); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := svc.Register(ctx, "space", disc, alice); err != nil {
			t.Fatalf("Register alice: %v", err)
		}
		if _, err := svc.Join(ctx, "space", disc, alice); err != nil {
			t.Fatalf("Join alice: %v", err)
		}

		var wg sync.WaitGroup
		var regErr, exitErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, regErr = svc.Register(ctx, "space", disc, bob)
		}()
		go func() {
			defer wg.Done()
			exitErr = svc.Exit(ctx, "space", disc, alice)
		}()
		wg.Wait()

		if exitErr != nil {
			t.Fatalf("Exit alice: %v", exitErr)
		}
		switch {
		case regErr == nil:
			if _, err := svc.Join(ctx, "space", disc, bob); err != nil {
				t.Fatalf("registered user must be able to join, got %v", err)
			}
		case errors.Is(regErr, ErrMeetingNotFound):
		default:
			t.Fatalf("Register bob: %v", regErr)
		}
	}
}
