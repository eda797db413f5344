package session

import (
	"testing"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

func TestRosterUpsertKeepsOneEntryPerUser(t *testing.T) {
	r := newRoster()
	r.upsert(Participant{UserID: "u1", DisplayName: "One"})
	r.upsert(Participant{UserID: "u1", AttendeeID: "a1"})
	r.upsert(Participant{UserID: "u1", AttendeeID: "a1"})

	if r.len() != 1 {
		t.Fatalf("expected 1 entry, got %d", r.len())
	}
	p, ok := r.byAttendeeID("a1")
	if !ok || p.DisplayName != "One" {
		t.Fatalf("expected attendee index to resolve, got %+v ok=%v", p, ok)
	}
}

func TestRosterRejoinMovesAttendeeIndex(t *testing.T) {
	r := newRoster()
	r.upsert(Participant{UserID: "u1", AttendeeID: "a1"})
	r.setMic("a1", true)
	r.upsert(Participant{UserID: "u1", AttendeeID: "a2"})

	if r.hasAttendee("a1") {
		t.Fatal("stale attendee must be unindexed")
	}
	p, ok := r.byAttendeeID("a2")
	if !ok {
		t.Fatal("new attendee must be indexed")
	}
	if p.MicOn {
		t.Fatal("mic state belongs to the old attendee")
	}
}

func TestRosterMergeDropsOnlyExitedMissingUsers(t *testing.T) {
	r := newRoster()
	r.setSelf("a0", "u0")
	r.merge([]Participant{
		{UserID: "u0", AttendeeID: "a0"},
		{UserID: "u1", AttendeeID: "a1"},
		{UserID: "u2", AttendeeID: "a2"},
	})

	r.markExited("a2")
	r.markExited("a0")
	r.merge([]Participant{{UserID: "u1", AttendeeID: "a1"}})

	if r.len() != 2 {
		t.Fatalf("expected self and u1 to remain, got %+v", r.list())
	}
	if r.hasAttendee("a2") {
		t.Fatal("exited attendee missing from fetch must be dropped")
	}
}

func TestRosterIntersectNeverDropsSelf(t *testing.T) {
	r := newRoster()
	r.setSelf("a0", "u0")
	r.merge([]Participant{{UserID: "u0", AttendeeID: "a0"}, {UserID: "u1", AttendeeID: "a1"}})

	r.intersect(nil)

	if r.len() != 1 || !r.hasAttendee("a0") {
		t.Fatalf("expected only self, got %+v", r.list())
	}
}

func TestRosterDuplicateAndReorderedFetches(t *testing.T) {
	r := newRoster()
	full := []Participant{{UserID: "u1", AttendeeID: "a1"}, {UserID: "u2", AttendeeID: "a2"}}
	reversed := []Participant{full[1], full[0], full[1]}

	r.merge(full)
	r.intersect(reversed)
	r.merge(reversed)
	r.merge(full)

	seen := userIDs(r.list())
	if len(seen) != 2 {
		t.Fatalf("expected 2 users, got %v", seen)
	}
	for user, n := range seen {
		if n != 1 {
			t.Fatalf("user %s duplicated %d times", user, n)
		}
	}
}

func TestTileRegistryVideoState(t *testing.T) {
	r := newTileRegistry()
	r.selfAttendee = "a0"

	r.update(media.TileUpdate{TileID: "t1", AttendeeID: "a1"})
	r.update(media.TileUpdate{TileID: "t2", AttendeeID: "a1"})
	r.update(media.TileUpdate{TileID: "t0", AttendeeID: "a0"})

	if !r.videoOn("a1") {
		t.Fatal("remote tile counts once bound")
	}
	if r.videoOn("a0") {
		t.Fatal("local tile counts only while active")
	}

	r.update(media.TileUpdate{TileID: "t0", AttendeeID: "a0", Active: true})
	if !r.videoOn("a0") {
		t.Fatal("active local tile must count")
	}

	r.remove("t1")
	if !r.videoOn("a1") {
		t.Fatal("second tile still binds a1")
	}
	r.remove("t2")
	if r.videoOn("a1") {
		t.Fatal("no tile binds a1 any more")
	}
	if _, ok := r.remove("t2"); ok {
		t.Fatal("removing an unknown tile must report false")
	}
}

func TestTileRegistryContentShare(t *testing.T) {
	r := newTileRegistry()

	r.update(media.TileUpdate{TileID: "c1", AttendeeID: "a1", IsContent: true, Active: true})
	if r.contentOwner() != "a1" {
		t.Fatalf("expected a1 to own content, got %q", r.contentOwner())
	}
	if r.videoOn("a1") {
		t.Fatal("content tiles never count as camera video")
	}
	if len(r.list()) != 0 {
		t.Fatal("content tiles stay out of the gallery")
	}

	r.update(media.TileUpdate{TileID: "c1", AttendeeID: "a1", IsContent: true})
	if r.contentOwner() != "" {
		t.Fatalf("expected no owner, got %q", r.contentOwner())
	}
}

func TestChatChannelAppendOnly(t *testing.T) {
	c := newChatChannel()
	first := c.append(ChatMessage{Text: "one"})
	snapshot := c.list()
	c.append(ChatMessage{Text: "two"})

	if first.Seq != 1 || c.len() != 2 {
		t.Fatalf("unexpected sequence: %+v", c.list())
	}
	snapshot[0].Text = "mutated"
	if c.list()[0].Text != "one" {
		t.Fatal("list must hand out a copy")
	}
}

func TestRecordingSignalTokens(t *testing.T) {
	var r recordingSignal
	cases := []struct {
		payload string
		changed bool
		on      bool
	}{
		{"start", true, true},
		{"start", false, true},
		{"START", false, true},
		{"", false, true},
		{"stop", true, false},
		{"stop", false, false},
	}
	for _, tc := range cases {
		if got := r.apply([]byte(tc.payload)); got != tc.changed || r.on != tc.on {
			t.Fatalf("payload %q: changed=%v on=%v, want changed=%v on=%v", tc.payload, got, r.on, tc.changed, tc.on)
		}
	}
}

func (r *roster) len() int { return len(r.order) }

func (c *chatChannel) len() int { return len(c.messages) }

func TestRosterRebindOnlyMovesKnownUsers(t *testing.T) {
	r := newRoster()
	r.setSelf("a-self", "u-self")
	r.merge([]Participant{{UserID: "u-self", AttendeeID: "a-self"}, {UserID: "u-alice", AttendeeID: "a0"}})

	if !r.rebind("u-alice", "a1") {
		t.Fatal("expected known user to move to the new attendee")
	}
	if r.hasAttendee("a0") || !r.hasAttendee("a1") {
		t.Fatal("expected only the new attendee to be indexed")
	}
	if r.rebind("u-alice", "a1") {
		t.Fatal("rebinding to the same attendee must be a no-op")
	}
	if r.rebind("u-stranger", "a2") || r.hasAttendee("a2") {
		t.Fatal("unknown users must not be added")
	}
	if r.rebind("u-self", "a-other") || !r.hasAttendee("a-self") {
		t.Fatal("the local user must keep its attendee")
	}
	if r.len() != 2 {
		t.Fatalf("expected 2 entries, got %d", r.len())
	}
}
