package session

import (
	"sync"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

// Snapshot is the read-only view handed to presentation code.
type Snapshot struct {
	Status            Status
	SpaceID           string
	DiscussionID      string
	LocalAttendeeID   string
	Participants      []Participant
	Tiles             []VideoTile
	MicStates         map[string]bool
	VideoStates       map[string]bool
	ChatMessages      []ChatMessage
	Recording         bool
	FocusedAttendeeID string
	ContentShareOwner string
	LocalVideo        bool
	LocalAudio        bool
	LocalSharing      bool
	ExitReason        ExitReason
}

// Participant looks up a participant by user id.
func (s Snapshot) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// publisher fans snapshots out to subscribers. Each subscriber holds at most
// one pending snapshot; a newer one replaces it.
type publisher struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Snapshot
	closed bool
}

func newPublisher() *publisher {
	return &publisher{subs: make(map[int]chan Snapshot)}
}

func (p *publisher) subscribe(initial Snapshot) (<-chan Snapshot, media.Unsubscribe) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- initial
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.next
	p.next++
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
}

func (p *publisher) publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// closeAll ends every subscription after the final snapshot.
func (p *publisher) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	p.closed = true
}
