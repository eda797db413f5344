package session

// Participant is one member of the discussion roster, keyed by the stable
// UserID. AttendeeID is the media engine's identity for this session
// instance and is empty until the user joins the live channel.
type Participant struct {
	UserID      string
	DisplayName string
	AttendeeID  string
	MicOn       bool
	VideoOn     bool
}

// roster holds at most one Participant per UserID and indexes them by
// attendee. Presence deltas only decide when to re-validate; membership is
// always taken from a fetched snapshot.
type roster struct {
	selfAttendee string
	selfUser     string

	order      []string
	byUser     map[string]*Participant
	byAttendee map[string]string
	exited     map[string]struct{}
}

func newRoster() *roster {
	return &roster{
		byUser:     make(map[string]*Participant),
		byAttendee: make(map[string]string),
		exited:     make(map[string]struct{}),
	}
}

func (r *roster) setSelf(attendeeID, userID string) {
	r.selfAttendee = attendeeID
	r.selfUser = userID
}

func (r *roster) markExited(attendeeID string) {
	r.exited[attendeeID] = struct{}{}
}

func (r *roster) clearExited(attendeeID string) {
	delete(r.exited, attendeeID)
}

// merge folds a fetched snapshot into the roster. Known users are updated in
// place; users missing from the snapshot stay unless their attendee has
// recently exited.
func (r *roster) merge(fetched []Participant) {
	seen := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		seen[p.UserID] = struct{}{}
		r.upsert(p)
	}
	for _, userID := range append([]string(nil), r.order...) {
		if _, ok := seen[userID]; ok {
			continue
		}
		p := r.byUser[userID]
		if p.AttendeeID == "" || p.AttendeeID == r.selfAttendee {
			continue
		}
		if _, gone := r.exited[p.AttendeeID]; gone {
			r.remove(userID)
		}
	}
}

// intersect keeps only users present in the fetched snapshot. The local user
// is never dropped.
func (r *roster) intersect(fetched []Participant) {
	keep := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		keep[p.UserID] = struct{}{}
	}
	for _, userID := range append([]string(nil), r.order...) {
		if userID == r.selfUser {
			continue
		}
		if _, ok := keep[userID]; !ok {
			r.remove(userID)
		}
	}
	for _, p := range fetched {
		if _, ok := r.byUser[p.UserID]; ok {
			r.upsert(p)
		}
	}
}

func (r *roster) upsert(p Participant) {
	if p.UserID == "" {
		return
	}
	existing, ok := r.byUser[p.UserID]
	if !ok {
		entry := Participant{UserID: p.UserID, DisplayName: p.DisplayName, AttendeeID: p.AttendeeID}
		r.byUser[p.UserID] = &entry
		r.order = append(r.order, p.UserID)
		if p.AttendeeID != "" {
			r.byAttendee[p.AttendeeID] = p.UserID
		}
		return
	}

	if p.DisplayName != "" {
		existing.DisplayName = p.DisplayName
	}
	if p.AttendeeID != "" && p.AttendeeID != existing.AttendeeID {
		if existing.AttendeeID != "" {
			delete(r.byAttendee, existing.AttendeeID)
		}
		existing.AttendeeID = p.AttendeeID
		existing.MicOn = false
		r.byAttendee[p.AttendeeID] = p.UserID
	}
}

func (r *roster) remove(userID string) {
	p, ok := r.byUser[userID]
	if !ok {
		return
	}
	if p.AttendeeID != "" && r.byAttendee[p.AttendeeID] == userID {
		delete(r.byAttendee, p.AttendeeID)
	}
	delete(r.byUser, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// rebind points a known user at a new attendee. Unknown users and the local
// user are left alone; membership only changes through fetched snapshots.
func (r *roster) rebind(userID, attendeeID string) bool {
	if userID == "" || attendeeID == "" || userID == r.selfUser {
		return false
	}
	p, ok := r.byUser[userID]
	if !ok || p.AttendeeID == attendeeID {
		return false
	}
	r.upsert(Participant{UserID: userID, AttendeeID: attendeeID})
	return true
}

// ensure adds p when its user is not yet known.
func (r *roster) ensure(p Participant) {
	if _, ok := r.byUser[p.UserID]; !ok {
		r.upsert(p)
	}
}

func (r *roster) byAttendeeID(attendeeID string) (*Participant, bool) {
	userID, ok := r.byAttendee[attendeeID]
	if !ok {
		return nil, false
	}
	p, ok := r.byUser[userID]
	return p, ok
}

func (r *roster) hasAttendee(attendeeID string) bool {
	_, ok := r.byAttendeeID(attendeeID)
	return ok
}

// setMic records the mute state of an attendee. Unknown attendees are ignored.
func (r *roster) setMic(attendeeID string, on bool) bool {
	p, ok := r.byAttendeeID(attendeeID)
	if !ok || p.MicOn == on {
		return false
	}
	p.MicOn = on
	return true
}

func (r *roster) list() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, userID := range r.order {
		out = append(out, *r.byUser[userID])
	}
	return out
}
