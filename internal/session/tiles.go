package session

import (
	"sort"

	"github.com/vovakirdan/wirechat-live/internal/media"
)

// VideoTile binds an engine tile to the attendee whose camera it renders.
type VideoTile struct {
	TileID     string
	AttendeeID string
	Active     bool
	Local      bool
}

// tileRegistry is the single source of truth for which attendees have a
// bound camera tile. Content-share tiles are tracked apart from the gallery.
type tileRegistry struct {
	selfAttendee string

	gallery map[string]*VideoTile
	content map[string]string
	owner   string
}

func newTileRegistry() *tileRegistry {
	return &tileRegistry{
		gallery: make(map[string]*VideoTile),
		content: make(map[string]string),
	}
}

func (r *tileRegistry) update(u media.TileUpdate) bool {
	if u.TileID == "" {
		return false
	}

	if u.IsContent {
		if !u.Active {
			return r.removeContent(u.TileID)
		}
		r.content[u.TileID] = u.AttendeeID
		changed := r.owner != u.AttendeeID
		r.owner = u.AttendeeID
		return changed
	}

	local := u.Local || (r.selfAttendee != "" && u.AttendeeID == r.selfAttendee)
	tile, ok := r.gallery[u.TileID]
	if !ok {
		r.gallery[u.TileID] = &VideoTile{
			TileID:     u.TileID,
			AttendeeID: u.AttendeeID,
			Active:     u.Active,
			Local:      local,
		}
		return true
	}
	if tile.Active == u.Active {
		return false
	}
	tile.Active = u.Active
	return true
}

// remove deletes a tile and returns the attendee it was bound to.
func (r *tileRegistry) remove(tileID string) (string, bool) {
	if tile, ok := r.gallery[tileID]; ok {
		delete(r.gallery, tileID)
		return tile.AttendeeID, true
	}
	if attendee, ok := r.content[tileID]; ok {
		r.removeContent(tileID)
		return attendee, true
	}
	return "", false
}

func (r *tileRegistry) removeContent(tileID string) bool {
	attendee, ok := r.content[tileID]
	if !ok {
		return false
	}
	delete(r.content, tileID)
	if r.owner != attendee {
		return true
	}
	r.owner = ""
	for _, other := range r.content {
		r.owner = other
		break
	}
	return true
}

// videoOn reports whether attendeeID has a bound camera tile. A remote tile
// counts once bound; the local tile only while reported active.
func (r *tileRegistry) videoOn(attendeeID string) bool {
	for _, tile := range r.gallery {
		if tile.AttendeeID != attendeeID {
			continue
		}
		if !tile.Local || tile.Active {
			return true
		}
	}
	return false
}

func (r *tileRegistry) videoStates() map[string]bool {
	out := make(map[string]bool, len(r.gallery))
	for _, tile := range r.gallery {
		if _, done := out[tile.AttendeeID]; done {
			continue
		}
		out[tile.AttendeeID] = r.videoOn(tile.AttendeeID)
	}
	return out
}

func (r *tileRegistry) list() []VideoTile {
	out := make([]VideoTile, 0, len(r.gallery))
	for _, tile := range r.gallery {
		out = append(out, *tile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TileID < out[j].TileID })
	return out
}

func (r *tileRegistry) contentOwner() string {
	return r.owner
}

func (r *tileRegistry) clearContentOwner() {
	r.content = make(map[string]string)
	r.owner = ""
}
