package contain

import (
	"iter"

	"rtsgarrison.dev/internal/sim/ids"
)

type Direction uint8

const (
	Forward Direction = iota
	Reverse
)

type rosterEntry struct {
	id      ids.ObjectID
	stealth bool
	frame   uint32
}

// Roster is the ordered contained set of one container.
type Roster struct {
	entries []rosterEntry
	stealth int
}

func (r *Roster) Len() int          { return len(r.entries) }
func (r *Roster) StealthCount() int { return r.stealth }

func (r *Roster) index(id ids.ObjectID) int {
	for i, e := range r.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (r *Roster) Contains(id ids.ObjectID) bool { return r.index(id) >= 0 }

func (r *Roster) add(id ids.ObjectID, stealth bool, frame uint32) {
	r.entries = append(r.entries, rosterEntry{id: id, stealth: stealth, frame: frame})
	if stealth {
		r.stealth++
	}
}

func (r *Roster) remove(id ids.ObjectID) (rosterEntry, bool) {
	i := r.index(id)
	if i < 0 {
		return rosterEntry{}, false
	}
	e := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	if e.stealth {
		r.stealth--
	}
	return e, true
}

func (r *Roster) IsStealth(id ids.ObjectID) bool {
	i := r.index(id)
	return i >= 0 && r.entries[i].stealth
}

func (r *Roster) EntryFrame(id ids.ObjectID) (uint32, bool) {
	i := r.index(id)
	if i < 0 {
		return 0, false
	}
	return r.entries[i].frame, true
}

func (r *Roster) Front() (ids.ObjectID, bool) {
	if len(r.entries) == 0 {
		return ids.InvalidObject, false
	}
	return r.entries[0].id, true
}

func (r *Roster) IDs() []ids.ObjectID {
	out := make([]ids.ObjectID, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.id
	}
	return out
}

// All yields occupant ids in the given direction. The sequence walks a copy taken
// when iteration starts, so callers may admit or evict while ranging.
func (r *Roster) All(dir Direction) iter.Seq[ids.ObjectID] {
	return func(yield func(ids.ObjectID) bool) {
		snap := r.IDs()
		if dir == Reverse {
			for i := len(snap) - 1; i >= 0; i-- {
				if !yield(snap[i]) {
					return
				}
			}
			return
		}
		for _, id := range snap {
			if !yield(id) {
				return
			}
		}
	}
}

func (r *Roster) reset() {
	r.entries = nil
	r.stealth = 0
}
