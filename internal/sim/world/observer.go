package world

import (
	"rtsgarrison.dev/internal/observerproto"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// ObserverJoinRequest registers a read-only observer session that receives one
// TICK message per simulated tick on TickOut.
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte

	Viewer         ids.PlayerID
	Containers     []ids.ObjectID
	IncludeObjects bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string

	Viewer         ids.PlayerID
	Containers     []ids.ObjectID
	IncludeObjects bool
}

type observerClient struct {
	id      string
	tickOut chan []byte
	cfg     observerCfg
}

type observerCfg struct {
	viewer         ids.PlayerID
	containers     map[ids.ObjectID]bool
	includeObjects bool
}

func newObserverCfg(viewer ids.PlayerID, containers []ids.ObjectID, includeObjects bool) observerCfg {
	cfg := observerCfg{viewer: viewer, includeObjects: includeObjects}
	if viewer < ids.NoPlayer || viewer >= ids.MaxPlayers {
		cfg.viewer = ids.NoPlayer
	}
	if len(containers) > 0 {
		cfg.containers = make(map[ids.ObjectID]bool, len(containers))
		for _, id := range containers {
			cfg.containers[id] = true
		}
	}
	return cfg
}

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.obsJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.obsSub }
func (w *World) ObserverLeave() chan<- string                       { return w.obsLeave }

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:      req.SessionID,
		tickOut: req.TickOut,
		cfg:     newObserverCfg(req.Viewer, req.Containers, req.IncludeObjects),
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.cfg = newObserverCfg(req.Viewer, req.Containers, req.IncludeObjects)
}

func (w *World) handleObserverLeave(sessionID string) {
	if sessionID == "" {
		return
	}
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
}

func (w *World) broadcastObservers(nowTick uint64, digest string, events []ContainEvent) {
	if len(w.observers) == 0 {
		return
	}
	evs := make([]observerproto.ContainEvent, 0, len(events))
	for _, e := range events {
		evs = append(evs, observerproto.ContainEvent{
			Frame:     e.Frame,
			Kind:      string(e.Kind),
			Container: uint32(e.Container),
			Occupant:  uint32(e.Occupant),
			Slot:      e.Slot,
			Reason:    e.Reason,
		})
	}
	sounds := make([]observerproto.SoundCue, 0, len(w.sounds))
	for _, s := range w.sounds {
		sounds = append(sounds, observerproto.SoundCue{Event: s.Event, Source: uint32(s.Source)})
	}
	cids := w.sortedContainerIDs()

	for _, c := range w.observers {
		msg := observerproto.TickMsg{
			Type:            observerproto.TypeTick,
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Digest:          digest,
			Containers:      make([]observerproto.ContainerState, 0, len(cids)),
			Events:          evs,
			Sounds:          sounds,
		}
		for _, id := range cids {
			if c.cfg.containers != nil && !c.cfg.containers[id] {
				continue
			}
			if st, ok := w.containerView(w.containers[id], c.cfg.viewer); ok {
				msg.Containers = append(msg.Containers, st)
			}
		}
		if c.cfg.includeObjects {
			msg.Objects = w.objectViews(c.cfg.viewer)
		}
		b := marshalOrNil(msg)
		if b == nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

// containerView is what viewer may know about c. Non-allied viewers get the
// count only, and nothing at all while every occupant is a hidden stealth unit.
func (w *World) containerView(c *contain.Container, viewer ids.PlayerID) (observerproto.ContainerState, bool) {
	owner := w.objects[c.Owner()]
	if owner == nil {
		return observerproto.ContainerState{}, false
	}
	team := c.ApparentController(viewer)
	st := observerproto.ContainerState{
		ID:            uint32(owner.ID),
		Template:      owner.Template,
		Policy:        c.Policy().Kind().String(),
		Team:          int8(team),
		Damage:        owner.Damage.String(),
		Count:         c.Count(),
		Max:           c.Max(),
		Portable:      uint32(c.Portable()),
		DoorOpen:      c.DoorOpen(),
		StealthHidden: c.StealthHidden(),
		PlayerEntered: uint16(c.PlayerEntered()),
	}
	full := viewer == ids.NoPlayer || w.Relationship(owner.Team, viewer) == object.Allies
	if !full {
		st.StealthHidden = false
		st.PlayerEntered = 0
		if c.StealthHidden() {
			st.Count = 0
		}
		return st, true
	}
	for id := range c.Occupants(contain.Forward) {
		occ := w.objects[id]
		if occ == nil {
			continue
		}
		st.Occupants = append(st.Occupants, observerproto.OccupantState{
			ID:        uint32(id),
			Template:  occ.Template,
			Slot:      c.SlotOf(id),
			Pos:       occ.Pos.ToArray(),
			Attacking: occ.TestStatus(object.StatusAttacking),
		})
	}
	return st, true
}

// objectViews lists every object viewer can see. Hidden objects are listed only
// for omniscient or allied viewers.
func (w *World) objectViews(viewer ids.PlayerID) []observerproto.ObjectState {
	out := make([]observerproto.ObjectState, 0, len(w.order))
	for _, id := range w.order {
		o := w.objects[id]
		hidden := w.hidden[id]
		if hidden && viewer != ids.NoPlayer && w.Relationship(o.Team, viewer) != object.Allies {
			continue
		}
		team := o.Team
		if c := w.containers[id]; c != nil {
			team = c.ApparentController(viewer)
		}
		out = append(out, observerproto.ObjectState{
			ID:          uint32(id),
			Template:    o.Template,
			Team:        int8(team),
			Pos:         o.Pos.ToArray(),
			Yaw:         o.Yaw,
			Health:      o.Health,
			Damage:      o.Damage.String(),
			ContainedBy: uint32(o.ContainedBy()),
			Hidden:      hidden,
		})
	}
	return out
}
