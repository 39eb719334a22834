package world

import (
	"fmt"

	"rtsgarrison.dev/internal/persistence/snapshot"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// ImportSnapshot replaces the current in-memory world state with the snapshot.
// It sets the world's tick to snapshotTick+1 (the next tick to simulate).
// On error the world is left partially loaded and must be discarded.
//
// This must be called only when the world is stopped or from the world loop goroutine.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if w.cfg.Seed != s.Seed {
		return fmt.Errorf("snapshot seed mismatch: cfg=%d snap=%d", w.cfg.Seed, s.Seed)
	}
	if w.cfg.TickRateHz != s.TickRate {
		return fmt.Errorf("snapshot tick rate mismatch: cfg=%d snap=%d", w.cfg.TickRateHz, s.TickRate)
	}
	cur := w.catalogs.Digests()
	for name, d := range s.Catalogs {
		if cur[name] != d {
			return fmt.Errorf("snapshot catalog %s digest mismatch", name)
		}
	}
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}

	w.objects = map[ids.ObjectID]*object.Object{}
	w.order = w.order[:0]
	w.containers = map[ids.ObjectID]*contain.Container{}
	w.registered = map[ids.ObjectID]bool{}
	w.hidden = map[ids.ObjectID]bool{}
	w.garrisoned = map[ids.ObjectID]bool{}
	w.doors = map[ids.ObjectID]map[int]bool{}
	w.effects = map[ids.DrawableID]*muzzle{}
	w.players = nil
	w.relations = map[[2]ids.PlayerID]object.Relationship{}

	for _, p := range s.Players {
		w.players = append(w.players, Player{ID: ids.PlayerID(p.ID), Name: p.Name})
	}
	for _, r := range s.Relationships {
		w.relations[[2]ids.PlayerID{ids.PlayerID(r.From), ids.PlayerID(r.To)}] = object.Relationship(r.Rel)
	}

	for _, ov := range s.Objects {
		if ov.ID == 0 {
			return fmt.Errorf("snapshot object with zero id")
		}
		if _, dup := w.objects[ids.ObjectID(ov.ID)]; dup {
			return fmt.Errorf("snapshot object %d duplicated", ov.ID)
		}
		o := importObject(ov)
		w.insert(o)
		w.registered[o.ID] = ov.Registered
		if ov.Hidden {
			w.hidden[o.ID] = true
		}
		if ov.Garrisoned {
			w.garrisoned[o.ID] = true
		}
	}
	for _, ev := range s.Effects {
		w.effects[ids.DrawableID(ev.ID)] = &muzzle{
			owner:  ids.ObjectID(ev.Owner),
			pos:    geom.FromArray(ev.Pos),
			yaw:    ev.Yaw,
			firing: ev.Firing,
		}
	}

	for _, cv := range s.Containers {
		owner := w.objects[ids.ObjectID(cv.Owner)]
		if owner == nil {
			return fmt.Errorf("snapshot container owner %d missing", cv.Owner)
		}
		u, ok := w.catalogs.Units.ByID[owner.Template]
		if !ok || u.Container == "" {
			return fmt.Errorf("snapshot container owner %s has no container template", owner.Template)
		}
		c, err := contain.New(owner, w.catalogs.Containers.ByTemplate[u.Container], w.svc)
		if err != nil {
			return err
		}
		if err := c.Import(importContainer(cv)); err != nil {
			return fmt.Errorf("snapshot container %d: %w", cv.Owner, err)
		}
		w.containers[owner.ID] = c
		if cv.DoorOpen > 0 {
			w.doors[owner.ID] = map[int]bool{cv.DoorOpen: true}
		}
	}
	for _, id := range w.order {
		o := w.objects[id]
		if by := o.ContainedBy(); by != ids.InvalidObject && w.containers[by] == nil {
			return fmt.Errorf("snapshot object %s contained by %s, which is not a container", id, by)
		}
	}
	for _, id := range w.sortedContainerIDs() {
		if err := w.containers[id].LoadPostProcess(); err != nil {
			return fmt.Errorf("snapshot container %s: %w", id, err)
		}
	}

	w.nextObject = ids.ObjectID(s.Counters.NextObject)
	w.nextDrawable = ids.DrawableID(s.Counters.NextDrawable)
	w.rng.state = s.Counters.RNG
	if s.Header.Digest != "" {
		if got := w.stateDigest(s.Header.Tick); got != s.Header.Digest {
			return fmt.Errorf("snapshot digest mismatch at tick %d: got=%s want=%s", s.Header.Tick, got, s.Header.Digest)
		}
	}
	w.tick.Store(s.Header.Tick + 1)
	return nil
}

func importObject(v snapshot.ObjectV1) *object.Object {
	o := &object.Object{
		ID:        ids.ObjectID(v.ID),
		Template:  v.Template,
		Kind:      object.KindOf(v.Kind),
		Team:      ids.PlayerID(v.Team),
		Pos:       geom.FromArray(v.Pos),
		Yaw:       v.Yaw,
		Health:    v.Health,
		MaxHealth: v.MaxHealth,
		Damage:    object.DamageState(v.Damage),
		Status:    object.Status(v.Status),
		Geometry: object.Geometry{
			BoundingRadius: v.BoundingRadius,
			MajorRadius:    v.MajorRadius,
			MinorRadius:    v.MinorRadius,
		},
		TransportSlots: v.TransportSlots,
		Mobile:         v.Mobile,
	}
	if v.ContainedBy != 0 {
		o.BindContainer(ids.ObjectID(v.ContainedBy), v.ContainedFrame)
	}
	if wv := v.Weapon; wv != nil {
		o.Weapon = &object.Weapon{
			Range:         wv.Range,
			Damage:        wv.Damage,
			DamageType:    wv.DamageType,
			ReloadFrames:  wv.ReloadFrames,
			HasShot:       wv.HasShot,
			LastShotFrame: wv.LastShotFrame,
		}
	}
	if av := v.AI; av != nil {
		o.AI = &object.AI{
			GoalID:       ids.ObjectID(av.GoalID),
			VictimPos:    geom.FromArray(av.VictimPos),
			HasVictimPos: av.HasVictimPos,
			Locomotor:    av.Locomotor,
			Speed:        av.Speed,
			Path:         arraysToVecs(av.Path),
			PathSource:   av.PathSource,
		}
	}
	return o
}

func importContainer(v snapshot.ContainV1) contain.State {
	st := contain.State{
		Owner:            ids.ObjectID(v.Owner),
		Policy:           contain.PolicyKind(v.Policy),
		PlayerEntered:    ids.PlayerMask(v.PlayerEntered),
		LoadSoundFrame:   v.LoadSoundFrame,
		UnloadSoundFrame: v.UnloadSoundFrame,
		ConditionKey:     v.ConditionKey,
		LastTransform:    geom.Transform{Pos: geom.FromArray(v.LastPos), Yaw: v.LastYaw},
		ExitWhich:        v.ExitWhich,
		DoorOpen:         v.DoorOpen,
		DoorCountdown:    v.DoorCountdown,
		Rally:            geom.FromArray(v.Rally),
		HasRally:         v.HasRally,
		OriginalTeam:     ids.PlayerID(v.OriginalTeam),
		TeamOverridden:   v.TeamOverridden,
		FirePointCursor:  v.FirePointCursor,
		Portable:         ids.ObjectID(v.Portable),
	}
	for _, e := range v.Roster {
		st.Roster = append(st.Roster, contain.RosterEntry{ID: ids.ObjectID(e.ID), Stealth: e.Stealth, Frame: e.Frame})
	}
	if g := v.Garrison; g != nil {
		gs := &contain.GarrisonState{Loaded: g.Loaded}
		for i := range g.Points {
			gs.Points[i] = arraysToVecs(g.Points[i])
		}
		for _, sl := range g.Slots {
			gs.Slots = append(gs.Slots, contain.Slot{
				Occupant:        ids.ObjectID(sl.Occupant),
				Target:          ids.ObjectID(sl.Target),
				PlaceFrame:      sl.PlaceFrame,
				Effect:          ids.DrawableID(sl.Effect),
				Flashing:        sl.Flashing,
				LastEffectFrame: sl.LastEffectFrame,
			})
		}
		st.Garrison = gs
	}
	if s := v.Station; s != nil {
		ss := &contain.StationState{Loaded: s.Loaded, Points: arraysToVecs(s.Points)}
		for _, id := range s.Occupants {
			ss.Occupants = append(ss.Occupants, ids.ObjectID(id))
		}
		st.Station = ss
	}
	return st
}
