package world

import (
	"sort"

	"rtsgarrison.dev/internal/persistence/snapshot"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// ExportSnapshot captures the full world state as of the end of nowTick.
// Snapshot must be called from the world loop goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
			Digest:  w.stateDigest(nowTick),
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		StrictInvariants:   w.cfg.StrictInvariants,
		Catalogs:           w.catalogs.Digests(),
		Counters: snapshot.CountersV1{
			NextObject:   uint32(w.nextObject),
			NextDrawable: uint32(w.nextDrawable),
			RNG:          w.rng.state,
		},
	}
	for _, p := range w.players {
		s.Players = append(s.Players, snapshot.PlayerV1{ID: int8(p.ID), Name: p.Name})
	}

	rels := make([][2]ids.PlayerID, 0, len(w.relations))
	for k := range w.relations {
		rels = append(rels, k)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i][0] != rels[j][0] {
			return rels[i][0] < rels[j][0]
		}
		return rels[i][1] < rels[j][1]
	})
	for _, k := range rels {
		s.Relationships = append(s.Relationships, snapshot.RelationV1{From: int8(k[0]), To: int8(k[1]), Rel: int8(w.relations[k])})
	}

	s.Objects = make([]snapshot.ObjectV1, 0, len(w.order))
	for _, id := range w.order {
		s.Objects = append(s.Objects, w.exportObject(w.objects[id]))
	}

	s.Containers = make([]snapshot.ContainV1, 0, len(w.containers))
	for _, id := range w.sortedContainerIDs() {
		s.Containers = append(s.Containers, exportContainer(w.containers[id].Export()))
	}

	fx := make([]ids.DrawableID, 0, len(w.effects))
	for id := range w.effects {
		fx = append(fx, id)
	}
	sort.Slice(fx, func(i, j int) bool { return fx[i] < fx[j] })
	for _, id := range fx {
		m := w.effects[id]
		s.Effects = append(s.Effects, snapshot.EffectV1{
			ID:     uint32(id),
			Owner:  uint32(m.owner),
			Pos:    m.pos.ToArray(),
			Yaw:    m.yaw,
			Firing: m.firing,
		})
	}
	return s
}

func (w *World) exportObject(o *object.Object) snapshot.ObjectV1 {
	v := snapshot.ObjectV1{
		ID:             uint32(o.ID),
		Template:       o.Template,
		Kind:           uint32(o.Kind),
		Team:           int8(o.Team),
		Pos:            o.Pos.ToArray(),
		Yaw:            o.Yaw,
		Health:         o.Health,
		MaxHealth:      o.MaxHealth,
		Damage:         uint8(o.Damage),
		Status:         uint32(o.Status),
		BoundingRadius: o.Geometry.BoundingRadius,
		MajorRadius:    o.Geometry.MajorRadius,
		MinorRadius:    o.Geometry.MinorRadius,
		TransportSlots: o.TransportSlots,
		Mobile:         o.Mobile,
		ContainedBy:    uint32(o.ContainedBy()),
		ContainedFrame: o.ContainedFrame(),
		Registered:     w.registered[o.ID],
		Hidden:         w.hidden[o.ID],
		Garrisoned:     w.garrisoned[o.ID],
	}
	if wp := o.Weapon; wp != nil {
		v.Weapon = &snapshot.WeaponV1{
			Range:         wp.Range,
			Damage:        wp.Damage,
			DamageType:    wp.DamageType,
			ReloadFrames:  wp.ReloadFrames,
			HasShot:       wp.HasShot,
			LastShotFrame: wp.LastShotFrame,
		}
	}
	if ai := o.AI; ai != nil {
		v.AI = &snapshot.AIV1{
			GoalID:       uint32(ai.GoalID),
			VictimPos:    ai.VictimPos.ToArray(),
			HasVictimPos: ai.HasVictimPos,
			Locomotor:    ai.Locomotor,
			Speed:        ai.Speed,
			Path:         vecsToArrays(ai.Path),
			PathSource:   ai.PathSource,
		}
	}
	return v
}

func exportContainer(st contain.State) snapshot.ContainV1 {
	v := snapshot.ContainV1{
		Owner:            uint32(st.Owner),
		Policy:           uint8(st.Policy),
		PlayerEntered:    uint16(st.PlayerEntered),
		LoadSoundFrame:   st.LoadSoundFrame,
		UnloadSoundFrame: st.UnloadSoundFrame,
		ConditionKey:     st.ConditionKey,
		LastPos:          st.LastTransform.Pos.ToArray(),
		LastYaw:          st.LastTransform.Yaw,
		ExitWhich:        st.ExitWhich,
		DoorOpen:         st.DoorOpen,
		DoorCountdown:    st.DoorCountdown,
		Rally:            st.Rally.ToArray(),
		HasRally:         st.HasRally,
		OriginalTeam:     int8(st.OriginalTeam),
		TeamOverridden:   st.TeamOverridden,
		FirePointCursor:  st.FirePointCursor,
		Portable:         uint32(st.Portable),
	}
	for _, e := range st.Roster {
		v.Roster = append(v.Roster, snapshot.RosterEntryV1{ID: uint32(e.ID), Stealth: e.Stealth, Frame: e.Frame})
	}
	if g := st.Garrison; g != nil {
		gv := &snapshot.GarrisonV1{Loaded: g.Loaded}
		for i := range g.Points {
			gv.Points[i] = vecsToArrays(g.Points[i])
		}
		for _, sl := range g.Slots {
			gv.Slots = append(gv.Slots, snapshot.SlotV1{
				Occupant:        uint32(sl.Occupant),
				Target:          uint32(sl.Target),
				PlaceFrame:      sl.PlaceFrame,
				Effect:          uint32(sl.Effect),
				Flashing:        sl.Flashing,
				LastEffectFrame: sl.LastEffectFrame,
			})
		}
		v.Garrison = gv
	}
	if s := st.Station; s != nil {
		sv := &snapshot.StationV1{Loaded: s.Loaded, Points: vecsToArrays(s.Points)}
		for _, id := range s.Occupants {
			sv.Occupants = append(sv.Occupants, uint32(id))
		}
		v.Station = sv
	}
	return v
}

func vecsToArrays(in []geom.Vec3) [][3]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([][3]float64, len(in))
	for i, p := range in {
		out[i] = p.ToArray()
	}
	return out
}

func arraysToVecs(in [][3]float64) []geom.Vec3 {
	if len(in) == 0 {
		return nil
	}
	out := make([]geom.Vec3, len(in))
	for i, p := range in {
		out[i] = geom.FromArray(p)
	}
	return out
}
