package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Garrison is building-style containment. Enclosing garrisons park occupants at
// bone-derived fire points chosen by target proximity; non-enclosing ones pin
// occupants to station slots.
type Garrison struct {
	enclosing bool
	slots     GarrisonSlots
	station   StationSlots
	fx        EffectSync

	// waiting holds occupants already counted as a slot miss.
	waiting map[ids.ObjectID]bool
}

func (g *Garrison) Kind() PolicyKind                   { return PolicyGarrison }
func (g *Garrison) IsEnclosingFor(*object.Object) bool { return g.enclosing }
func (g *Garrison) outside(*object.Object) bool        { return false }

// Slots exposes the fire point table for inspection.
func (g *Garrison) Slots() *GarrisonSlots { return &g.slots }

func (g *Garrison) Stations() *StationSlots { return &g.station }

func (g *Garrison) SlotOf(id ids.ObjectID) int {
	if g.enclosing {
		return g.slots.IndexOf(id)
	}
	return g.station.IndexOf(id)
}

func (g *Garrison) IsValidContainerFor(c *Container, occ *object.Object, checkCapacity bool) error {
	if occ.IsKindOf(object.KindNoGarrison) {
		return ErrNotGarrisonable
	}
	owner := c.ownerObj()
	if owner.Damage >= object.ReallyDamaged && !owner.IsKindOf(object.KindGarrisonableUntilDestroyed) {
		return ErrContainerDead
	}
	if checkCapacity && c.def.MaxOccupants > 0 && c.roster.Len() >= c.def.MaxOccupants {
		return ErrFull
	}
	return nil
}

func (g *Garrison) loadSlots(c *Container, owner *object.Object) {
	g.slots.Load(func(cond object.DamageState) []geom.Vec3 {
		return c.svc.Render.SampleBones(c.owner, cond, FirePointBone, MaxGarrisonPoints)
	}, owner.Pos, c.def.MaxOccupants)
}

// OnContaining hands over the owner's team. Enclosed occupants wait at center
// until the next update slots them; station occupants are pinned immediately.
func (g *Garrison) OnContaining(c *Container, occ *object.Object) {
	owner := c.ownerObj()
	c.takeOver(owner, occ)
	c.svc.Render.SetGarrisoned(c.owner, true)
	if g.enclosing {
		occ.SetStatus(object.StatusGarrisonBonus)
		if !g.slots.Loaded() {
			g.loadSlots(c, owner)
		}
		return
	}
	g.station.Load(c.svc.Render.SampleBones(c.owner, object.Pristine, StationBone, MaxGarrisonPoints))
	if _, ok := g.station.PickVacancy(occ.ID); !ok {
		c.svc.Metrics.SlotMiss()
		occ.Pos = owner.Pos
		return
	}
	occ.Pos, _ = g.station.PositionOf(occ.ID)
}

func (g *Garrison) OnRemoving(c *Container, occ *object.Object) {
	g.release(c, occ.ID)
	occ.ClearStatus(object.StatusGarrisonBonus)
}

func (g *Garrison) release(c *Container, id ids.ObjectID) {
	delete(g.waiting, id)
	if g.enclosing {
		if i := g.slots.IndexOf(id); i >= 0 {
			g.unbind(i)
		}
	} else {
		g.station.Release(id)
	}
	if owner := c.ownerObj(); owner != nil {
		c.restoreTeam(owner)
	}
	c.svc.Render.SetGarrisoned(c.owner, c.roster.Len() > 0)
}

func (g *Garrison) unbind(i int) {
	s := g.slots.at(i)
	g.fx.Detach(s)
	*s = Slot{}
}

func (g *Garrison) putAt(c *Container, occ *object.Object, i int, cond object.DamageState, placeFrame uint32, goal ids.ObjectID) {
	s := g.slots.at(i)
	if !s.Free() && s.Occupant != occ.ID {
		_ = c.svc.violate(c.owner, occ.ID, "slot already bound")
		return
	}
	pos := g.slots.Point(cond, i)
	occ.Pos = pos
	s.Occupant = occ.ID
	s.Target = goal
	s.PlaceFrame = placeFrame
	g.fx.Attach(c.owner, s, pos)
	delete(g.waiting, occ.ID)
	c.emit(EventSlot, occ.ID, i, "")
}

// missed counts a slot miss once per wait rather than once per frame.
func (g *Garrison) missed(c *Container, id ids.ObjectID) {
	if g.waiting[id] {
		return
	}
	if g.waiting == nil {
		g.waiting = map[ids.ObjectID]bool{}
	}
	g.waiting[id] = true
	c.svc.Metrics.SlotMiss()
}

// unslot frees occupant i's slot and parks it at center.
func (g *Garrison) unslot(c *Container, owner *object.Object, i int, reason string) {
	id := g.slots.Slot(i).Occupant
	g.unbind(i)
	if occ := c.lookup(id); occ != nil {
		occ.Pos = owner.Pos
	}
	c.emit(EventUnslot, id, i, reason)
}

// Redeploy re-samples fire points and reassigns every slotted occupant in roster
// order, carrying placement frames over. Station slots are never re-derived.
func (g *Garrison) Redeploy(c *Container) {
	if !g.enclosing {
		return
	}
	owner := c.ownerObj()
	type placed struct {
		id    ids.ObjectID
		frame uint32
	}
	var keep []placed
	for id := range c.roster.All(Forward) {
		if i := g.slots.IndexOf(id); i >= 0 {
			keep = append(keep, placed{id: id, frame: g.slots.Slot(i).PlaceFrame})
		}
	}
	for i := 0; i < g.slots.Len(); i++ {
		if !g.slots.Slot(i).Free() {
			g.unbind(i)
		}
	}
	g.loadSlots(c, owner)
	cond := owner.Damage
	lookup := c.svc.Objects.Object
	for _, k := range keep {
		occ := c.lookup(k.id)
		if occ == nil {
			continue
		}
		aim, goal, ok := occ.Target(lookup)
		if !ok {
			aim = owner.Pos
		}
		i := g.slots.FindClosestFree(cond, aim)
		if i < 0 {
			g.missed(c, occ.ID)
			occ.Pos = owner.Pos
			continue
		}
		g.putAt(c, occ, i, cond, k.frame, goal)
	}
	for id := range c.roster.All(Forward) {
		if g.slots.IndexOf(id) < 0 {
			if occ := c.lookup(id); occ != nil {
				occ.Pos = owner.Pos
			}
		}
	}
}

// Update runs eviction of invalid slots, admission of newly armed occupants,
// effect aging, then retargeting. Each step sees the previous step's slot table.
func (g *Garrison) Update(c *Container) {
	owner := c.ownerObj()
	if !g.enclosing {
		for id := range c.roster.All(Forward) {
			if occ := c.lookup(id); occ != nil {
				if pos, ok := g.station.PositionOf(id); ok {
					occ.Pos = pos
				} else {
					occ.Pos = owner.Pos
				}
			}
		}
		return
	}
	if !g.slots.Loaded() {
		g.loadSlots(c, owner)
	}
	cond := owner.Damage
	frame := c.svc.now()
	g.pruneDead(c)
	g.removeInvalid(c, owner, cond)
	g.addValid(c, owner, cond, frame)
	g.updateEffects(c, frame)
	g.trackTargets(c, owner, cond, frame)
	for id := range c.roster.All(Forward) {
		if g.slots.IndexOf(id) >= 0 {
			continue
		}
		if occ := c.lookup(id); occ != nil {
			occ.Pos = owner.Pos
		}
	}
}

func (g *Garrison) pruneDead(c *Container) {
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil && occ.IsEffectivelyDead() {
			_ = c.Evict(occ, false)
		}
	}
}

// removeInvalid unslots occupants that stopped attacking or whose target left weapon range.
func (g *Garrison) removeInvalid(c *Container, owner *object.Object, cond object.DamageState) {
	lookup := c.svc.Objects.Object
	for i := 0; i < g.slots.Len(); i++ {
		s := g.slots.Slot(i)
		if s.Free() {
			continue
		}
		occ := c.lookup(s.Occupant)
		if occ == nil {
			g.unbind(i)
			continue
		}
		if !occ.TestStatus(object.StatusAttacking) {
			g.unslot(c, owner, i, "idle")
			continue
		}
		aim, _, ok := occ.Target(lookup)
		if !ok || !occ.Weapon.InRange(g.slots.Point(cond, i), aim) {
			g.unslot(c, owner, i, "out_of_range")
		}
	}
}

// addValid slots unslotted occupants that have a target at the free point closest
// to it. Range is judged by removeInvalid on the next frame.
func (g *Garrison) addValid(c *Container, owner *object.Object, cond object.DamageState, frame uint32) {
	lookup := c.svc.Objects.Object
	for id := range c.roster.All(Forward) {
		if g.slots.IndexOf(id) >= 0 {
			continue
		}
		occ := c.lookup(id)
		if occ == nil || occ.Weapon == nil {
			continue
		}
		aim, goal, ok := occ.Target(lookup)
		if !ok {
			continue
		}
		i := g.slots.FindClosestFree(cond, aim)
		if i < 0 {
			g.missed(c, id)
			continue
		}
		g.putAt(c, occ, i, cond, frame, goal)
	}
}

func (g *Garrison) updateEffects(c *Container, frame uint32) {
	lookup := c.svc.Objects.Object
	for i := 0; i < g.slots.Len(); i++ {
		s := g.slots.at(i)
		if s.Free() {
			continue
		}
		occ := c.lookup(s.Occupant)
		if occ != nil && occ.Weapon.FiredOn(frame) {
			g.fx.Flash(s, frame, occ.Weapon.DamageType)
		}
		g.fx.Age(s, frame)
		if occ == nil {
			continue
		}
		if aim, _, ok := occ.Target(lookup); ok {
			occ.Yaw = geom.Heading(occ.Pos, aim)
			g.fx.Aim(s, occ.Pos, occ.Yaw)
		}
	}
}

// trackTargets moves an occupant, in roster order, when a free slot is strictly
// closer to its target.
func (g *Garrison) trackTargets(c *Container, owner *object.Object, cond object.DamageState, frame uint32) {
	lookup := c.svc.Objects.Object
	for id := range c.roster.All(Forward) {
		i := g.slots.IndexOf(id)
		if i < 0 {
			continue
		}
		occ := c.lookup(id)
		if occ == nil {
			continue
		}
		aim, goal, ok := occ.Target(lookup)
		if !ok {
			continue
		}
		cur := geom.DistSq(g.slots.Point(cond, i), aim)
		j := g.slots.FindClosestFree(cond, aim)
		if j < 0 || geom.DistSq(g.slots.Point(cond, j), aim) >= cur {
			continue
		}
		g.unbind(i)
		g.putAt(c, occ, j, cond, frame, goal)
	}
}

func (g *Garrison) Exit(c *Container, occ *object.Object, _ int) {
	if owner := c.ownerObj(); owner != nil {
		c.garrisonExit(owner, occ)
	}
}

func (g *Garrison) AllowFire(_ *Container, occ *object.Object) bool {
	if g.enclosing {
		return g.slots.IndexOf(occ.ID) >= 0
	}
	return true
}

// onDamage evacuates a garrison that becomes really damaged unless it holds until destroyed.
func (g *Garrison) onDamage(c *Container, old, cur object.DamageState) {
	owner := c.ownerObj()
	if owner == nil || owner.IsKindOf(object.KindGarrisonableUntilDestroyed) {
		return
	}
	if cur >= object.ReallyDamaged && old < object.ReallyDamaged {
		c.RemoveAll(false)
	}
}

func (g *Garrison) firePoint(c *Container, occ *object.Object, target geom.Vec3) (geom.Vec3, bool) {
	owner := c.ownerObj()
	if !g.enclosing {
		pos, ok := g.station.PositionOf(occ.ID)
		if !ok {
			pos = owner.Pos
		}
		return pos, occ.Weapon.InRange(pos, target)
	}
	if !g.slots.Loaded() {
		return owner.Pos, false
	}
	i := g.slots.IndexOf(occ.ID)
	if i < 0 {
		i = g.slots.FindClosestFree(owner.Damage, target)
	}
	if i < 0 {
		return owner.Pos, false
	}
	pos := g.slots.Point(owner.Damage, i)
	return pos, occ.Weapon.InRange(pos, target)
}

func (g *Garrison) bestFirePoint(c *Container, target geom.Vec3) (geom.Vec3, bool) {
	owner := c.ownerObj()
	if !g.enclosing || !g.slots.Loaded() {
		return owner.Pos, false
	}
	i := g.slots.FindClosestFree(owner.Damage, target)
	if i < 0 {
		return owner.Pos, false
	}
	return g.slots.Point(owner.Damage, i), true
}

func (g *Garrison) teardown(*Container) {
	for i := 0; i < g.slots.Len(); i++ {
		g.unbind(i)
	}
}

func (g *Garrison) export(st *State) {
	if g.enclosing {
		gs := &GarrisonState{Loaded: g.slots.loaded, Slots: append([]Slot(nil), g.slots.slots...)}
		for i := range g.slots.points {
			gs.Points[i] = append([]geom.Vec3(nil), g.slots.points[i]...)
		}
		st.Garrison = gs
		return
	}
	st.Station = &StationState{
		Loaded:    g.station.loaded,
		Points:    append([]geom.Vec3(nil), g.station.points...),
		Occupants: append([]ids.ObjectID(nil), g.station.occupants...),
	}
}

func (g *Garrison) load(st State) error {
	if g.enclosing {
		if st.Station != nil {
			return invalidData("station table on an enclosing garrison")
		}
		if st.Garrison == nil {
			return nil
		}
		gs := st.Garrison
		n := len(gs.Slots)
		if n > MaxGarrisonPoints {
			return invalidData("%d garrison slots", n)
		}
		for i := range gs.Points {
			if gs.Loaded && len(gs.Points[i]) != n {
				return invalidData("condition %d has %d points for %d slots", i, len(gs.Points[i]), n)
			}
		}
		seen := map[ids.ObjectID]bool{}
		for i, s := range gs.Slots {
			if s.Free() {
				continue
			}
			if !gs.Loaded || seen[s.Occupant] || !containsRoster(st.Roster, s.Occupant) {
				return invalidData("slot %d occupant %s", i, s.Occupant)
			}
			seen[s.Occupant] = true
		}
		for i := range gs.Points {
			g.slots.points[i] = append([]geom.Vec3(nil), gs.Points[i]...)
		}
		g.slots.slots = append([]Slot(nil), gs.Slots...)
		g.slots.loaded = gs.Loaded
		return nil
	}
	if st.Garrison != nil {
		return invalidData("garrison table on a station garrison")
	}
	if st.Station == nil {
		return nil
	}
	ss := st.Station
	if len(ss.Occupants) != len(ss.Points) || len(ss.Points) > MaxGarrisonPoints {
		return invalidData("station table has %d occupants for %d points", len(ss.Occupants), len(ss.Points))
	}
	seen := map[ids.ObjectID]bool{}
	for i, id := range ss.Occupants {
		if id == ids.InvalidObject {
			continue
		}
		if seen[id] || !containsRoster(st.Roster, id) {
			return invalidData("station %d occupant %s", i, id)
		}
		seen[id] = true
	}
	g.station.points = append([]geom.Vec3(nil), ss.Points...)
	g.station.occupants = append([]ids.ObjectID(nil), ss.Occupants...)
	g.station.loaded = ss.Loaded
	return nil
}

func (g *Garrison) postLoad(c *Container) error {
	for i := 0; i < g.slots.Len(); i++ {
		s := g.slots.Slot(i)
		if s.Effect == ids.InvalidDrawable {
			continue
		}
		if c.svc.Effects == nil || !c.svc.Effects.Exists(s.Effect) {
			return invalidData("slot %d effect %s does not resolve", i, s.Effect)
		}
	}
	return nil
}

func containsRoster(entries []RosterEntry, id ids.ObjectID) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}
