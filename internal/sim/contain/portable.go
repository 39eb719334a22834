package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Portable is carrier containment: riders are enclosed like transport cargo and
// at most one portable structure rides outside the roster, glued to the carrier.
type Portable struct {
	id ids.ObjectID
}

func (p *Portable) Kind() PolicyKind { return PolicyPortable }

func (p *Portable) IsEnclosingFor(occ *object.Object) bool {
	return !occ.IsKindOf(object.KindPortableStructure)
}

func (p *Portable) outside(occ *object.Object) bool {
	return occ.IsKindOf(object.KindPortableStructure)
}

func (p *Portable) SlotOf(ids.ObjectID) int { return -1 }

func (p *Portable) IsValidContainerFor(c *Container, occ *object.Object, checkCapacity bool) error {
	if occ.IsKindOf(object.KindPortableStructure) {
		if p.id != ids.InvalidObject {
			return ErrPortableOccupied
		}
		return nil
	}
	if occ.Team != c.ownerObj().Team {
		return ErrRelationship
	}
	if occ.TransportSlots <= 0 {
		return ErrKindOf
	}
	if checkCapacity && c.def.MaxOccupants > 0 && c.transportLoad()+occ.TransportSlots > c.def.MaxOccupants {
		return ErrFull
	}
	return nil
}

func (p *Portable) OnContaining(c *Container, occ *object.Object) {
	if !occ.IsKindOf(object.KindPortableStructure) {
		return
	}
	p.id = occ.ID
	p.track(c, c.ownerObj(), occ)
}

func (p *Portable) OnRemoving(c *Container, occ *object.Object) { p.release(c, occ.ID) }

func (p *Portable) release(_ *Container, id ids.ObjectID) {
	if id == p.id {
		p.id = ids.InvalidObject
	}
}

func (p *Portable) track(c *Container, owner, occ *object.Object) {
	occ.Pos = owner.Pos
	occ.Yaw = owner.Yaw
	if occ.Damage != owner.Damage && owner.Damage != object.Rubble {
		occ.Damage = owner.Damage
	}
}

func (p *Portable) Redeploy(*Container) {}

func (p *Portable) Update(c *Container) {
	owner := c.ownerObj()
	if p.id != ids.InvalidObject {
		if occ := c.lookup(p.id); occ != nil {
			p.track(c, owner, occ)
		} else {
			p.id = ids.InvalidObject
		}
	}
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil {
			occ.Pos = owner.Pos
		}
	}
}

func (p *Portable) Exit(c *Container, occ *object.Object, door int) {
	owner := c.ownerObj()
	if owner == nil {
		return
	}
	if occ.IsKindOf(object.KindPortableStructure) {
		occ.Pos = owner.Pos
		return
	}
	if !c.exitViaBones(owner, occ, door) {
		c.scatter(owner, occ)
	}
}

// AllowFire lets the portable structure shoot unless the carrier is itself
// contained. Riders follow the passenger flag and must be infantry.
func (p *Portable) AllowFire(c *Container, occ *object.Object) bool {
	if occ.ID == p.id {
		return !c.ownerObj().IsContained()
	}
	return c.def.PassengersAllowedToFire && occ.IsKindOf(object.KindInfantry)
}

func (p *Portable) onDamage(c *Container, _, cur object.DamageState) {
	if p.id == ids.InvalidObject || cur == object.Rubble {
		return
	}
	if occ := c.lookup(p.id); occ != nil {
		occ.Damage = cur
	}
}

func (p *Portable) firePoint(c *Container, occ *object.Object, target geom.Vec3) (geom.Vec3, bool) {
	pos := c.ownerObj().Pos
	return pos, occ.Weapon.InRange(pos, target)
}

func (p *Portable) bestFirePoint(c *Container, _ geom.Vec3) (geom.Vec3, bool) {
	return c.ownerObj().Pos, false
}

func (p *Portable) teardown(*Container) {}

func (p *Portable) export(st *State) { st.Portable = p.id }

func (p *Portable) load(st State) error {
	if st.Portable != ids.InvalidObject && containsRoster(st.Roster, st.Portable) {
		return invalidData("portable %s also in roster", st.Portable)
	}
	p.id = st.Portable
	return nil
}

func (p *Portable) postLoad(c *Container) error {
	if p.id == ids.InvalidObject {
		return nil
	}
	occ := c.lookup(p.id)
	if occ == nil || occ.ContainedBy() != c.owner {
		return invalidData("portable %s does not resolve", p.id)
	}
	return nil
}
