package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Open is plain transport-style containment. Non-enclosed riders stand at
// FIREPOINT bones handed out round-robin.
type Open struct {
	enclosing bool
	cursor    int
}

func (p *Open) Kind() PolicyKind                   { return PolicyOpen }
func (p *Open) IsEnclosingFor(*object.Object) bool { return p.enclosing }
func (p *Open) outside(*object.Object) bool        { return false }
func (p *Open) SlotOf(ids.ObjectID) int            { return -1 }

func (p *Open) IsValidContainerFor(c *Container, occ *object.Object, checkCapacity bool) error {
	if checkCapacity && c.def.MaxOccupants > 0 && c.transportLoad()+slotCost(occ) > c.def.MaxOccupants {
		return ErrFull
	}
	return nil
}

func (p *Open) OnContaining(c *Container, occ *object.Object) {
	if !p.enclosing {
		occ.Pos = p.nextFirePoint(c, c.ownerObj())
	}
}

func (p *Open) OnRemoving(*Container, *object.Object) {}
func (p *Open) release(*Container, ids.ObjectID)      {}

func (p *Open) nextFirePoint(c *Container, owner *object.Object) geom.Vec3 {
	pts := c.svc.Render.SampleBones(c.owner, owner.Damage, FirePointBone, MaxGarrisonPoints)
	if len(pts) == 0 {
		return owner.Pos
	}
	pt := pts[p.cursor%len(pts)]
	p.cursor = (p.cursor + 1) % len(pts)
	return pt
}

func (p *Open) Redeploy(c *Container) {
	if p.enclosing {
		return
	}
	owner := c.ownerObj()
	p.cursor = 0
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil {
			occ.Pos = p.nextFirePoint(c, owner)
		}
	}
}

func (p *Open) Update(c *Container) {
	if !p.enclosing {
		return
	}
	owner := c.ownerObj()
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil {
			occ.Pos = owner.Pos
		}
	}
}

func (p *Open) Exit(c *Container, occ *object.Object, door int) {
	owner := c.ownerObj()
	if owner == nil {
		return
	}
	if !c.exitViaBones(owner, occ, door) {
		c.scatter(owner, occ)
	}
}

func (p *Open) AllowFire(c *Container, _ *object.Object) bool {
	return c.def.PassengersAllowedToFire
}

func (p *Open) onDamage(*Container, object.DamageState, object.DamageState) {}

func (p *Open) firePoint(c *Container, occ *object.Object, target geom.Vec3) (geom.Vec3, bool) {
	return occ.Pos, occ.Weapon.InRange(occ.Pos, target)
}

func (p *Open) bestFirePoint(c *Container, _ geom.Vec3) (geom.Vec3, bool) {
	return c.ownerObj().Pos, false
}

func (p *Open) teardown(*Container) {}

func (p *Open) export(st *State) { st.FirePointCursor = p.cursor }

func (p *Open) load(st State) error {
	if st.FirePointCursor < 0 || st.FirePointCursor >= MaxGarrisonPoints {
		return invalidData("fire point cursor %d", st.FirePointCursor)
	}
	p.cursor = st.FirePointCursor
	return nil
}

func (p *Open) postLoad(*Container) error { return nil }
