package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Policy is the per-variant containment behavior, chosen when the container is built.
type Policy interface {
	Kind() PolicyKind
	IsEnclosingFor(occ *object.Object) bool
	IsValidContainerFor(c *Container, occ *object.Object, checkCapacity bool) error
	OnContaining(c *Container, occ *object.Object)
	OnRemoving(c *Container, occ *object.Object)
	Redeploy(c *Container)
	Update(c *Container)
	Exit(c *Container, occ *object.Object, door int)
	AllowFire(c *Container, occ *object.Object) bool
	SlotOf(id ids.ObjectID) int

	// outside reports occupants tracked apart from the roster.
	outside(occ *object.Object) bool
	release(c *Container, id ids.ObjectID)
	onDamage(c *Container, old, cur object.DamageState)
	firePoint(c *Container, occ *object.Object, target geom.Vec3) (geom.Vec3, bool)
	bestFirePoint(c *Container, target geom.Vec3) (geom.Vec3, bool)
	teardown(c *Container)
	export(st *State)
	load(st State) error
	postLoad(c *Container) error
}

func newPolicy(def Def, svc *Services) Policy {
	switch def.Policy {
	case PolicyGarrison:
		return &Garrison{enclosing: def.Enclosing, fx: NewEffectSync(svc.Effects, svc.TickRateHz)}
	case PolicyPortable:
		return &Portable{}
	default:
		return &Open{enclosing: def.Enclosing}
	}
}

// transportLoad sums the transport slots used by the roster, counting at least one per occupant.
func (c *Container) transportLoad() int {
	n := 0
	for id := range c.roster.All(Forward) {
		n += slotCost(c.svc.Objects.Object(id))
	}
	return n
}

func slotCost(o *object.Object) int {
	if o == nil || o.TransportSlots < 1 {
		return 1
	}
	return o.TransportSlots
}
