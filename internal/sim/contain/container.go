package contain

import (
	"errors"
	"iter"
	"math"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Container holds occupants for one owning entity.
type Container struct {
	owner  ids.ObjectID
	def    Def
	svc    *Services
	policy Policy

	roster        Roster
	playerEntered ids.PlayerMask

	// Frame+1 of the last cue; zero means never played.
	loadSound   uint32
	unloadSound uint32

	condKey string
	lastXf  geom.Transform
	exit    exitState

	originalTeam   ids.PlayerID
	teamOverridden bool
	stealthHidden  bool

	torn bool
}

func New(owner *object.Object, def Def, svc *Services) (*Container, error) {
	if owner == nil {
		return nil, errors.New("contain: nil owner")
	}
	if svc == nil || svc.Objects == nil || svc.Nav == nil || svc.Render == nil {
		return nil, errors.New("contain: services need objects, nav and render")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	svc.fill()
	c := &Container{
		owner:        owner.ID,
		def:          def,
		svc:          svc,
		originalTeam: owner.Team,
		lastXf:       owner.Transform(),
		condKey:      svc.Render.ConditionKey(owner.ID),
	}
	c.policy = newPolicy(def, svc)
	return c, nil
}

func (c *Container) Owner() ids.ObjectID           { return c.owner }
func (c *Container) Def() Def                      { return c.def }
func (c *Container) Policy() Policy                { return c.policy }
func (c *Container) Count() int                    { return c.roster.Len() }
func (c *Container) Max() int                      { return c.def.MaxOccupants }
func (c *Container) Contains(id ids.ObjectID) bool { return c.roster.Contains(id) }
func (c *Container) StealthCount() int             { return c.roster.StealthCount() }
func (c *Container) PlayerEntered() ids.PlayerMask { return c.playerEntered }
func (c *Container) TornDown() bool                { return c.torn }

func (c *Container) Occupants(dir Direction) iter.Seq[ids.ObjectID] { return c.roster.All(dir) }

func (c *Container) EntryFrame(id ids.ObjectID) (uint32, bool) { return c.roster.EntryFrame(id) }

// SlotOf returns the occupant's slot index, or -1 while unslotted.
func (c *Container) SlotOf(id ids.ObjectID) int { return c.policy.SlotOf(id) }

// Portable returns the carried portable structure, if any.
func (c *Container) Portable() ids.ObjectID {
	if p, ok := c.policy.(*Portable); ok {
		return p.id
	}
	return ids.InvalidObject
}

func (c *Container) ownerObj() *object.Object { return c.svc.Objects.Object(c.owner) }
func (c *Container) lookup(id ids.ObjectID) *object.Object {
	return c.svc.Objects.Object(id)
}

func (c *Container) emit(kind EventKind, occ ids.ObjectID, slot int, reason string) {
	c.svc.Events.Emit(Event{
		Frame:     c.svc.now(),
		Kind:      kind,
		Container: c.owner,
		Occupant:  occ,
		Slot:      slot,
		Reason:    reason,
	})
}

func (c *Container) IsValidContainerFor(occ *object.Object, checkCapacity bool) error {
	owner := c.ownerObj()
	if c.torn || owner == nil || owner.IsEffectivelyDead() {
		return ErrContainerDead
	}
	if occ == nil || occ.ID == c.owner {
		return ErrKindOf
	}
	if occ.IsContained() || c.roster.Contains(occ.ID) {
		return ErrAlreadyContained
	}
	if c.def.AllowKinds != 0 && !occ.IsAnyKindOf(c.def.AllowKinds) {
		return ErrKindOf
	}
	if occ.IsAnyKindOf(c.def.ForbidKinds) {
		return ErrKindOf
	}
	allowed := false
	switch c.svc.Objects.Relationship(owner.Team, occ.Team) {
	case object.Allies:
		allowed = c.def.AllowAllies
	case object.Enemies:
		allowed = c.def.AllowEnemies
	default:
		allowed = c.def.AllowNeutral
	}
	if !allowed {
		return ErrRelationship
	}
	return c.policy.IsValidContainerFor(c, occ, checkCapacity)
}

// Check is IsValidContainerFor with the capacity test.
func (c *Container) Check(occ *object.Object) error { return c.IsValidContainerFor(occ, true) }

// Admit validates and contains occ. A rejection leaves all state untouched.
func (c *Container) Admit(occ *object.Object) error {
	if err := c.Check(occ); err != nil {
		c.reject(occ, err)
		return err
	}
	c.add(occ)
	return nil
}

func (c *Container) reject(occ *object.Object, err error) {
	code := Code(err)
	var id ids.ObjectID
	if occ != nil {
		id = occ.ID
	}
	c.svc.Metrics.Rejected(code)
	c.svc.Log.Debug().
		Uint32("container", uint32(c.owner)).
		Uint32("occupant", uint32(id)).
		Str("code", code).
		Msg("admission rejected")
	c.emit(EventReject, id, -1, code)
}

func (c *Container) add(occ *object.Object) {
	frame := c.svc.now()
	owner := c.ownerObj()
	if !c.policy.outside(occ) {
		c.roster.add(occ.ID, occ.IsKindOf(object.KindStealthGarrison), frame)
	}
	c.playerEntered |= occ.Team.Mask()
	occ.BindContainer(c.owner, frame)
	occ.SetStatus(object.StatusHeld)
	if occ.AI != nil {
		occ.AI.Path = nil
		occ.AI.PathSource = ""
	}
	if c.policy.IsEnclosingFor(occ) {
		c.svc.Nav.Unregister(occ)
		c.svc.Render.SetHidden(occ.ID, true)
		occ.Pos = owner.Pos
	}
	c.policy.OnContaining(c, occ)
	c.playSound(&c.loadSound, c.def.EnterSound)
	c.svc.Metrics.Admitted(c.def.Template)
	c.emit(EventAdmit, occ.ID, c.policy.SlotOf(occ.ID), "")
	c.refreshApparent()
}

// Evict releases occ back into the world. exposeStealth marks stealthed occupants detected.
// The contained-by reference is cleared last.
func (c *Container) Evict(occ *object.Object, exposeStealth bool) error {
	if occ == nil {
		return ErrNotContained
	}
	if occ.ContainedBy() != c.owner {
		_ = c.svc.violate(c.owner, occ.ID, "evict of an occupant held elsewhere")
		return ErrNotContained
	}
	stealth := false
	if !c.policy.outside(occ) {
		e, ok := c.roster.remove(occ.ID)
		if !ok {
			_ = c.svc.violate(c.owner, occ.ID, "contained-by set without roster entry")
		}
		stealth = e.stealth
	}
	if exposeStealth && stealth {
		occ.SetStatus(object.StatusDetected)
	}
	c.policy.OnRemoving(c, occ)
	if c.policy.IsEnclosingFor(occ) {
		if owner := c.ownerObj(); owner != nil {
			occ.Pos = owner.Pos
		}
		c.svc.Nav.Register(occ)
		c.svc.Render.SetHidden(occ.ID, false)
	}
	occ.ClearStatus(object.StatusHeld | object.StatusGarrisonBonus)
	c.playSound(&c.unloadSound, c.def.ExitSound)
	c.svc.Metrics.Evicted()
	c.emit(EventEvict, occ.ID, -1, "")
	occ.BindContainer(ids.InvalidObject, 0)
	c.recomputeEntered()
	c.refreshApparent()
	return nil
}

// drop forgets an occupant id that no longer resolves.
func (c *Container) drop(id ids.ObjectID) {
	c.roster.remove(id)
	c.policy.release(c, id)
	c.svc.Log.Debug().
		Uint32("container", uint32(c.owner)).
		Uint32("occupant", uint32(id)).
		Msg("dropped unresolved occupant")
	c.emit(EventEvict, id, -1, "unresolved")
	c.recomputeEntered()
}

// ExitViaDoor evicts occ and sends it along an exit path. door < 1 picks the next path.
func (c *Container) ExitViaDoor(occ *object.Object, door int) error {
	if err := c.Evict(occ, false); err != nil {
		return err
	}
	c.policy.Exit(c, occ, door)
	c.emit(EventExit, occ.ID, -1, "")
	return nil
}

// Evacuate orders every roster occupant out and returns how many left.
func (c *Container) Evacuate() int {
	n := 0
	for id := range c.roster.All(Forward) {
		occ := c.lookup(id)
		if occ == nil {
			c.drop(id)
			continue
		}
		if c.ExitViaDoor(occ, DoorAny) == nil {
			n++
		}
	}
	return n
}

// RemoveAll evicts every occupant, the portable structure included.
func (c *Container) RemoveAll(exposeStealth bool) {
	for id := range c.roster.All(Forward) {
		occ := c.lookup(id)
		if occ == nil {
			c.drop(id)
			continue
		}
		if c.Evict(occ, exposeStealth) == nil {
			c.policy.Exit(c, occ, DoorAny)
		}
	}
	if pid := c.Portable(); pid != ids.InvalidObject {
		if occ := c.lookup(pid); occ != nil {
			_ = c.Evict(occ, exposeStealth)
		} else {
			c.policy.release(c, pid)
		}
	}
}

// Update is the per-frame driver. A condition change redeploys before anything else runs.
func (c *Container) Update() {
	if c.torn {
		return
	}
	owner := c.ownerObj()
	if owner == nil {
		return
	}
	for id := range c.roster.All(Forward) {
		if c.lookup(id) == nil {
			c.drop(id)
		}
	}
	key := c.svc.Render.ConditionKey(c.owner)
	xf := owner.Transform()
	switch {
	case key != c.condKey:
		c.condKey, c.lastXf = key, xf
		c.redeploy("condition")
	case xf != c.lastXf && c.followsTransform():
		c.lastXf = xf
		c.redeploy("moved")
	}
	c.tickDoor()
	c.policy.Update(c)
	c.heal()
	c.recomputeEntered()
	c.refreshApparent()
}

// followsTransform reports whether occupant placement depends on where the owner stands.
func (c *Container) followsTransform() bool {
	if c.def.MobileGarrison {
		return true
	}
	p, ok := c.policy.(*Open)
	return ok && !p.enclosing
}

func (c *Container) redeploy(reason string) {
	c.policy.Redeploy(c)
	c.svc.Metrics.Redeployed()
	c.svc.Log.Debug().Uint32("container", uint32(c.owner)).Str("reason", reason).Msg("redeployed occupants")
	c.emit(EventRedeploy, ids.InvalidObject, -1, reason)
}

// Redeploy re-samples slot geometry and reassigns every slotted occupant.
func (c *Container) Redeploy() {
	if c.torn || c.ownerObj() == nil {
		return
	}
	c.redeploy("requested")
}

func (c *Container) heal() {
	if !c.def.HealObjects || c.def.FramesForFullHeal == 0 {
		return
	}
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil && occ.Health < occ.MaxHealth {
			occ.Heal(occ.MaxHealth / float64(c.def.FramesForFullHeal))
		}
	}
}

// OnDamageStateChange reacts to the owner's body state moving from old to cur.
func (c *Container) OnDamageStateChange(old, cur object.DamageState) {
	if c.torn || old == cur {
		return
	}
	c.policy.onDamage(c, old, cur)
}

// OnDie damages occupants by the configured share of their max health and releases everyone.
func (c *Container) OnDie() {
	if c.torn {
		return
	}
	if pct := c.def.DamagePercentToUnits; pct > 0 {
		for id := range c.roster.All(Forward) {
			occ := c.lookup(id)
			if occ == nil {
				continue
			}
			if pct >= 100 {
				occ.Kill()
				continue
			}
			occ.ApplyDamage(occ.MaxHealth * pct / 100)
		}
	}
	c.RemoveAll(true)
}

func (c *Container) OnSelling() {
	if owner := c.ownerObj(); owner != nil {
		owner.SetStatus(object.StatusSold)
	}
	c.Evacuate()
	if pid := c.Portable(); pid != ids.InvalidObject {
		if occ := c.lookup(pid); occ != nil {
			_ = c.Evict(occ, false)
		}
	}
}

// Teardown runs right before the owner is destroyed. Occupants still held at this
// point are a violation and are force-released.
func (c *Container) Teardown() {
	if c.torn {
		return
	}
	pid := c.Portable()
	if c.roster.Len() > 0 || pid != ids.InvalidObject {
		first, _ := c.roster.Front()
		if first == ids.InvalidObject {
			first = pid
		}
		_ = c.svc.violate(c.owner, first, "teardown with occupants")
		c.forceClear()
	}
	c.policy.teardown(c)
	c.torn = true
}

func (c *Container) forceClear() {
	held := c.roster.IDs()
	if pid := c.Portable(); pid != ids.InvalidObject {
		held = append(held, pid)
	}
	for _, id := range held {
		c.policy.release(c, id)
		occ := c.lookup(id)
		if occ == nil || occ.ContainedBy() != c.owner {
			continue
		}
		if c.policy.IsEnclosingFor(occ) {
			c.svc.Nav.Register(occ)
			c.svc.Render.SetHidden(occ.ID, false)
		}
		occ.ClearStatus(object.StatusHeld | object.StatusGarrisonBonus)
		occ.BindContainer(ids.InvalidObject, 0)
	}
	c.roster.reset()
	c.playerEntered = 0
}

func (c *Container) MarkAllDetected() {
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil && c.roster.IsStealth(id) {
			occ.SetStatus(object.StatusDetected)
		}
	}
	c.refreshApparent()
}

// ClosestOccupant returns the held occupant nearest pos.
func (c *Container) ClosestOccupant(pos geom.Vec3) (ids.ObjectID, bool) {
	best := ids.InvalidObject
	bestDist := math.Inf(1)
	for id := range c.roster.All(Forward) {
		occ := c.lookup(id)
		if occ == nil {
			continue
		}
		if d := geom.DistSq(occ.Pos, pos); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != ids.InvalidObject
}

func (c *Container) PassengerAllowedToFire(occ *object.Object) bool {
	owner := c.ownerObj()
	if c.torn || owner == nil || owner.IsEffectivelyDead() || owner.TestStatus(object.StatusSubdued) {
		return false
	}
	if occ == nil || occ.ContainedBy() != c.owner {
		return false
	}
	if !c.policy.AllowFire(c, occ) {
		return false
	}
	// A carrier that is itself carried defers to its own container.
	if owner.IsContained() {
		if outer := c.svc.Objects.Container(owner.ContainedBy()); outer != nil {
			return outer.PassengerAllowedToFire(owner)
		}
	}
	return true
}

// AttemptFirePoint reports where occ would stand to shoot at target and whether
// its weapon reaches from there.
func (c *Container) AttemptFirePoint(occ *object.Object, target geom.Vec3) (geom.Vec3, bool) {
	if occ == nil || c.ownerObj() == nil {
		return geom.Vec3{}, false
	}
	return c.policy.firePoint(c, occ, target)
}

// BestFirePosition is the free fire point nearest target.
func (c *Container) BestFirePosition(target geom.Vec3) (geom.Vec3, bool) {
	if c.ownerObj() == nil {
		return geom.Vec3{}, false
	}
	return c.policy.bestFirePoint(c, target)
}

// ApparentController is the player viewer sees as controlling the container.
// A garrison whose occupants are all stealthed and undetected shows its original
// team to non-allies.
func (c *Container) ApparentController(viewer ids.PlayerID) ids.PlayerID {
	owner := c.ownerObj()
	if owner == nil {
		return ids.NoPlayer
	}
	if !c.stealthHidden || !c.teamOverridden || viewer == owner.Team {
		return owner.Team
	}
	if c.svc.Objects.Relationship(owner.Team, viewer) == object.Allies {
		return owner.Team
	}
	return c.originalTeam
}

func (c *Container) StealthHidden() bool { return c.stealthHidden }

func (c *Container) refreshApparent() {
	n := c.roster.Len()
	if n == 0 || c.roster.StealthCount() != n {
		c.stealthHidden = false
		return
	}
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil && occ.TestStatus(object.StatusDetected) {
			c.stealthHidden = false
			return
		}
	}
	c.stealthHidden = true
}

func (c *Container) recomputeEntered() {
	var m ids.PlayerMask
	for id := range c.roster.All(Forward) {
		if occ := c.lookup(id); occ != nil {
			m |= occ.Team.Mask()
		}
	}
	c.playerEntered = m
}

func (c *Container) playSound(last *uint32, event string) {
	if event == "" {
		return
	}
	stamp := c.svc.now() + 1
	if *last == stamp {
		return
	}
	*last = stamp
	c.svc.Audio.PostEvent(event, c.owner)
}

// takeOver gives the owner the occupant's team, remembering the original.
func (c *Container) takeOver(owner, occ *object.Object) {
	if c.teamOverridden || owner.Team == occ.Team {
		return
	}
	c.originalTeam = owner.Team
	owner.Team = occ.Team
	c.teamOverridden = true
}

func (c *Container) restoreTeam(owner *object.Object) {
	if !c.teamOverridden || c.roster.Len() > 0 {
		return
	}
	owner.Team = c.originalTeam
	c.teamOverridden = false
}
