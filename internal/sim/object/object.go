package object

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

type Geometry struct {
	BoundingRadius float64
	MajorRadius    float64
	MinorRadius    float64
}

type Weapon struct {
	Range        float64
	Damage       float64
	DamageType   string
	ReloadFrames uint32

	HasShot       bool
	LastShotFrame uint32
}

func (w *Weapon) InRange(from, to geom.Vec3) bool {
	if w == nil {
		return false
	}
	return geom.DistSq(from, to) <= w.Range*w.Range
}

func (w *Weapon) Ready(frame uint32) bool {
	if w == nil {
		return false
	}
	return !w.HasShot || frame-w.LastShotFrame >= w.ReloadFrames
}

func (w *Weapon) RecordShot(frame uint32) {
	w.HasShot = true
	w.LastShotFrame = frame
}

// FiredOn reports whether the last shot happened exactly at frame.
func (w *Weapon) FiredOn(frame uint32) bool {
	return w != nil && w.HasShot && w.LastShotFrame == frame
}

// AI is the part of an entity's decision state this subsystem reads.
type AI struct {
	GoalID       ids.ObjectID
	VictimPos    geom.Vec3
	HasVictimPos bool

	Locomotor string
	Speed     float64

	Path       []geom.Vec3
	PathSource string
}

func (a *AI) ClearTarget() {
	a.GoalID = ids.InvalidObject
	a.HasVictimPos = false
	a.VictimPos = geom.Vec3{}
}

func (a *AI) HasTarget() bool {
	return a != nil && (a.GoalID != ids.InvalidObject || a.HasVictimPos)
}

// Object is one simulation entity. Containers hold occupants by id, never by pointer.
type Object struct {
	ID       ids.ObjectID
	Template string
	Kind     KindOf
	Team     ids.PlayerID

	Pos geom.Vec3
	Yaw float64

	Health    float64
	MaxHealth float64
	Damage    DamageState
	Status    Status

	Geometry       Geometry
	TransportSlots int
	Mobile         bool

	Weapon *Weapon
	AI     *AI

	containedBy    ids.ObjectID
	containedFrame uint32
}

func (o *Object) Transform() geom.Transform { return geom.Transform{Pos: o.Pos, Yaw: o.Yaw} }

func (o *Object) IsKindOf(k KindOf) bool    { return o.Kind.Has(k) }
func (o *Object) IsAnyKindOf(k KindOf) bool { return o.Kind.HasAny(k) }

func (o *Object) TestStatus(s Status) bool { return o.Status.Has(s) }
func (o *Object) SetStatus(s Status)       { o.Status |= s }
func (o *Object) ClearStatus(s Status)     { o.Status &^= s }

func (o *Object) ContainedBy() ids.ObjectID { return o.containedBy }
func (o *Object) ContainedFrame() uint32    { return o.containedFrame }
func (o *Object) IsContained() bool         { return o.containedBy != ids.InvalidObject }

// BindContainer records (or, with InvalidObject, clears) the containing entity.
// Only the containment subsystem calls this, in the same step that changes slot bindings,
// and snapshot restore before containers are rebuilt.
func (o *Object) BindContainer(by ids.ObjectID, frame uint32) {
	o.containedBy = by
	if by == ids.InvalidObject {
		o.containedFrame = 0
		return
	}
	o.containedFrame = frame
}

func (o *Object) IsEffectivelyDead() bool {
	return o.Status.Has(StatusDead) || o.Health <= 0
}

// ApplyDamage lowers health and returns the damage-state transition.
func (o *Object) ApplyDamage(amount float64) (old, cur DamageState) {
	old = o.Damage
	if amount <= 0 || o.IsEffectivelyDead() {
		return old, old
	}
	o.Health -= amount
	if o.Health < 0 {
		o.Health = 0
	}
	o.Damage = DamageStateFor(o.Health, o.MaxHealth)
	return old, o.Damage
}

// Heal raises health up to max and returns the damage-state transition.
func (o *Object) Heal(amount float64) (old, cur DamageState) {
	old = o.Damage
	if amount <= 0 || o.IsEffectivelyDead() {
		return old, old
	}
	o.Health += amount
	if o.Health > o.MaxHealth {
		o.Health = o.MaxHealth
	}
	o.Damage = DamageStateFor(o.Health, o.MaxHealth)
	return old, o.Damage
}

func (o *Object) Kill() {
	o.Health = 0
	o.Damage = Rubble
	o.SetStatus(StatusDead)
}

// Target resolves the entity's current victim position: the goal object's position
// if it resolves, else an explicit victim position.
func (o *Object) Target(lookup func(ids.ObjectID) *Object) (pos geom.Vec3, goal ids.ObjectID, ok bool) {
	if o.AI == nil {
		return geom.Vec3{}, ids.InvalidObject, false
	}
	if o.AI.GoalID != ids.InvalidObject && lookup != nil {
		if g := lookup(o.AI.GoalID); g != nil && !g.IsEffectivelyDead() {
			return g.Pos, g.ID, true
		}
	}
	if o.AI.HasVictimPos {
		return o.AI.VictimPos, ids.InvalidObject, true
	}
	return geom.Vec3{}, ids.InvalidObject, false
}
