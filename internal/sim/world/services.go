package world

import (
	"math"

	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// flatNav is a flat square map with no obstacles.
type flatNav World

func (n *flatNav) Register(o *object.Object)   { n.registered[o.ID] = true }
func (n *flatNav) Unregister(o *object.Object) { n.registered[o.ID] = false }

func (n *flatNav) clamp(p geom.Vec3) geom.Vec3 {
	r := n.cfg.BoundaryR
	p.X = math.Max(-r, math.Min(r, p.X))
	p.Y = math.Max(-r, math.Min(r, p.Y))
	return p
}

func (n *flatNav) AdjustToReachablePoint(_ *object.Object, _ string, p geom.Vec3) (geom.Vec3, bool) {
	q := n.clamp(p)
	q.Z = 0
	return q, true
}

func (n *flatNav) FollowPath(o *object.Object, path []geom.Vec3, src contain.CommandSource) {
	if o.AI == nil {
		return
	}
	o.AI.Path = append(o.AI.Path[:0], path...)
	o.AI.PathSource = sourceName(src)
}

func (n *flatNav) ValidMovementTerrain(p geom.Vec3) bool {
	return math.Abs(p.X) <= n.cfg.BoundaryR && math.Abs(p.Y) <= n.cfg.BoundaryR
}

func (n *flatNav) GroundHeight(float64, float64) float64 { return 0 }

func sourceName(src contain.CommandSource) string {
	switch src {
	case contain.SourcePlayer:
		return "player"
	case contain.SourceScript:
		return "script"
	}
	return "ai"
}

// boneRenderer answers bone queries from the model catalog.
type boneRenderer World

func (r *boneRenderer) SampleBones(owner ids.ObjectID, cond object.DamageState, bone string, max int) []geom.Vec3 {
	o := r.objects[owner]
	if o == nil || max <= 0 {
		return nil
	}
	m, ok := r.catalogs.Models.ByTemplate[o.Template]
	if !ok {
		return nil
	}
	local := m.BonesFor(cond, bone)
	if len(local) > max {
		local = local[:max]
	}
	return o.Transform().ApplyAll(local)
}

func (r *boneRenderer) ConditionKey(owner ids.ObjectID) string {
	if o := r.objects[owner]; o != nil {
		return o.Damage.String()
	}
	return ""
}

func (r *boneRenderer) SetGarrisoned(owner ids.ObjectID, on bool) { r.garrisoned[owner] = on }
func (r *boneRenderer) SetHidden(id ids.ObjectID, hidden bool)    { r.hidden[id] = hidden }

func (r *boneRenderer) SetDoorOpen(owner ids.ObjectID, door int, open bool) {
	m := r.doors[owner]
	if m == nil {
		m = map[int]bool{}
		r.doors[owner] = m
	}
	if open {
		m[door] = true
	} else {
		delete(m, door)
	}
}

type muzzle struct {
	owner  ids.ObjectID
	pos    geom.Vec3
	yaw    float64
	firing bool
}

type effectHost World

func (h *effectHost) NewMuzzle(owner ids.ObjectID, pos geom.Vec3) ids.DrawableID {
	h.nextDrawable++
	h.effects[h.nextDrawable] = &muzzle{owner: owner, pos: pos}
	return h.nextDrawable
}

func (h *effectHost) Destroy(id ids.DrawableID) { delete(h.effects, id) }

func (h *effectHost) Exists(id ids.DrawableID) bool {
	_, ok := h.effects[id]
	return ok
}

func (h *effectHost) SetFiring(id ids.DrawableID, on bool) {
	if m := h.effects[id]; m != nil {
		m.firing = on
	}
}

func (h *effectHost) Orient(id ids.DrawableID, pos geom.Vec3, yaw float64) {
	if m := h.effects[id]; m != nil {
		m.pos, m.yaw = pos, yaw
	}
}

// splitmix is a small deterministic generator whose whole state is one word.
type splitmix struct{ state uint64 }

func newSplitmix(seed int64) splitmix { return splitmix{state: uint64(seed)} }

func (s *splitmix) next() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *splitmix) Float64Range(lo, hi float64) float64 {
	f := float64(s.next()>>11) / (1 << 53)
	return lo + (hi-lo)*f
}
