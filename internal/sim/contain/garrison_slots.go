package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

const (
	MaxGarrisonPoints = 40
	conditionCount    = 3

	FirePointBone = "FIREPOINT"
	StationBone   = "STATION"
)

var sampledConditions = [conditionCount]object.DamageState{object.Pristine, object.Damaged, object.ReallyDamaged}

func conditionIndex(d object.DamageState) int {
	switch d {
	case object.Pristine:
		return 0
	case object.Damaged:
		return 1
	default:
		return 2
	}
}

// Slot is one garrison fire point binding.
type Slot struct {
	Occupant   ids.ObjectID
	Target     ids.ObjectID
	PlaceFrame uint32

	Effect          ids.DrawableID
	Flashing        bool
	LastEffectFrame uint32
}

func (s Slot) Free() bool { return s.Occupant == ids.InvalidObject }

// GarrisonSlots holds the fire points sampled for every damage condition and the
// occupant bound to each index.
type GarrisonSlots struct {
	points [conditionCount][]geom.Vec3
	slots  []Slot
	loaded bool
}

// Load samples fire points for every condition. The slot count is the largest
// per-condition sample; conditions with fewer bones pad with center. With no
// bones at all there are min(fallback, MaxGarrisonPoints) slots, all at center.
// Load must only run while no slot is bound.
func (g *GarrisonSlots) Load(sample func(cond object.DamageState) []geom.Vec3, center geom.Vec3, fallback int) {
	size := 0
	var raw [conditionCount][]geom.Vec3
	for i, cond := range sampledConditions {
		pts := sample(cond)
		if len(pts) > MaxGarrisonPoints {
			pts = pts[:MaxGarrisonPoints]
		}
		raw[i] = pts
		size = max(size, len(pts))
	}
	if size == 0 {
		size = fallback
		if size <= 0 || size > MaxGarrisonPoints {
			size = MaxGarrisonPoints
		}
	}
	for i := range raw {
		pts := make([]geom.Vec3, size)
		for j := range pts {
			if j < len(raw[i]) {
				pts[j] = raw[i][j]
			} else {
				pts[j] = center
			}
		}
		g.points[i] = pts
	}
	g.slots = make([]Slot, size)
	g.loaded = true
}

func (g *GarrisonSlots) Loaded() bool { return g.loaded }
func (g *GarrisonSlots) Len() int     { return len(g.slots) }

// FindClosestFree returns the free slot whose point for cond is nearest target,
// or -1. The first free slot seeds the minimum and only strictly closer slots
// replace it, so ties keep the lowest index.
func (g *GarrisonSlots) FindClosestFree(cond object.DamageState, target geom.Vec3) int {
	pts := g.points[conditionIndex(cond)]
	best := -1
	var bestDist float64
	for i := range g.slots {
		if !g.slots[i].Free() {
			continue
		}
		d := geom.DistSq(pts[i], target)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func (g *GarrisonSlots) IndexOf(id ids.ObjectID) int {
	if id == ids.InvalidObject {
		return -1
	}
	for i := range g.slots {
		if g.slots[i].Occupant == id {
			return i
		}
	}
	return -1
}

func (g *GarrisonSlots) Point(cond object.DamageState, i int) geom.Vec3 {
	return g.points[conditionIndex(cond)][i]
}

func (g *GarrisonSlots) Slot(i int) Slot { return g.slots[i] }

func (g *GarrisonSlots) InUse() int {
	n := 0
	for _, s := range g.slots {
		if !s.Free() {
			n++
		}
	}
	return n
}

func (g *GarrisonSlots) at(i int) *Slot { return &g.slots[i] }
