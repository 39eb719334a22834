package contain

import (
	"testing"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

func loadSame(pts ...geom.Vec3) func(object.DamageState) []geom.Vec3 {
	return func(object.DamageState) []geom.Vec3 { return pts }
}

func TestFindClosestFree_NearestAndTies(t *testing.T) {
	var g GarrisonSlots
	g.Load(loadSame(
		geom.Vec3{X: -1},
		geom.Vec3{X: 1},
		geom.Vec3{X: 5},
	), geom.Vec3{}, 0)

	if got := g.FindClosestFree(object.Pristine, geom.Vec3{}); got != 0 {
		t.Fatalf("tie should keep lowest index, got %d", got)
	}
	if got := g.FindClosestFree(object.Pristine, geom.Vec3{X: 4}); got != 2 {
		t.Fatalf("nearest=%d want 2", got)
	}

	g.at(0).Occupant = 7
	if got := g.FindClosestFree(object.Pristine, geom.Vec3{}); got != 1 {
		t.Fatalf("occupied slot must be skipped, got %d", got)
	}
	g.at(1).Occupant = 8
	g.at(2).Occupant = 9
	if got := g.FindClosestFree(object.Pristine, geom.Vec3{}); got != -1 {
		t.Fatalf("full table must return -1, got %d", got)
	}
	if g.InUse() != 3 || g.IndexOf(8) != 1 || g.IndexOf(ids.InvalidObject) != -1 {
		t.Fatalf("bookkeeping wrong: inuse=%d", g.InUse())
	}
}

func TestGarrisonSlotsLoad_PadsAndFallsBack(t *testing.T) {
	center := geom.Vec3{X: 100, Y: 100}
	var g GarrisonSlots
	g.Load(func(cond object.DamageState) []geom.Vec3 {
		if cond == object.Pristine {
			return []geom.Vec3{{X: 1}, {X: 2}, {X: 3}}
		}
		return []geom.Vec3{{Y: 1}}
	}, center, 10)
	if g.Len() != 3 {
		t.Fatalf("slot count=%d want max sample 3", g.Len())
	}
	if g.Point(object.Damaged, 0) != (geom.Vec3{Y: 1}) || g.Point(object.Damaged, 2) != center {
		t.Fatalf("short condition must pad with center")
	}
	if g.Point(object.Rubble, 1) != center {
		t.Fatalf("rubble shares the really-damaged table")
	}

	var empty GarrisonSlots
	empty.Load(loadSame(), center, 4)
	if empty.Len() != 4 || empty.Point(object.Pristine, 3) != center {
		t.Fatalf("no bones: want 4 center slots, got %d", empty.Len())
	}
	var unlimited GarrisonSlots
	unlimited.Load(loadSame(), center, 0)
	if unlimited.Len() != MaxGarrisonPoints {
		t.Fatalf("unlimited fallback=%d", unlimited.Len())
	}
}

func TestStationSlots_FirstVacancyWins(t *testing.T) {
	var s StationSlots
	s.Load([]geom.Vec3{{X: 1}, {X: 2}})
	s.Load([]geom.Vec3{{X: 9}})
	if s.Len() != 2 {
		t.Fatalf("second Load must be ignored")
	}
	if i, ok := s.PickVacancy(10); !ok || i != 0 {
		t.Fatalf("first pick=%d,%v", i, ok)
	}
	if i, ok := s.PickVacancy(11); !ok || i != 1 {
		t.Fatalf("second pick=%d,%v", i, ok)
	}
	if _, ok := s.PickVacancy(12); ok {
		t.Fatalf("expected no vacancy")
	}
	if !s.Release(10) || s.Release(10) {
		t.Fatalf("release bookkeeping wrong")
	}
	if i, _ := s.PickVacancy(12); i != 0 {
		t.Fatalf("freed slot should be reused first, got %d", i)
	}
	if p, ok := s.PositionOf(11); !ok || p.X != 2 {
		t.Fatalf("PositionOf=%v,%v", p, ok)
	}
}

func TestRosterIterationIsRestartableAndSafe(t *testing.T) {
	var r Roster
	r.add(1, false, 0)
	r.add(2, true, 5)
	r.add(3, false, 6)

	var fwd, rev []ids.ObjectID
	for id := range r.All(Forward) {
		fwd = append(fwd, id)
		r.remove(id)
	}
	if len(fwd) != 3 || fwd[0] != 1 || fwd[2] != 3 {
		t.Fatalf("forward=%v", fwd)
	}
	if r.Len() != 0 || r.StealthCount() != 0 {
		t.Fatalf("roster not drained: len=%d stealth=%d", r.Len(), r.StealthCount())
	}

	r.add(4, false, 0)
	r.add(5, false, 0)
	seq := r.All(Reverse)
	for range 2 {
		rev = rev[:0]
		for id := range seq {
			rev = append(rev, id)
		}
		if len(rev) != 2 || rev[0] != 5 {
			t.Fatalf("reverse=%v", rev)
		}
	}
	if f, ok := r.EntryFrame(5); !ok || f != 0 {
		t.Fatalf("EntryFrame=%d,%v", f, ok)
	}
}

func TestEffectSync_LifetimeAndPoison(t *testing.T) {
	w := newFakeWorld()
	fx := NewEffectSync(w, 30)
	if fx.Lifetime() != 4 {
		t.Fatalf("lifetime=%d want 30/7", fx.Lifetime())
	}
	var s Slot
	fx.Attach(1, &s, geom.Vec3{})
	if s.Effect == ids.InvalidDrawable || !w.Exists(s.Effect) {
		t.Fatalf("attach did not create proxy")
	}

	fx.Flash(&s, 10, "SMALL_ARMS")
	if !w.firing[s.Effect] {
		t.Fatalf("flash did not fire")
	}
	fx.Age(&s, 14)
	if !w.firing[s.Effect] {
		t.Fatalf("aged out too early")
	}
	fx.Age(&s, 15)
	if w.firing[s.Effect] || s.Flashing {
		t.Fatalf("flash should expire after lifetime")
	}

	fx.Flash(&s, 20, "poison")
	if s.Flashing {
		t.Fatalf("poison must not flash")
	}

	eff := s.Effect
	fx.Detach(&s)
	if w.Exists(eff) || s.Effect != ids.InvalidDrawable {
		t.Fatalf("detach did not destroy proxy")
	}
}
