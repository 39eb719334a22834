package contain

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

func newGarrisonFixture(t *testing.T, w *fakeWorld, def Def, bones ...geom.Vec3) (*Container, *object.Object) {
	t.Helper()
	owner := w.add(building(100, ids.NoPlayer))
	w.setBones(object.Pristine, FirePointBone, bones...)
	c, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, owner
}

func mustAdmit(t *testing.T, c *Container, o *object.Object) {
	t.Helper()
	if err := c.Admit(o); err != nil {
		t.Fatalf("Admit %s: %v", o.ID, err)
	}
}

func TestBasicGarrison_TwoSlotsThreeOccupants(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(3), geom.Vec3{X: 10}, geom.Vec3{X: -10})

	var occ []*object.Object
	for i := range 3 {
		o := w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{X: 40, Y: float64(i)}))
		mustAdmit(t, c, o)
		aimAt(o, geom.Vec3{Y: 30})
		occ = append(occ, o)
	}
	if c.Count() != 3 || owner.Team != 0 {
		t.Fatalf("count=%d ownerTeam=%d", c.Count(), owner.Team)
	}
	for _, o := range occ {
		if c.SlotOf(o.ID) != -1 {
			t.Fatalf("%s slotted before the first update", o.ID)
		}
		if o.ContainedBy() != owner.ID || w.registered[o.ID] || !w.hidden[o.ID] || o.Pos != owner.Pos {
			t.Fatalf("%s not enclosed correctly", o.ID)
		}
	}

	w.frame = 1
	c.Update()
	if c.SlotOf(1) != 0 || c.SlotOf(2) != 1 || c.SlotOf(3) != -1 {
		t.Fatalf("slots=%d,%d,%d", c.SlotOf(1), c.SlotOf(2), c.SlotOf(3))
	}
	if occ[0].Pos != (geom.Vec3{X: 10}) || occ[1].Pos != (geom.Vec3{X: -10}) || occ[2].Pos != owner.Pos {
		t.Fatalf("positions %v %v %v", occ[0].Pos, occ[1].Pos, occ[2].Pos)
	}
	if !c.PassengerAllowedToFire(occ[0]) || c.PassengerAllowedToFire(occ[2]) {
		t.Fatalf("only slotted garrison occupants may fire")
	}

	if err := c.ExitViaDoor(occ[0], DoorAny); err != nil {
		t.Fatalf("ExitViaDoor: %v", err)
	}
	if occ[0].IsContained() || !w.registered[1] || w.hidden[1] {
		t.Fatalf("exited occupant still enclosed")
	}
	w.frame = 2
	c.Update()
	if c.SlotOf(3) != 0 {
		t.Fatalf("third occupant should take the freed slot, got %d", c.SlotOf(3))
	}
	if c.SlotOf(2) == c.SlotOf(3) {
		t.Fatalf("slot shared")
	}
}

func TestAdmitRejectionsLeaveStateUntouched(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(1), geom.Vec3{X: 10})

	tank := w.add(rifleman(1, 0, geom.Vec3{}))
	tank.Kind = object.KindVehicle
	if err := c.Admit(tank); !errors.Is(err, ErrKindOf) {
		t.Fatalf("vehicle: %v", err)
	}

	shy := w.add(rifleman(2, 0, geom.Vec3{}))
	shy.Kind |= object.KindNoGarrison
	if err := c.Admit(shy); !errors.Is(err, ErrNotGarrisonable) {
		t.Fatalf("no-garrison: %v", err)
	}

	first := w.add(rifleman(3, 0, geom.Vec3{}))
	mustAdmit(t, c, first)

	enemy := w.add(rifleman(4, 1, geom.Vec3{}))
	if err := c.Admit(enemy); !errors.Is(err, ErrRelationship) {
		t.Fatalf("enemy: %v", err)
	}

	ally := w.add(rifleman(5, 0, geom.Vec3{}))
	err := c.Admit(ally)
	if !errors.Is(err, ErrFull) || Code(err) != "E_FULL" {
		t.Fatalf("full: %v", err)
	}

	elsewhere := w.add(rifleman(6, 0, geom.Vec3{}))
	elsewhere.BindContainer(55, 0)
	if err := c.Admit(elsewhere); !errors.Is(err, ErrAlreadyContained) {
		t.Fatalf("already contained: %v", err)
	}
	if err := c.Admit(first); !errors.Is(err, ErrAlreadyContained) {
		t.Fatalf("re-admit: %v", err)
	}

	for _, o := range []*object.Object{tank, shy, enemy, ally} {
		if o.IsContained() || !w.registered[o.ID] || o.TestStatus(object.StatusHeld) {
			t.Fatalf("%s mutated by a rejected admission", o.ID)
		}
	}
	if c.Count() != 1 || w.countEvents(EventReject) != 6 {
		t.Fatalf("count=%d rejects=%d", c.Count(), w.countEvents(EventReject))
	}

	owner.Kill()
	if err := c.Admit(ally); !errors.Is(err, ErrContainerDead) {
		t.Fatalf("dead container: %v", err)
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(4)
	c, _ := newGarrisonFixture(t, w, def, geom.Vec3{X: 10})
	var pool []*object.Object
	for i := range 10 {
		pool = append(pool, w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{})))
	}
	for step := range 60 {
		o := pool[(step*7)%len(pool)]
		if o.IsContained() && step%3 == 0 {
			if err := c.Evict(o, false); err != nil {
				t.Fatalf("Evict: %v", err)
			}
		} else {
			_ = c.Admit(o)
		}
		if c.Count() > def.MaxOccupants {
			t.Fatalf("step %d: count %d over max", step, c.Count())
		}
	}
}

func TestDamageConditionRedeploy(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10}, geom.Vec3{X: -10})
	w.setBones(object.Damaged, FirePointBone, geom.Vec3{Y: 10}, geom.Vec3{Y: -10})

	a := w.add(rifleman(1, 0, geom.Vec3{}))
	b := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, a)
	mustAdmit(t, c, b)
	aimAt(a, geom.Vec3{Y: 30})
	aimAt(b, geom.Vec3{Y: 30})

	w.frame = 1
	c.Update()
	before := map[ids.ObjectID]uint32{}
	g := c.Policy().(*Garrison)
	for _, id := range []ids.ObjectID{1, 2} {
		i := c.SlotOf(id)
		if i < 0 {
			t.Fatalf("%s unslotted", id)
		}
		before[id] = g.Slots().Slot(i).PlaceFrame
	}

	owner.Damage = object.Damaged
	w.frame = 5
	c.Update()

	if c.Count() != 2 || w.countEvents(EventRedeploy) != 1 {
		t.Fatalf("count=%d redeploys=%d", c.Count(), w.countEvents(EventRedeploy))
	}
	for _, id := range []ids.ObjectID{1, 2} {
		i := c.SlotOf(id)
		if i < 0 {
			t.Fatalf("%s lost its slot", id)
		}
		if got := g.Slots().Slot(i).PlaceFrame; got != before[id] {
			t.Fatalf("%s place frame %d want %d", id, got, before[id])
		}
	}
	if a.Pos != (geom.Vec3{Y: 10}) || b.Pos != (geom.Vec3{Y: -10}) {
		t.Fatalf("positions not moved to damaged geometry: %v %v", a.Pos, b.Pos)
	}
}

func TestRedeployIsIdempotent(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(3),
		geom.Vec3{X: 10}, geom.Vec3{X: -10}, geom.Vec3{Y: 10})
	targets := []geom.Vec3{{X: 30}, {X: -30}, {Y: 30}}
	for i, tp := range targets {
		o := w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{}))
		mustAdmit(t, c, o)
		aimAt(o, tp)
	}
	w.frame = 1
	c.Update()

	assign := func() []int {
		return []int{c.SlotOf(1), c.SlotOf(2), c.SlotOf(3)}
	}
	c.Redeploy()
	first := assign()
	c.Redeploy()
	second := assign()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("redeploy not idempotent: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(first, []int{0, 1, 2}) {
		t.Fatalf("unexpected assignment %v", first)
	}
}

func TestRetargetMovesOnlyWhenStrictlyCloser(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10}, geom.Vec3{X: -10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, c, o)
	aimAt(o, geom.Vec3{X: 20})

	w.frame = 1
	c.Update()
	if c.SlotOf(1) != 0 {
		t.Fatalf("initial slot %d", c.SlotOf(1))
	}

	o.AI.VictimPos = geom.Vec3{Y: 20}
	w.frame = 2
	c.Update()
	if c.SlotOf(1) != 0 {
		t.Fatalf("equidistant target must not move the occupant")
	}

	o.AI.VictimPos = geom.Vec3{X: -20}
	w.frame = 3
	c.Update()
	g := c.Policy().(*Garrison)
	if c.SlotOf(1) != 1 || o.Pos != (geom.Vec3{X: -10}) {
		t.Fatalf("slot=%d pos=%v", c.SlotOf(1), o.Pos)
	}
	if g.Slots().Slot(1).PlaceFrame != 3 || !g.Slots().Slot(0).Free() {
		t.Fatalf("retarget bookkeeping wrong")
	}
}

func TestInvalidOccupantsAreUnslotted(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10}, geom.Vec3{X: -10})
	far := w.add(rifleman(1, 0, geom.Vec3{}))
	idle := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, far)
	mustAdmit(t, c, idle)
	aimAt(far, geom.Vec3{X: 20})
	aimAt(idle, geom.Vec3{X: -20})
	w.frame = 1
	c.Update()
	if c.SlotOf(1) < 0 || c.SlotOf(2) < 0 {
		t.Fatalf("setup: both should be slotted")
	}
	effect := c.Policy().(*Garrison).Slots().Slot(c.SlotOf(1)).Effect

	far.AI.VictimPos = geom.Vec3{Y: 500}
	idle.AI.ClearTarget()
	idle.ClearStatus(object.StatusAttacking)
	w.frame = 2
	c.Update()

	// far is unslotted for range and then slotted again at the point nearest its target.
	if c.SlotOf(1) != 0 || c.SlotOf(2) != -1 {
		t.Fatalf("slots=%d,%d", c.SlotOf(1), c.SlotOf(2))
	}
	if far.Pos != (geom.Vec3{X: 10}) || idle.Pos != owner.Pos {
		t.Fatalf("positions far=%v idle=%v", far.Pos, idle.Pos)
	}
	if w.Exists(effect) {
		t.Fatalf("muzzle proxy survived unslotting")
	}
	if w.countEvents(EventUnslot) != 2 || c.Count() != 2 {
		t.Fatalf("unslots=%d count=%d", w.countEvents(EventUnslot), c.Count())
	}
}

func TestMuzzleFlashFollowsShots(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(1), geom.Vec3{X: 10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, c, o)
	aimAt(o, geom.Vec3{X: 30})
	w.frame = 1
	c.Update()
	eff := c.Policy().(*Garrison).Slots().Slot(0).Effect

	w.frame = 2
	o.Weapon.RecordShot(2)
	c.Update()
	if !w.firing[eff] {
		t.Fatalf("shot on this frame should flash")
	}
	w.frame = 10
	c.Update()
	if w.firing[eff] {
		t.Fatalf("flash should age out")
	}
	if math.Abs(o.Yaw) > 1e-9 {
		t.Fatalf("occupant should face its target, yaw=%v", o.Yaw)
	}
}

func TestPortableStructureExclusivity(t *testing.T) {
	w := newFakeWorld()
	carrier := w.add(&object.Object{ID: 50, Kind: object.KindAircraft, Team: 0, Health: 10, MaxHealth: 10, Mobile: true})
	def := Def{
		Template:                "Chinook",
		Policy:                  PolicyPortable,
		MaxOccupants:            4,
		AllowKinds:              object.KindInfantry | object.KindVehicle | object.KindPortableStructure,
		AllowAllies:             true,
		PassengersAllowedToFire: true,
		Enclosing:               true,
	}
	c, err := New(carrier, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bunker := func(id ids.ObjectID) *object.Object {
		return w.add(&object.Object{ID: id, Kind: object.KindPortableStructure | object.KindStructure, Team: 0, Health: 5, MaxHealth: 5,
			Weapon: &object.Weapon{Range: 30}})
	}
	p1, p2 := bunker(1), bunker(2)

	mustAdmit(t, c, p1)
	if err := c.Admit(p2); !errors.Is(err, ErrPortableOccupied) {
		t.Fatalf("second portable: %v", err)
	}
	if c.Portable() != 1 || c.Count() != 0 || p1.ContainedBy() != 50 || w.hidden[1] {
		t.Fatalf("portable bookkeeping wrong")
	}
	if err := c.Evict(p1, false); err != nil {
		t.Fatalf("Evict portable: %v", err)
	}
	mustAdmit(t, c, p2)

	carrier.Pos = geom.Vec3{X: 50, Y: 50, Z: 20}
	carrier.Yaw = 1
	c.Update()
	if p2.Pos != carrier.Pos || p2.Yaw != 1 {
		t.Fatalf("portable did not track carrier: %v", p2.Pos)
	}
	carrier.Damage = object.Damaged
	c.OnDamageStateChange(object.Pristine, object.Damaged)
	if p2.Damage != object.Damaged {
		t.Fatalf("damage state not propagated")
	}

	if !c.PassengerAllowedToFire(p2) {
		t.Fatalf("portable should fire from a free carrier")
	}
	carrier.BindContainer(99, 0)
	if c.PassengerAllowedToFire(p2) {
		t.Fatalf("portable must not fire while the carrier is contained")
	}
	carrier.BindContainer(ids.InvalidObject, 0)

	rider := w.add(rifleman(3, 0, geom.Vec3{}))
	jeep := w.add(rifleman(4, 0, geom.Vec3{}))
	jeep.Kind = object.KindVehicle
	jeep.TransportSlots = 3
	stranger := w.add(rifleman(5, 1, geom.Vec3{}))
	cargo := w.add(rifleman(6, 0, geom.Vec3{}))
	cargo.TransportSlots = 0

	mustAdmit(t, c, rider)
	mustAdmit(t, c, jeep)
	if err := c.Admit(stranger); !errors.Is(err, ErrRelationship) {
		t.Fatalf("foreign rider: %v", err)
	}
	if err := c.Admit(cargo); !errors.Is(err, ErrKindOf) {
		t.Fatalf("slotless rider: %v", err)
	}
	extra := w.add(rifleman(7, 0, geom.Vec3{}))
	if err := c.Admit(extra); !errors.Is(err, ErrFull) {
		t.Fatalf("over transport capacity: %v", err)
	}
	if !c.PassengerAllowedToFire(rider) || c.PassengerAllowedToFire(jeep) {
		t.Fatalf("only infantry riders fire")
	}
	carrier.SetStatus(object.StatusSubdued)
	if c.PassengerAllowedToFire(rider) || c.PassengerAllowedToFire(p2) {
		t.Fatalf("subdued carrier blocks all fire")
	}
}

func TestDeathEvictsEveryOccupant(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(3)
	def.DamagePercentToUnits = 50
	c, owner := newGarrisonFixture(t, w, def, geom.Vec3{X: 10})
	c.svc.Strict = true
	var occ []*object.Object
	for i := range 3 {
		o := w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{}))
		mustAdmit(t, c, o)
		occ = append(occ, o)
	}
	owner.Kill()
	c.OnDie()
	c.Teardown()
	for _, o := range occ {
		if o.IsContained() || o.Health != 50 || !w.registered[o.ID] || w.hidden[o.ID] {
			t.Fatalf("%s: contained=%v health=%v", o.ID, o.IsContained(), o.Health)
		}
	}
	if c.Count() != 0 || !c.TornDown() {
		t.Fatalf("container not closed")
	}
}

func TestDeathAtFullDamageKills(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(2)
	def.DamagePercentToUnits = 100
	c, _ := newGarrisonFixture(t, w, def, geom.Vec3{X: 10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	o.Kind |= object.KindStealthGarrison
	mustAdmit(t, c, o)
	c.OnDie()
	if !o.IsEffectivelyDead() || o.IsContained() || !o.TestStatus(object.StatusDetected) {
		t.Fatalf("occupant should die exposed and released")
	}
}

func TestTeardownWithOccupants(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, c, o)

	c.svc.Strict = true
	func() {
		defer func() {
			r := recover()
			if _, ok := r.(*InvariantError); !ok {
				t.Fatalf("expected invariant panic, got %v", r)
			}
		}()
		c.Teardown()
	}()

	c.svc.Strict = false
	c.Teardown()
	if o.IsContained() || c.Count() != 0 || !c.TornDown() || !w.registered[1] {
		t.Fatalf("forced clear incomplete")
	}
}

func TestEvictOfStrangerIsRejected(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	if err := c.Evict(o, false); !errors.Is(err, ErrNotContained) {
		t.Fatalf("Evict stranger: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(3)
	c, owner := newGarrisonFixture(t, w, def, geom.Vec3{X: 10}, geom.Vec3{X: -10})
	for i, tp := range []geom.Vec3{{X: 30}, {X: -30}, {Y: 30}} {
		o := w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{}))
		mustAdmit(t, c, o)
		aimAt(o, tp)
	}
	c.SetRallyPoint(geom.Vec3{X: 70})
	w.frame = 4
	c.Update()
	st := c.Export()

	if err := c.Import(st); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("import into non-empty container: %v", err)
	}

	restored, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := restored.Import(st); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := restored.LoadPostProcess(); err != nil {
		t.Fatalf("LoadPostProcess: %v", err)
	}
	if got := restored.Export(); !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, st)
	}
	for _, id := range []ids.ObjectID{1, 2, 3} {
		if restored.SlotOf(id) != c.SlotOf(id) {
			t.Fatalf("%s slot %d want %d", id, restored.SlotOf(id), c.SlotOf(id))
		}
	}

	delete(w.objs, 2)
	orphan, _ := New(owner, def, w.services())
	if err := orphan.Import(st); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := orphan.LoadPostProcess(); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("unresolved occupant must fail the load, got %v", err)
	}
}

func TestImportRejectsInconsistentSlots(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(2)
	c, _ := newGarrisonFixture(t, w, def, geom.Vec3{X: 10})
	st := c.Export()
	st.Garrison = &GarrisonState{Loaded: true, Slots: []Slot{{Occupant: 9}}}
	for i := range st.Garrison.Points {
		st.Garrison.Points[i] = []geom.Vec3{{}}
	}
	if err := c.Import(st); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("slot occupant outside roster: %v", err)
	}
}

func TestTeamTakeoverAndStealthApparentController(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10})
	sneaky := w.add(rifleman(1, 2, geom.Vec3{}))
	sneaky.Kind |= object.KindStealthGarrison
	mustAdmit(t, c, sneaky)

	if owner.Team != 2 || !w.garrisoned[owner.ID] {
		t.Fatalf("owner team=%d", owner.Team)
	}
	if got := c.ApparentController(1); got != ids.NoPlayer {
		t.Fatalf("enemy should see the original team, got %d", got)
	}
	if got := c.ApparentController(2); got != 2 {
		t.Fatalf("owner should see itself, got %d", got)
	}
	c.MarkAllDetected()
	if got := c.ApparentController(1); got != 2 {
		t.Fatalf("detected garrison shows its team, got %d", got)
	}
	if err := c.Evict(sneaky, false); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if owner.Team != ids.NoPlayer || w.garrisoned[owner.ID] || c.PlayerEntered() != 0 {
		t.Fatalf("empty garrison must restore its original team")
	}
}

func TestExitPathsDoorsAndScatter(t *testing.T) {
	w := newFakeWorld()
	owner := w.add(building(100, 0))
	def := Def{
		Template:          "Barracks",
		Policy:            PolicyOpen,
		AllowKinds:        object.KindInfantry,
		AllowAllies:       true,
		Enclosing:         true,
		NumberOfExitPaths: 2,
		DoorOpenFrames:    3,
	}
	w.setBones(object.Pristine, "ExitStart01", geom.Vec3{X: 5})
	w.setBones(object.Pristine, "ExitEnd01", geom.Vec3{X: 15})
	c, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetRallyPoint(geom.Vec3{X: 100})
	a := w.add(rifleman(1, 0, geom.Vec3{}))
	b := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, a)
	mustAdmit(t, c, b)

	if err := c.ExitViaDoor(a, DoorAny); err != nil {
		t.Fatalf("exit: %v", err)
	}
	want := []geom.Vec3{{X: 15}, {X: 15}, {X: 100}}
	if a.Pos != (geom.Vec3{X: 5}) || !reflect.DeepEqual(w.paths[1], want) {
		t.Fatalf("pos=%v path=%v", a.Pos, w.paths[1])
	}
	if !w.doors[1] || c.DoorOpen() != 1 {
		t.Fatalf("door 1 should be open")
	}
	for range 3 {
		c.Update()
	}
	if w.doors[1] || c.DoorOpen() != 0 {
		t.Fatalf("door should close after countdown")
	}

	if err := c.ExitViaDoor(b, DoorAny); err != nil {
		t.Fatalf("exit: %v", err)
	}
	path := w.paths[2]
	if len(path) != 2 || math.Abs(path[0].X+12.5) > 1e-9 || path[1] != (geom.Vec3{X: 100}) {
		t.Fatalf("scatter path=%v", path)
	}
}

func TestReallyDamagedGarrisonEvacuates(t *testing.T) {
	w := newFakeWorld()
	c, owner := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10})
	mustAdmit(t, c, w.add(rifleman(1, 0, geom.Vec3{})))
	mustAdmit(t, c, w.add(rifleman(2, 0, geom.Vec3{})))

	owner.Damage = object.ReallyDamaged
	c.OnDamageStateChange(object.Damaged, object.ReallyDamaged)
	if c.Count() != 0 {
		t.Fatalf("really damaged garrison kept %d occupants", c.Count())
	}
	if err := c.Admit(w.add(rifleman(3, 0, geom.Vec3{}))); !errors.Is(err, ErrContainerDead) {
		t.Fatalf("admission into ruined garrison: %v", err)
	}

	w2 := newFakeWorld()
	c2, owner2 := newGarrisonFixture(t, w2, garrisonDef(2), geom.Vec3{X: 10})
	owner2.Kind |= object.KindGarrisonableUntilDestroyed
	mustAdmit(t, c2, w2.add(rifleman(1, 0, geom.Vec3{})))
	owner2.Damage = object.ReallyDamaged
	c2.OnDamageStateChange(object.Damaged, object.ReallyDamaged)
	if c2.Count() != 1 {
		t.Fatalf("garrisonable-until-destroyed must hold its occupants")
	}
}

func TestStationGarrisonPinsOccupants(t *testing.T) {
	w := newFakeWorld()
	def := garrisonDef(3)
	def.Enclosing = false
	owner := w.add(building(100, ids.NoPlayer))
	w.setBones(object.Pristine, StationBone, geom.Vec3{X: 5}, geom.Vec3{X: -5})
	w.setBones(object.Damaged, StationBone, geom.Vec3{Y: 5}, geom.Vec3{Y: -5})
	c, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := w.add(rifleman(1, 0, geom.Vec3{X: 40}))
	b := w.add(rifleman(2, 0, geom.Vec3{X: 40}))
	d := w.add(rifleman(3, 0, geom.Vec3{X: 40}))
	mustAdmit(t, c, a)
	mustAdmit(t, c, b)
	mustAdmit(t, c, d)
	if a.Pos != (geom.Vec3{X: 5}) || b.Pos != (geom.Vec3{X: -5}) || d.Pos != owner.Pos {
		t.Fatalf("station placement %v %v %v", a.Pos, b.Pos, d.Pos)
	}
	if !w.registered[1] || w.hidden[1] {
		t.Fatalf("station occupants stay in the world")
	}

	a.Pos = geom.Vec3{X: 99}
	owner.Damage = object.Damaged
	c.Update()
	if a.Pos != (geom.Vec3{X: 5}) {
		t.Fatalf("station slots must not be re-derived, got %v", a.Pos)
	}
	if !c.PassengerAllowedToFire(d) {
		t.Fatalf("station garrison occupants may fire")
	}
}

func TestOpenCapacityAndFirePoints(t *testing.T) {
	w := newFakeWorld()
	owner := w.add(building(100, 0))
	w.setBones(object.Pristine, FirePointBone, geom.Vec3{X: 1}, geom.Vec3{X: 2})
	def := Def{
		Template:     "BattleBus",
		Policy:       PolicyOpen,
		MaxOccupants: 3,
		AllowKinds:   object.KindInfantry | object.KindVehicle,
		AllowAllies:  true,
		EnterSound:   "BusEnter",
	}
	c, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	big := w.add(rifleman(1, 0, geom.Vec3{}))
	big.TransportSlots = 2
	small := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, big)
	mustAdmit(t, c, small)
	if err := c.Admit(w.add(rifleman(3, 0, geom.Vec3{}))); !errors.Is(err, ErrFull) {
		t.Fatalf("transport slots should fill the bus: %v", err)
	}
	if big.Pos != (geom.Vec3{X: 1}) || small.Pos != (geom.Vec3{X: 2}) {
		t.Fatalf("fire points %v %v", big.Pos, small.Pos)
	}
	if len(w.sounds) != 1 {
		t.Fatalf("enter cue should play once per frame, got %v", w.sounds)
	}
	if c.PassengerAllowedToFire(big) {
		t.Fatalf("passengers not allowed to fire by default")
	}
	if id, ok := c.ClosestOccupant(geom.Vec3{X: 3}); !ok || id != 2 {
		t.Fatalf("closest=%s", id)
	}
	if st := c.Export(); st.FirePointCursor != 0 {
		t.Fatalf("cursor should wrap, got %d", st.FirePointCursor)
	}
}

func TestAttemptFirePoint(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: 10}, geom.Vec3{X: -10})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, c, o)

	pos, ok := c.AttemptFirePoint(o, geom.Vec3{X: -55})
	if pos != (geom.Vec3{X: -10}) || !ok {
		t.Fatalf("AttemptFirePoint=%v,%v", pos, ok)
	}
	if _, ok := c.AttemptFirePoint(o, geom.Vec3{X: -70}); ok {
		t.Fatalf("target beyond range from the best point")
	}
	if best, ok := c.BestFirePosition(geom.Vec3{X: 30}); !ok || best != (geom.Vec3{X: 10}) {
		t.Fatalf("BestFirePosition=%v,%v", best, ok)
	}
}

func TestOutOfRangeTargetStillTakesSlot(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(2), geom.Vec3{X: -5}, geom.Vec3{X: 5})
	o := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, c, o)
	aimAt(o, geom.Vec3{X: 500})

	w.frame = 1
	c.Update()
	if c.SlotOf(1) != 1 || o.Pos != (geom.Vec3{X: 5}) {
		t.Fatalf("slot=%d pos=%v", c.SlotOf(1), o.Pos)
	}
	if !c.PassengerAllowedToFire(o) {
		t.Fatalf("slotted occupant may fire")
	}

	w.frame = 2
	c.Update()
	if c.SlotOf(1) != 1 {
		t.Fatalf("slot after second frame=%d", c.SlotOf(1))
	}
	if w.countEvents(EventUnslot) != 1 || w.countEvents(EventSlot) != 2 {
		t.Fatalf("unslots=%d slots=%d", w.countEvents(EventUnslot), w.countEvents(EventSlot))
	}
	if g := c.Policy().(*Garrison); g.Slots().Slot(1).PlaceFrame != 2 {
		t.Fatalf("place frame=%d", g.Slots().Slot(1).PlaceFrame)
	}
}

func TestRetargetFollowsRosterOrder(t *testing.T) {
	w := newFakeWorld()
	c, _ := newGarrisonFixture(t, w, garrisonDef(3), geom.Vec3{X: 0}, geom.Vec3{X: 10}, geom.Vec3{X: 20})
	a := w.add(rifleman(1, 0, geom.Vec3{}))
	b := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, a)
	mustAdmit(t, c, b)
	aimAt(a, geom.Vec3{X: 30})
	aimAt(b, geom.Vec3{X: -10})

	w.frame = 1
	c.Update()
	if c.SlotOf(1) != 2 || c.SlotOf(2) != 0 {
		t.Fatalf("setup slots=%d,%d", c.SlotOf(1), c.SlotOf(2))
	}

	// Slot 1 is now strictly closer for both; the first in the roster takes it.
	a.AI.VictimPos = geom.Vec3{X: 10, Y: 1}
	b.AI.VictimPos = geom.Vec3{X: 10, Y: -1}
	w.frame = 2
	c.Update()
	if c.SlotOf(1) != 1 || c.SlotOf(2) != 0 {
		t.Fatalf("slots=%d,%d", c.SlotOf(1), c.SlotOf(2))
	}
	if a.Pos != (geom.Vec3{X: 10}) || b.Pos != (geom.Vec3{X: 0}) {
		t.Fatalf("positions a=%v b=%v", a.Pos, b.Pos)
	}
}

func TestSlotMissCountedOncePerWait(t *testing.T) {
	w := newFakeWorld()
	owner := w.add(building(100, ids.NoPlayer))
	w.setBones(object.Pristine, FirePointBone, geom.Vec3{X: 10}, geom.Vec3{X: -10})
	m := &countingMetrics{}
	svc := w.services()
	svc.Metrics = m
	c, err := New(owner, garrisonDef(3), svc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var occ []*object.Object
	for i := range 3 {
		o := w.add(rifleman(ids.ObjectID(i+1), 0, geom.Vec3{}))
		mustAdmit(t, c, o)
		aimAt(o, geom.Vec3{Y: 30})
		occ = append(occ, o)
	}
	for f := uint32(1); f <= 5; f++ {
		w.frame = f
		c.Update()
	}
	if m.misses != 1 || c.SlotOf(3) != -1 {
		t.Fatalf("misses=%d slot=%d", m.misses, c.SlotOf(3))
	}

	if err := c.ExitViaDoor(occ[0], DoorAny); err != nil {
		t.Fatalf("ExitViaDoor: %v", err)
	}
	w.frame = 6
	c.Update()
	if c.SlotOf(3) < 0 {
		t.Fatalf("waiting occupant should take the freed slot")
	}

	// A fresh wait counts again.
	extra := w.add(rifleman(4, 0, geom.Vec3{}))
	mustAdmit(t, c, extra)
	aimAt(extra, geom.Vec3{Y: 30})
	w.frame = 7
	c.Update()
	w.frame = 8
	c.Update()
	if m.misses != 2 {
		t.Fatalf("misses=%d", m.misses)
	}
}

func TestOpenFirePointsFollowOwnerMoves(t *testing.T) {
	w := newFakeWorld()
	owner := w.add(building(100, 0))
	w.setBones(object.Pristine, FirePointBone, geom.Vec3{X: 1}, geom.Vec3{X: 2})
	def := Def{
		Template:     "BattleBus",
		Policy:       PolicyOpen,
		MaxOccupants: 2,
		AllowKinds:   object.KindInfantry,
		AllowAllies:  true,
	}
	c, err := New(owner, def, w.services())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a := w.add(rifleman(1, 0, geom.Vec3{}))
	b := w.add(rifleman(2, 0, geom.Vec3{}))
	mustAdmit(t, c, a)
	mustAdmit(t, c, b)

	w.frame = 1
	c.Update()
	if w.countEvents(EventRedeploy) != 0 {
		t.Fatalf("standing still must not redeploy")
	}

	owner.Pos = geom.Vec3{X: 10}
	w.setBones(object.Pristine, FirePointBone, geom.Vec3{X: 11}, geom.Vec3{X: 12})
	w.frame = 2
	c.Update()
	if a.Pos != (geom.Vec3{X: 11}) || b.Pos != (geom.Vec3{X: 12}) {
		t.Fatalf("riders left at stale fire points: %v %v", a.Pos, b.Pos)
	}
	if w.countEvents(EventRedeploy) != 1 {
		t.Fatalf("redeploys=%d", w.countEvents(EventRedeploy))
	}

	w.frame = 3
	c.Update()
	if w.countEvents(EventRedeploy) != 1 {
		t.Fatalf("redeploys after standing still=%d", w.countEvents(EventRedeploy))
	}
}

func TestNestedCarrierDefersFireToOuterContainer(t *testing.T) {
	w := newFakeWorld()
	chinook := w.add(&object.Object{ID: 50, Kind: object.KindAircraft, Team: 0, Health: 10, MaxHealth: 10, Mobile: true})
	outer, err := New(chinook, Def{
		Template:     "Chinook",
		Policy:       PolicyPortable,
		MaxOccupants: 8,
		AllowAllies:  true,
		Enclosing:    true,
	}, w.services())
	if err != nil {
		t.Fatalf("New chinook: %v", err)
	}
	humvee := w.add(&object.Object{ID: 60, Kind: object.KindVehicle, Team: 0, Health: 10, MaxHealth: 10, TransportSlots: 3, Mobile: true})
	inner, err := New(humvee, Def{
		Template:                "Humvee",
		Policy:                  PolicyOpen,
		MaxOccupants:            5,
		AllowKinds:              object.KindInfantry,
		AllowAllies:             true,
		PassengersAllowedToFire: true,
		Enclosing:               true,
	}, w.services())
	if err != nil {
		t.Fatalf("New humvee: %v", err)
	}
	w.containers[chinook.ID] = outer
	w.containers[humvee.ID] = inner

	r := w.add(rifleman(1, 0, geom.Vec3{}))
	mustAdmit(t, inner, r)
	if !inner.PassengerAllowedToFire(r) {
		t.Fatalf("rider of a free humvee may fire")
	}

	mustAdmit(t, outer, humvee)
	if outer.PassengerAllowedToFire(humvee) {
		t.Fatalf("chinook must not let the humvee fire")
	}
	if inner.PassengerAllowedToFire(r) {
		t.Fatalf("rider fired from inside a carried humvee")
	}

	if err := outer.Evict(humvee, false); err != nil {
		t.Fatalf("Evict humvee: %v", err)
	}
	if !inner.PassengerAllowedToFire(r) {
		t.Fatalf("rider may fire again once the humvee is unloaded")
	}
}
