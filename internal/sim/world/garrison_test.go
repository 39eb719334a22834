package world

import (
	"testing"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

func TestGarrison_EnterSlotFireRedeployEvacuate(t *testing.T) {
	w := newTestWorld(t)
	rec := &tickRecorder{}
	w.SetTickLogger(rec)

	house := spawn(t, w, "CivilianHouse", ids.NoPlayer, 0, 0)
	r := spawn(t, w, "Rifleman", 0, -5, -5)
	tank := spawn(t, w, "Tank", 1, 40, 10)
	c := w.Container(house.ID)
	if c == nil {
		t.Fatalf("house has no container")
	}

	w.StepOnce([]Command{
		{Kind: CmdEnter, Subject: r.ID, Target: house.ID},
		{Kind: CmdAttack, Subject: r.ID, Target: tank.ID},
	})
	if c.Count() != 1 || r.ContainedBy() != house.ID {
		t.Fatalf("rifleman not garrisoned: count=%d by=%s", c.Count(), r.ContainedBy())
	}
	if !w.hidden[r.ID] || w.registered[r.ID] {
		t.Fatalf("garrisoned occupant must be hidden and unregistered")
	}
	if house.Team != 0 {
		t.Fatalf("house team=%d want occupant's team 0", house.Team)
	}
	if got := c.SlotOf(r.ID); got != 0 {
		t.Fatalf("slot=%d want 0", got)
	}
	if want := (geom.Vec3{X: 6, Y: 4, Z: 3}); r.Pos != want {
		t.Fatalf("pos=%v want %v", r.Pos, want)
	}
	if tank.Health != tank.MaxHealth {
		t.Fatalf("occupant fired before it was slotted")
	}

	w.StepOnce(nil)
	if tank.Health != tank.MaxHealth-r.Weapon.Damage {
		t.Fatalf("tank health=%v", tank.Health)
	}

	// Half health moves the house to DAMAGED and the occupant to the damaged fire point.
	w.StepOnce([]Command{{Kind: CmdDamage, Subject: house.ID, Amount: 500}})
	if want := (geom.Vec3{X: 5, Y: 4, Z: 2}); r.Pos != want {
		t.Fatalf("after redeploy pos=%v want %v", r.Pos, want)
	}
	if rec.count("REDEPLOY") != 1 {
		t.Fatalf("redeploys=%d", rec.count("REDEPLOY"))
	}

	w.StepOnce([]Command{{Kind: CmdDamage, Subject: house.ID, Amount: 400}})
	if c.Count() != 0 || r.IsContained() {
		t.Fatalf("really damaged house must empty out")
	}
	if house.Team != ids.NoPlayer {
		t.Fatalf("house team=%d want restored", house.Team)
	}
	if w.hidden[r.ID] || !w.registered[r.ID] {
		t.Fatalf("released occupant must be visible and registered")
	}

	last := rec.last()
	if last.Containers != 1 || last.Occupants != 0 {
		t.Fatalf("tick log summary=%+v", last)
	}
}

func TestGarrison_StationPinsOccupants(t *testing.T) {
	w := newTestWorld(t)
	fort := spawn(t, w, "Fortress", 0, -80, -60)
	ranger := spawn(t, w, "Ranger", 0, -80, -50)

	w.StepOnce([]Command{{Kind: CmdEnter, Subject: ranger.ID, Target: fort.ID}})
	c := w.Container(fort.ID)
	if c.SlotOf(ranger.ID) != 0 {
		t.Fatalf("station slot=%d", c.SlotOf(ranger.ID))
	}
	if want := (geom.Vec3{X: -71, Y: -60, Z: 8}); ranger.Pos != want {
		t.Fatalf("pos=%v want %v", ranger.Pos, want)
	}
	if w.hidden[ranger.ID] {
		t.Fatalf("station occupants stay visible")
	}
}

func TestOpenContainer_ExitUsesDoorBones(t *testing.T) {
	w := newTestWorld(t)
	humvee := spawn(t, w, "Humvee", 0, -20, 30)
	rocket := spawn(t, w, "RocketSoldier", 0, -20, 32)

	w.StepOnce([]Command{{Kind: CmdEnter, Subject: rocket.ID, Target: humvee.ID}})
	if !rocket.IsContained() {
		t.Fatalf("rocket soldier did not board")
	}
	w.StepOnce([]Command{{Kind: CmdExit, Subject: rocket.ID}})
	c := w.Container(humvee.ID)
	if rocket.IsContained() || c.Count() != 0 {
		t.Fatalf("exit failed")
	}
	if c.DoorOpen() != 1 || !w.doors[humvee.ID][1] {
		t.Fatalf("door 1 should be open, got %d", c.DoorOpen())
	}
	if rocket.AI == nil || len(rocket.AI.Path) == 0 || rocket.AI.PathSource != "ai" {
		t.Fatalf("exiting unit should walk the exit path")
	}
	for range 30 {
		w.StepOnce(nil)
	}
	if c.DoorOpen() != 0 || w.doors[humvee.ID][1] {
		t.Fatalf("door should close after its open frames")
	}
}

func TestPortable_CarriesStructureAndFollowsCarrier(t *testing.T) {
	w := newTestWorld(t)
	chinook := spawn(t, w, "Chinook", 0, -60, 0)
	gun := spawn(t, w, "GattlingCannon", 0, -60, 0)

	w.StepOnce([]Command{{Kind: CmdEnter, Subject: gun.ID, Target: chinook.ID}})
	c := w.Container(chinook.ID)
	if c.Portable() != gun.ID || c.Count() != 0 {
		t.Fatalf("portable=%s count=%d", c.Portable(), c.Count())
	}

	w.StepOnce([]Command{{Kind: CmdMove, Subject: chinook.ID, Pos: [3]float64{0, 0, 0}}})
	if chinook.Pos == (geom.Vec3{X: -60}) {
		t.Fatalf("carrier did not move")
	}
	if gun.Pos != chinook.Pos {
		t.Fatalf("portable at %v, carrier at %v", gun.Pos, chinook.Pos)
	}
}
