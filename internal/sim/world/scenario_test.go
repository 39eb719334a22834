package world

import (
	"testing"

	"rtsgarrison.dev/internal/sim/scenario"
)

func TestLoadScenario_VillageSkirmish(t *testing.T) {
	w := newTestWorld(t)
	named := loadVillage(t, w)

	house := w.Container(named["house"])
	if house == nil || house.Count() != 2 {
		t.Fatalf("house should hold r1 and r2")
	}
	if w.Object(named["house"]).Team != 0 {
		t.Fatalf("house not taken over")
	}
	if n := w.Container(named["bunker"]).Count(); n != 2 {
		t.Fatalf("bunker payload=%d", n)
	}
	if w.Container(named["chinook"]).Portable() == 0 {
		t.Fatalf("chinook should carry the gattling cannon")
	}
	if w.Container(named["fortress"]).SlotOf(named["ranger"]) != 0 {
		t.Fatalf("ranger should hold station 0")
	}
	if w.Object(named["r1"]).AI.GoalID != named["tank"] {
		t.Fatalf("r1 attack order missing")
	}
	if len(w.Players()) != 2 {
		t.Fatalf("players=%d", len(w.Players()))
	}

	if _, err := w.LoadScenario(scenario.Scenario{Name: "again"}); err == nil {
		t.Fatalf("loading into a populated world must fail")
	}
}
