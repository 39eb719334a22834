package world

import (
	"testing"

	"rtsgarrison.dev/internal/sim/catalogs"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:         "test",
		TickRateHz: 30,
		Seed:       42,
		BoundaryR:  1000,
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	w, err := New(testConfig(), cats)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func spawn(t *testing.T, w *World, template string, team ids.PlayerID, x, y float64) *object.Object {
	t.Helper()
	o, err := w.Spawn(template, team, geom.Vec3{X: x, Y: y}, 0)
	if err != nil {
		t.Fatalf("spawn %s: %v", template, err)
	}
	return o
}

// tickRecorder keeps every tick log entry.
type tickRecorder struct{ entries []TickLogEntry }

func (r *tickRecorder) WriteTick(e TickLogEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *tickRecorder) last() TickLogEntry { return r.entries[len(r.entries)-1] }

func (r *tickRecorder) count(kind contain.EventKind) int {
	n := 0
	for _, e := range r.entries {
		for _, ev := range e.Events {
			if ev.Kind == kind {
				n++
			}
		}
	}
	return n
}
