package contain

import (
	"fmt"

	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// fakeWorld stands in for every collaborator the container talks to.
type fakeWorld struct {
	objs       map[ids.ObjectID]*object.Object
	containers map[ids.ObjectID]*Container
	bones      map[string][]geom.Vec3

	hidden     map[ids.ObjectID]bool
	registered map[ids.ObjectID]bool
	garrisoned map[ids.ObjectID]bool
	doors      map[int]bool
	paths      map[ids.ObjectID][]geom.Vec3
	blocked    func(geom.Vec3) bool

	sounds []string
	events []Event

	nextFx  ids.DrawableID
	effects map[ids.DrawableID]bool
	firing  map[ids.DrawableID]bool

	frame uint32
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		objs:       map[ids.ObjectID]*object.Object{},
		containers: map[ids.ObjectID]*Container{},
		bones:      map[string][]geom.Vec3{},
		hidden:     map[ids.ObjectID]bool{},
		registered: map[ids.ObjectID]bool{},
		garrisoned: map[ids.ObjectID]bool{},
		doors:      map[int]bool{},
		paths:      map[ids.ObjectID][]geom.Vec3{},
		effects:    map[ids.DrawableID]bool{},
		firing:     map[ids.DrawableID]bool{},
	}
}

func (w *fakeWorld) services() *Services {
	return &Services{
		Objects:    w,
		Nav:        w,
		Render:     w,
		Effects:    w,
		Audio:      w,
		Frame:      func() uint32 { return w.frame },
		Log:        zerolog.Nop(),
		Events:     w,
		TickRateHz: 30,
	}
}

func (w *fakeWorld) add(o *object.Object) *object.Object {
	w.objs[o.ID] = o
	w.registered[o.ID] = true
	return o
}

func (w *fakeWorld) setBones(cond object.DamageState, bone string, pts ...geom.Vec3) {
	w.bones[fmt.Sprintf("%s/%s", cond, bone)] = pts
}

// Registry
func (w *fakeWorld) Object(id ids.ObjectID) *object.Object { return w.objs[id] }
func (w *fakeWorld) Container(id ids.ObjectID) *Container  { return w.containers[id] }
func (w *fakeWorld) Relationship(from, to ids.PlayerID) object.Relationship {
	switch {
	case from < 0 || to < 0:
		return object.Neutral
	case from == to:
		return object.Allies
	default:
		return object.Enemies
	}
}

// Navigator
func (w *fakeWorld) Register(o *object.Object)   { w.registered[o.ID] = true }
func (w *fakeWorld) Unregister(o *object.Object) { w.registered[o.ID] = false }
func (w *fakeWorld) AdjustToReachablePoint(_ *object.Object, _ string, p geom.Vec3) (geom.Vec3, bool) {
	return p, true
}
func (w *fakeWorld) FollowPath(o *object.Object, path []geom.Vec3, _ CommandSource) {
	w.paths[o.ID] = append([]geom.Vec3(nil), path...)
}
func (w *fakeWorld) ValidMovementTerrain(p geom.Vec3) bool { return w.blocked == nil || !w.blocked(p) }
func (w *fakeWorld) GroundHeight(float64, float64) float64 { return 0 }

// Renderer
func (w *fakeWorld) SampleBones(_ ids.ObjectID, cond object.DamageState, bone string, max int) []geom.Vec3 {
	pts := w.bones[fmt.Sprintf("%s/%s", cond, bone)]
	if len(pts) > max {
		pts = pts[:max]
	}
	return append([]geom.Vec3(nil), pts...)
}
func (w *fakeWorld) ConditionKey(owner ids.ObjectID) string {
	if o := w.objs[owner]; o != nil {
		return o.Damage.String()
	}
	return ""
}
func (w *fakeWorld) SetGarrisoned(owner ids.ObjectID, on bool)    { w.garrisoned[owner] = on }
func (w *fakeWorld) SetHidden(id ids.ObjectID, hidden bool)       { w.hidden[id] = hidden }
func (w *fakeWorld) SetDoorOpen(_ ids.ObjectID, door int, o bool) { w.doors[door] = o }

// countingMetrics records slot misses; the rest are no-ops.
type countingMetrics struct {
	nopMetrics
	misses int
}

func (m *countingMetrics) SlotMiss() { m.misses++ }

// EffectHost
func (w *fakeWorld) NewMuzzle(ids.ObjectID, geom.Vec3) ids.DrawableID {
	w.nextFx++
	w.effects[w.nextFx] = true
	return w.nextFx
}
func (w *fakeWorld) Destroy(id ids.DrawableID)                 { delete(w.effects, id) }
func (w *fakeWorld) Exists(id ids.DrawableID) bool             { return w.effects[id] }
func (w *fakeWorld) SetFiring(id ids.DrawableID, on bool)      { w.firing[id] = on }
func (w *fakeWorld) Orient(ids.DrawableID, geom.Vec3, float64) {}

// Audio
func (w *fakeWorld) PostEvent(event string, _ ids.ObjectID) { w.sounds = append(w.sounds, event) }

// EventSink
func (w *fakeWorld) Emit(e Event) { w.events = append(w.events, e) }

func (w *fakeWorld) countEvents(kind EventKind) int {
	n := 0
	for _, e := range w.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func building(id ids.ObjectID, team ids.PlayerID) *object.Object {
	return &object.Object{
		ID:        id,
		Template:  "CivilianHouse",
		Kind:      object.KindStructure,
		Team:      team,
		Health:    1000,
		MaxHealth: 1000,
		Geometry:  object.Geometry{BoundingRadius: 10, MajorRadius: 8, MinorRadius: 6},
	}
}

func rifleman(id ids.ObjectID, team ids.PlayerID, pos geom.Vec3) *object.Object {
	return &object.Object{
		ID:             id,
		Template:       "Rifleman",
		Kind:           object.KindInfantry,
		Team:           team,
		Pos:            pos,
		Health:         100,
		MaxHealth:      100,
		TransportSlots: 1,
		Mobile:         true,
		Weapon:         &object.Weapon{Range: 50, Damage: 5, DamageType: "SMALL_ARMS"},
		AI:             &object.AI{Locomotor: "foot", Speed: 1},
	}
}

func garrisonDef(max int) Def {
	return Def{
		Template:     "CivilianHouse",
		Policy:       PolicyGarrison,
		MaxOccupants: max,
		AllowKinds:   object.KindInfantry,
		AllowAllies:  true,
		AllowNeutral: true,
		EnterSound:   "GarrisonEnter",
		ExitSound:    "GarrisonExit",
		Enclosing:    true,
	}
}

// aimAt gives o a live target and marks it attacking.
func aimAt(o *object.Object, p geom.Vec3) {
	o.AI.HasVictimPos = true
	o.AI.VictimPos = p
	o.SetStatus(object.StatusAttacking)
}
