package contain

import (
	"github.com/rs/zerolog"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Registry resolves ids owned by the simulation root. A nil result is a normal
// condition during the tick an entity is destroyed.
type Registry interface {
	Object(id ids.ObjectID) *object.Object
	Relationship(from, to ids.PlayerID) object.Relationship
	// Container returns the containment module owned by id, or nil.
	Container(id ids.ObjectID) *Container
}

type CommandSource uint8

const (
	SourceAI CommandSource = iota
	SourcePlayer
	SourceScript
)

// Navigator is the path planner and spatial partition.
type Navigator interface {
	Register(o *object.Object)
	Unregister(o *object.Object)
	AdjustToReachablePoint(o *object.Object, locomotor string, p geom.Vec3) (geom.Vec3, bool)
	FollowPath(o *object.Object, path []geom.Vec3, src CommandSource)
	ValidMovementTerrain(p geom.Vec3) bool
	GroundHeight(x, y float64) float64
}

// Renderer answers geometry queries against a container's animated model.
// SampleBones returns world-space positions for the given damage condition
// without leaving the model in that condition.
type Renderer interface {
	SampleBones(owner ids.ObjectID, cond object.DamageState, bone string, max int) []geom.Vec3
	ConditionKey(owner ids.ObjectID) string
	SetGarrisoned(owner ids.ObjectID, on bool)
	SetHidden(id ids.ObjectID, hidden bool)
	SetDoorOpen(owner ids.ObjectID, door int, open bool)
}

// EffectHost owns muzzle-flash proxies.
type EffectHost interface {
	NewMuzzle(owner ids.ObjectID, pos geom.Vec3) ids.DrawableID
	Destroy(id ids.DrawableID)
	Exists(id ids.DrawableID) bool
	SetFiring(id ids.DrawableID, on bool)
	Orient(id ids.DrawableID, pos geom.Vec3, yaw float64)
}

type Audio interface {
	PostEvent(event string, source ids.ObjectID)
}

type Rand interface {
	Float64Range(lo, hi float64) float64
}

type Metrics interface {
	Admitted(template string)
	Rejected(reason string)
	Evicted()
	Redeployed()
	SlotMiss()
}

type EventSink interface {
	Emit(Event)
}

type EventKind string

const (
	EventAdmit    EventKind = "ADMIT"
	EventReject   EventKind = "REJECT"
	EventEvict    EventKind = "EVICT"
	EventExit     EventKind = "EXIT"
	EventSlot     EventKind = "SLOT"
	EventUnslot   EventKind = "UNSLOT"
	EventRedeploy EventKind = "REDEPLOY"
)

// Event is one observable containment transition.
type Event struct {
	Frame     uint32       `json:"frame"`
	Kind      EventKind    `json:"kind"`
	Container ids.ObjectID `json:"container"`
	Occupant  ids.ObjectID `json:"occupant,omitempty"`
	Slot      int          `json:"slot"`
	Reason    string       `json:"reason,omitempty"`
}

// Services is everything a container needs from the outside, threaded in at construction.
type Services struct {
	Objects Registry
	Nav     Navigator
	Render  Renderer
	Effects EffectHost
	Audio   Audio
	Rand    Rand
	Frame   func() uint32
	Log     zerolog.Logger
	Metrics Metrics
	Events  EventSink

	// Strict turns invariant violations into panics.
	Strict     bool
	TickRateHz int
}

type nopMetrics struct{}

func (nopMetrics) Admitted(string) {}
func (nopMetrics) Rejected(string) {}
func (nopMetrics) Evicted()        {}
func (nopMetrics) Redeployed()     {}
func (nopMetrics) SlotMiss()       {}

type nopEvents struct{}

func (nopEvents) Emit(Event) {}

type nopAudio struct{}

func (nopAudio) PostEvent(string, ids.ObjectID) {}

type midRand struct{}

func (midRand) Float64Range(lo, hi float64) float64 { return (lo + hi) / 2 }

func (s *Services) fill() {
	if s.Rand == nil {
		s.Rand = midRand{}
	}
	if s.Metrics == nil {
		s.Metrics = nopMetrics{}
	}
	if s.Events == nil {
		s.Events = nopEvents{}
	}
	if s.Audio == nil {
		s.Audio = nopAudio{}
	}
	if s.Frame == nil {
		s.Frame = func() uint32 { return 0 }
	}
	if s.TickRateHz <= 0 {
		s.TickRateHz = 30
	}
}

func (s *Services) now() uint32 { return s.Frame() }
