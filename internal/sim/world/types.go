package world

import (
	"time"

	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

type WorldConfig struct {
	ID                 string
	TickRateHz         int
	Seed               int64
	SnapshotEveryTicks int
	StrictInvariants   bool
	// BoundaryR is the half-width of the square playable area.
	BoundaryR     float64
	CommandQueue  int
	ObserverQueue int
}

type CommandKind string

const (
	CmdEnter     CommandKind = "ENTER"
	CmdExit      CommandKind = "EXIT"
	CmdEvacuate  CommandKind = "EVACUATE"
	CmdAttack    CommandKind = "ATTACK"
	CmdAttackPos CommandKind = "ATTACK_POS"
	CmdStop      CommandKind = "STOP"
	CmdDamage    CommandKind = "DAMAGE"
	CmdSell      CommandKind = "SELL"
	CmdDestroy   CommandKind = "DESTROY"
	CmdMove      CommandKind = "MOVE"
	CmdRally     CommandKind = "RALLY"
)

func ParseCommandKind(s string) (CommandKind, bool) {
	switch k := CommandKind(s); k {
	case CmdEnter, CmdExit, CmdEvacuate, CmdAttack, CmdAttackPos, CmdStop,
		CmdDamage, CmdSell, CmdDestroy, CmdMove, CmdRally:
		return k, true
	}
	return "", false
}

// Command is one order applied at a tick boundary, in inbox order.
type Command struct {
	Kind    CommandKind  `json:"kind"`
	Subject ids.ObjectID `json:"subject"`
	Target  ids.ObjectID `json:"target,omitempty"`
	Pos     [3]float64   `json:"pos,omitempty"`
	Amount  float64      `json:"amount,omitempty"`
	// Door picks an exit path; 0 lets the container choose.
	Door int `json:"door,omitempty"`
}

func (c Command) Point() geom.Vec3 { return geom.FromArray(c.Pos) }

type CommandRecord struct {
	Cmd Command `json:"cmd"`
	Err string  `json:"err,omitempty"`
}

type ContainEvent = contain.Event

type SoundCue struct {
	Event  string       `json:"event"`
	Source ids.ObjectID `json:"source"`
}

type TickLogEntry struct {
	Tick       uint64          `json:"tick"`
	Digest     string          `json:"digest"`
	Commands   []CommandRecord `json:"commands,omitempty"`
	Events     []ContainEvent  `json:"events,omitempty"`
	Containers int             `json:"containers"`
	Occupants  int             `json:"occupants"`
}

type EventLogEntry struct {
	Tick  uint64       `json:"tick"`
	Event ContainEvent `json:"event"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type EventLogger interface {
	WriteEvents(tick uint64, events []ContainEvent) error
}

// TickTimer receives the wall time of each step.
type TickTimer interface {
	TickDuration(d time.Duration)
}

type Player struct {
	ID   ids.PlayerID
	Name string
}
