package contain

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

type RosterEntry struct {
	ID      ids.ObjectID
	Stealth bool
	Frame   uint32
}

type GarrisonState struct {
	Loaded bool
	Points [conditionCount][]geom.Vec3
	Slots  []Slot
}

type StationState struct {
	Loaded    bool
	Points    []geom.Vec3
	Occupants []ids.ObjectID
}

// State is the persisted form of one container.
type State struct {
	Owner  ids.ObjectID
	Policy PolicyKind

	Roster        []RosterEntry
	PlayerEntered ids.PlayerMask

	LoadSoundFrame   uint32
	UnloadSoundFrame uint32

	ConditionKey  string
	LastTransform geom.Transform

	ExitWhich     int
	DoorOpen      int
	DoorCountdown uint32
	Rally         geom.Vec3
	HasRally      bool

	OriginalTeam   ids.PlayerID
	TeamOverridden bool

	FirePointCursor int
	Portable        ids.ObjectID
	Garrison        *GarrisonState
	Station         *StationState
}

func (c *Container) Export() State {
	st := State{
		Owner:            c.owner,
		Policy:           c.def.Policy,
		PlayerEntered:    c.playerEntered,
		LoadSoundFrame:   c.loadSound,
		UnloadSoundFrame: c.unloadSound,
		ConditionKey:     c.condKey,
		LastTransform:    c.lastXf,
		ExitWhich:        c.exit.which,
		DoorOpen:         c.exit.door,
		DoorCountdown:    c.exit.doorCountdown,
		Rally:            c.exit.rally,
		HasRally:         c.exit.hasRally,
		OriginalTeam:     c.originalTeam,
		TeamOverridden:   c.teamOverridden,
	}
	for _, e := range c.roster.entries {
		st.Roster = append(st.Roster, RosterEntry{ID: e.id, Stealth: e.stealth, Frame: e.frame})
	}
	c.policy.export(&st)
	return st
}

// Import restores a freshly built container. Ids are resolved later by LoadPostProcess.
func (c *Container) Import(st State) error {
	if c.roster.Len() > 0 || c.Portable() != ids.InvalidObject {
		return invalidData("container %s not empty before load", c.owner)
	}
	if st.Owner != c.owner {
		return invalidData("state for %s loaded into %s", st.Owner, c.owner)
	}
	if st.Policy != c.def.Policy {
		return invalidData("policy %s loaded into %s container", st.Policy, c.def.Policy)
	}
	if c.def.NumberOfExitPaths > 0 && (st.ExitWhich < 0 || st.ExitWhich > c.def.NumberOfExitPaths) {
		return invalidData("exit path %d of %d", st.ExitWhich, c.def.NumberOfExitPaths)
	}
	seen := map[ids.ObjectID]bool{}
	var r Roster
	for _, e := range st.Roster {
		if e.ID == ids.InvalidObject || seen[e.ID] {
			return invalidData("roster entry %d", e.ID)
		}
		seen[e.ID] = true
		r.add(e.ID, e.Stealth, e.Frame)
	}
	if c.def.MaxOccupants > 0 && c.def.Policy == PolicyGarrison && r.Len() > c.def.MaxOccupants {
		return invalidData("%d occupants over max %d", r.Len(), c.def.MaxOccupants)
	}
	if err := c.policy.load(st); err != nil {
		return err
	}
	c.roster = r
	c.playerEntered = st.PlayerEntered
	c.loadSound = st.LoadSoundFrame
	c.unloadSound = st.UnloadSoundFrame
	c.condKey = st.ConditionKey
	c.lastXf = st.LastTransform
	c.exit = exitState{
		which:         st.ExitWhich,
		door:          st.DoorOpen,
		doorCountdown: st.DoorCountdown,
		rally:         st.Rally,
		hasRally:      st.HasRally,
	}
	c.originalTeam = st.OriginalTeam
	c.teamOverridden = st.TeamOverridden
	return nil
}

// LoadPostProcess checks that every persisted id resolves to a live object held by this container.
func (c *Container) LoadPostProcess() error {
	for id := range c.roster.All(Forward) {
		occ := c.lookup(id)
		if occ == nil {
			return invalidData("occupant %s of %s does not resolve", id, c.owner)
		}
		if occ.ContainedBy() != c.owner {
			return invalidData("occupant %s contained by %s, not %s", id, occ.ContainedBy(), c.owner)
		}
	}
	if err := c.policy.postLoad(c); err != nil {
		return err
	}
	c.refreshApparent()
	return nil
}
