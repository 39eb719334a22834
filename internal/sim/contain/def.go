package contain

import (
	"fmt"
	"strings"

	"rtsgarrison.dev/internal/sim/object"
)

type PolicyKind uint8

const (
	PolicyOpen PolicyKind = iota
	PolicyGarrison
	PolicyPortable
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyOpen:
		return "OPEN"
	case PolicyGarrison:
		return "GARRISON"
	case PolicyPortable:
		return "PORTABLE"
	}
	return "UNKNOWN"
}

func ParsePolicyKind(s string) (PolicyKind, error) {
	switch strings.ToUpper(s) {
	case "OPEN", "":
		return PolicyOpen, nil
	case "GARRISON":
		return PolicyGarrison, nil
	case "PORTABLE":
		return PolicyPortable, nil
	}
	return PolicyOpen, fmt.Errorf("unknown contain policy %q", s)
}

// Evacuation is where a garrison puts occupants when they leave.
type Evacuation uint8

const (
	EvacBurst Evacuation = iota
	EvacLeft
	EvacRight
)

func ParseEvacuation(s string) (Evacuation, error) {
	switch strings.ToUpper(s) {
	case "BURST", "":
		return EvacBurst, nil
	case "LEFT":
		return EvacLeft, nil
	case "RIGHT":
		return EvacRight, nil
	}
	return EvacBurst, fmt.Errorf("unknown evacuation disposition %q", s)
}

// Def is the static configuration of one container template.
type Def struct {
	Template string
	Policy   PolicyKind

	// MaxOccupants of zero means unlimited.
	MaxOccupants int
	AllowKinds   object.KindOf
	ForbidKinds  object.KindOf

	AllowAllies  bool
	AllowEnemies bool
	AllowNeutral bool

	EnterSound string
	ExitSound  string

	DamagePercentToUnits    float64
	PassengersAllowedToFire bool

	// Enclosing removes occupants from the world while held. A non-enclosing
	// garrison uses station slots.
	Enclosing bool

	HealObjects       bool
	FramesForFullHeal uint32
	MobileGarrison    bool

	Evacuation        Evacuation
	NumberOfExitPaths int
	DoorOpenFrames    uint32
}

func (d Def) Validate() error {
	if d.Template == "" {
		return fmt.Errorf("contain def: empty template")
	}
	if d.MaxOccupants < 0 {
		return fmt.Errorf("contain def %s: negative max occupants", d.Template)
	}
	if d.DamagePercentToUnits < 0 || d.DamagePercentToUnits > 100 {
		return fmt.Errorf("contain def %s: damage_percent_to_units out of range", d.Template)
	}
	if d.NumberOfExitPaths < 0 || d.NumberOfExitPaths > 99 {
		return fmt.Errorf("contain def %s: number_of_exit_paths out of range", d.Template)
	}
	if d.HealObjects && d.FramesForFullHeal == 0 {
		return fmt.Errorf("contain def %s: heal_objects needs frames_for_full_heal", d.Template)
	}
	return nil
}
