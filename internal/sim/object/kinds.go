package object

import (
	"fmt"
	"sort"
	"strings"
)

// KindOf is a template classification bit set.
type KindOf uint32

const (
	KindInfantry KindOf = 1 << iota
	KindVehicle
	KindAircraft
	KindStructure
	KindHero
	KindStealthGarrison
	KindNoGarrison
	KindPortableStructure
	KindGarrisonableUntilDestroyed
)

var kindNames = map[string]KindOf{
	"INFANTRY":                     KindInfantry,
	"VEHICLE":                      KindVehicle,
	"AIRCRAFT":                     KindAircraft,
	"STRUCTURE":                    KindStructure,
	"HERO":                         KindHero,
	"STEALTH_GARRISON":             KindStealthGarrison,
	"NO_GARRISON":                  KindNoGarrison,
	"PORTABLE_STRUCTURE":           KindPortableStructure,
	"GARRISONABLE_UNTIL_DESTROYED": KindGarrisonableUntilDestroyed,
}

func ParseKindOf(names []string) (KindOf, error) {
	var k KindOf
	for _, n := range names {
		bit, ok := kindNames[strings.ToUpper(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown kind_of %q", n)
		}
		k |= bit
	}
	return k, nil
}

// Has reports whether every bit of x is set.
func (k KindOf) Has(x KindOf) bool { return x != 0 && k&x == x }

// HasAny reports whether any bit of x is set.
func (k KindOf) HasAny(x KindOf) bool { return k&x != 0 }

func (k KindOf) Names() []string {
	var out []string
	for n, bit := range kindNames {
		if k&bit != 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Status is the mutable per-object condition bit set.
type Status uint32

const (
	StatusAttacking Status = 1 << iota
	StatusDetected
	StatusCanAttack
	StatusHeld
	StatusGarrisonBonus
	StatusSubdued
	StatusDead
	StatusSold
)

func (s Status) Has(x Status) bool { return s&x == x }

// DamageState is the coarse body condition derived from health.
type DamageState uint8

const (
	Pristine DamageState = iota
	Damaged
	ReallyDamaged
	Rubble
)

const (
	DamagedRatio       = 0.5
	ReallyDamagedRatio = 0.1
)

func DamageStateFor(health, maxHealth float64) DamageState {
	if maxHealth <= 0 || health <= 0 {
		return Rubble
	}
	r := health / maxHealth
	switch {
	case r > DamagedRatio:
		return Pristine
	case r > ReallyDamagedRatio:
		return Damaged
	default:
		return ReallyDamaged
	}
}

func (d DamageState) String() string {
	switch d {
	case Pristine:
		return "PRISTINE"
	case Damaged:
		return "DAMAGED"
	case ReallyDamaged:
		return "REALLY_DAMAGED"
	case Rubble:
		return "RUBBLE"
	}
	return fmt.Sprintf("DAMAGE_STATE_%d", uint8(d))
}

func ParseDamageState(s string) (DamageState, bool) {
	switch strings.ToUpper(s) {
	case "PRISTINE":
		return Pristine, true
	case "DAMAGED":
		return Damaged, true
	case "REALLY_DAMAGED":
		return ReallyDamaged, true
	case "RUBBLE":
		return Rubble, true
	}
	return Pristine, false
}

// Relationship is how one side regards another.
type Relationship int8

const (
	Enemies Relationship = iota
	Neutral
	Allies
)

func (r Relationship) String() string {
	switch r {
	case Enemies:
		return "ENEMIES"
	case Neutral:
		return "NEUTRAL"
	case Allies:
		return "ALLIES"
	}
	return "UNKNOWN"
}
