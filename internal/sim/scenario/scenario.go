package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

type Player struct {
	ID   ids.PlayerID `yaml:"id"`
	Name string       `yaml:"name"`
}

// Relation overrides the default stance of From towards To.
type Relation struct {
	From ids.PlayerID `yaml:"from"`
	To   ids.PlayerID `yaml:"to"`
	Rel  string       `yaml:"rel"`
}

// Spawn places one object at start. Inside names an earlier container spawn.
type Spawn struct {
	Name     string       `yaml:"name"`
	Template string       `yaml:"template"`
	Team     ids.PlayerID `yaml:"team"`
	Pos      [3]float64   `yaml:"pos"`
	Yaw      float64      `yaml:"yaw"`
	Health   float64      `yaml:"health"`
	Inside   string       `yaml:"inside"`
	Attack   string       `yaml:"attack"`
}

type Scenario struct {
	Name          string     `yaml:"name"`
	Players       []Player   `yaml:"players"`
	Relationships []Relation `yaml:"relationships"`
	Spawns        []Spawn    `yaml:"spawns"`
}

func Load(path string) (Scenario, error) {
	var s Scenario
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("scenario.yaml: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("scenario.yaml: %w", err)
	}
	return s, nil
}

func validTeam(p ids.PlayerID) bool { return p == ids.NoPlayer || (p >= 0 && p < ids.MaxPlayers) }

func (s Scenario) Validate() error {
	players := map[ids.PlayerID]bool{}
	for _, p := range s.Players {
		if p.ID < 0 || p.ID >= ids.MaxPlayers {
			return fmt.Errorf("player id %d out of range", p.ID)
		}
		if players[p.ID] {
			return fmt.Errorf("duplicate player %d", p.ID)
		}
		players[p.ID] = true
	}
	for _, r := range s.Relationships {
		if !players[r.From] || !players[r.To] {
			return fmt.Errorf("relationship %d->%d names unknown player", r.From, r.To)
		}
		if _, err := ParseRelationship(r.Rel); err != nil {
			return err
		}
	}
	names := map[string]bool{}
	for i, sp := range s.Spawns {
		if sp.Template == "" {
			return fmt.Errorf("spawn %d: empty template", i)
		}
		if !validTeam(sp.Team) || (sp.Team != ids.NoPlayer && !players[sp.Team]) {
			return fmt.Errorf("spawn %d: unknown team %d", i, sp.Team)
		}
		if sp.Inside != "" && !names[sp.Inside] {
			return fmt.Errorf("spawn %d: inside %q is not an earlier spawn", i, sp.Inside)
		}
		if sp.Name != "" {
			if names[sp.Name] {
				return fmt.Errorf("spawn %d: duplicate name %q", i, sp.Name)
			}
			names[sp.Name] = true
		}
	}
	for i, sp := range s.Spawns {
		if sp.Attack != "" && !names[sp.Attack] {
			return fmt.Errorf("spawn %d: attack target %q unknown", i, sp.Attack)
		}
	}
	return nil
}

func ParseRelationship(s string) (object.Relationship, error) {
	switch strings.ToUpper(s) {
	case "ENEMIES":
		return object.Enemies, nil
	case "NEUTRAL":
		return object.Neutral, nil
	case "ALLIES":
		return object.Allies, nil
	}
	return object.Neutral, fmt.Errorf("unknown relationship %q", s)
}
