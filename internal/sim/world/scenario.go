package world

import (
	"fmt"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/scenario"
)

// LoadScenario populates an empty world: players and stances first, then spawns
// in file order, then attack orders once every named spawn exists.
// It returns the object id of every named spawn.
func (w *World) LoadScenario(s scenario.Scenario) (map[string]ids.ObjectID, error) {
	if len(w.objects) != 0 {
		return nil, fmt.Errorf("scenario %s: world is not empty", s.Name)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	for _, p := range s.Players {
		w.AddPlayer(Player{ID: p.ID, Name: p.Name})
	}
	for _, r := range s.Relationships {
		rel, err := scenario.ParseRelationship(r.Rel)
		if err != nil {
			return nil, err
		}
		w.SetRelationship(r.From, r.To, rel)
	}

	named := map[string]ids.ObjectID{}
	for i, sp := range s.Spawns {
		o, err := w.Spawn(sp.Template, sp.Team, geom.FromArray(sp.Pos), sp.Yaw)
		if err != nil {
			return nil, fmt.Errorf("spawn %d: %w", i, err)
		}
		if sp.Health > 0 && sp.Health < o.MaxHealth {
			w.damage(o, o.MaxHealth-sp.Health)
		}
		if sp.Inside != "" {
			c := w.containers[named[sp.Inside]]
			if c == nil {
				return nil, fmt.Errorf("spawn %d: %q is not a container", i, sp.Inside)
			}
			if err := c.Admit(o); err != nil {
				return nil, fmt.Errorf("spawn %d into %q: %w", i, sp.Inside, err)
			}
		}
		if sp.Name != "" {
			named[sp.Name] = o.ID
		}
	}
	for i, sp := range s.Spawns {
		if sp.Attack == "" || sp.Name == "" {
			continue
		}
		if err := w.apply(Command{Kind: CmdAttack, Subject: named[sp.Name], Target: named[sp.Attack]}); err != nil {
			return nil, fmt.Errorf("spawn %d attack %q: %w", i, sp.Attack, err)
		}
	}
	w.log.Info().Str("scenario", s.Name).Int("objects", len(w.objects)).Int("containers", len(w.containers)).Msg("scenario loaded")
	return named, nil
}
