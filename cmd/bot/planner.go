package main

import (
	"math"
	"sort"
	"strings"

	"rtsgarrison.dev/internal/observerproto"
	"rtsgarrison.dev/internal/protocol"
)

type planner struct {
	team      int8
	templates map[string]bool
	// sent remembers units already ordered in, until they show up contained.
	sent map[uint32]bool
}

func newPlanner(team int8, templates []string) *planner {
	p := &planner{team: team, templates: map[string]bool{}, sent: map[uint32]bool{}}
	for _, t := range templates {
		if t = strings.TrimSpace(t); t != "" {
			p.templates[t] = true
		}
	}
	return p
}

// plan returns ENTER orders for idle units of the planner's team.
func (p *planner) plan(tick observerproto.TickMsg) []protocol.CommandRequest {
	pos := make(map[uint32][3]float64, len(tick.Objects))
	for _, o := range tick.Objects {
		pos[o.ID] = o.Pos
	}

	type room struct {
		id   uint32
		free int
		at   [3]float64
	}
	var rooms []*room
	for _, c := range tick.Containers {
		if c.Policy != "GARRISON" || (c.Team != p.team && c.Team != -1) {
			continue
		}
		at, ok := pos[c.ID]
		if !ok || c.Count >= c.Max {
			continue
		}
		rooms = append(rooms, &room{id: c.ID, free: c.Max - c.Count, at: at})
	}

	units := make([]observerproto.ObjectState, 0)
	for _, o := range tick.Objects {
		if o.Team != p.team || !p.templates[o.Template] {
			continue
		}
		if o.ContainedBy != 0 {
			delete(p.sent, o.ID)
			continue
		}
		if !p.sent[o.ID] {
			units = append(units, o)
		}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	var out []protocol.CommandRequest
	for _, u := range units {
		var best *room
		bestD := math.Inf(1)
		for _, r := range rooms {
			if r.free == 0 {
				continue
			}
			if d := dist2(u.Pos, r.at); d < bestD {
				best, bestD = r, d
			}
		}
		if best == nil {
			break
		}
		best.free--
		p.sent[u.ID] = true
		out = append(out, protocol.CommandRequest{Kind: "ENTER", Subject: u.ID, Target: best.id})
	}
	return out
}

func dist2(a, b [3]float64) float64 {
	dx, dy := a[0]-b[0], a[1]-b[1]
	return dx*dx + dy*dy
}
