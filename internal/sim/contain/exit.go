package contain

import (
	"fmt"
	"math"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/object"
)

// DoorAny lets the container pick the next exit path.
const DoorAny = -1

type exitState struct {
	which         int
	door          int
	doorCountdown uint32
	rally         geom.Vec3
	hasRally      bool
}

func exitBones(door int) (start, end string) {
	return fmt.Sprintf("ExitStart%02d", door), fmt.Sprintf("ExitEnd%02d", door)
}

func (c *Container) SetRallyPoint(p geom.Vec3) {
	c.exit.rally = p
	c.exit.hasRally = true
}

func (c *Container) ClearRallyPoint() {
	c.exit.rally = geom.Vec3{}
	c.exit.hasRally = false
}

func (c *Container) rallyPoint() (geom.Vec3, bool) {
	if !c.exit.hasRally || !c.svc.Nav.ValidMovementTerrain(c.exit.rally) {
		return geom.Vec3{}, false
	}
	return c.exit.rally, true
}

// DoorOpen returns the door currently held open, or 0.
func (c *Container) DoorOpen() int { return c.exit.door }

func (c *Container) tickDoor() {
	if c.exit.doorCountdown == 0 {
		return
	}
	c.exit.doorCountdown--
	if c.exit.doorCountdown == 0 {
		c.svc.Render.SetDoorOpen(c.owner, c.exit.door, false)
		c.exit.door = 0
	}
}

// exitViaBones walks occ out along a numbered ExitStart/ExitEnd pair.
// It reports false when the model has no usable exit bones.
func (c *Container) exitViaBones(owner, occ *object.Object, door int) bool {
	n := c.def.NumberOfExitPaths
	if n <= 0 {
		return false
	}
	if door < 1 || door > n {
		c.exit.which = c.exit.which%n + 1
		door = c.exit.which
	}
	sb, eb := exitBones(door)
	start := c.svc.Render.SampleBones(c.owner, owner.Damage, sb, 1)
	end := c.svc.Render.SampleBones(c.owner, owner.Damage, eb, 1)
	if len(start) == 0 || len(end) == 0 {
		return false
	}
	occ.Pos = start[0]
	occ.Yaw = geom.Heading(start[0], end[0])
	if c.def.DoorOpenFrames > 0 {
		if c.exit.door != 0 && c.exit.door != door {
			c.svc.Render.SetDoorOpen(c.owner, c.exit.door, false)
		}
		c.exit.door = door
		c.exit.doorCountdown = c.def.DoorOpenFrames
		c.svc.Render.SetDoorOpen(c.owner, door, true)
	}
	path := []geom.Vec3{end[0], end[0]}
	if r, ok := c.rallyPoint(); ok {
		path = append(path, r)
	}
	c.svc.Nav.FollowPath(occ, path, SourceAI)
	return true
}

// scatter drops occ at a random ring point around the owner.
func (c *Container) scatter(owner, occ *object.Object) {
	r := owner.Geometry.BoundingRadius
	angle := c.svc.Rand.Float64Range(0, 2*math.Pi)
	dist := c.svc.Rand.Float64Range(r, 1.5*r)
	p := geom.Polar(owner.Pos, angle, dist)
	p.Z = c.svc.Nav.GroundHeight(p.X, p.Y)
	c.sendTo(occ, p)
}

// sendTo walks a mobile occupant to p, or places a static one there.
func (c *Container) sendTo(occ *object.Object, p geom.Vec3) {
	if occ.AI == nil || !occ.Mobile {
		occ.Pos = p
		return
	}
	if adj, ok := c.svc.Nav.AdjustToReachablePoint(occ, occ.AI.Locomotor, p); ok {
		p = adj
	}
	path := []geom.Vec3{p}
	if r, ok := c.rallyPoint(); ok {
		path = append(path, r)
	}
	c.svc.Nav.FollowPath(occ, path, SourceAI)
}

// garrisonExit places occ outside a garrison according to its evacuation disposition.
func (c *Container) garrisonExit(owner, occ *object.Object) {
	xf := owner.Transform()
	halfLen := owner.Geometry.MajorRadius
	width := owner.Geometry.MinorRadius
	if halfLen <= 0 {
		halfLen = owner.Geometry.BoundingRadius
	}
	if width <= 0 {
		width = owner.Geometry.BoundingRadius
	}

	var start, end geom.Vec3
	switch c.def.Evacuation {
	case EvacLeft, EvacRight:
		side := 1.0
		if c.def.Evacuation == EvacRight {
			side = -1
		}
		x := c.svc.Rand.Float64Range(-halfLen/4, halfLen/4)
		start = xf.Apply(geom.Vec3{X: x, Y: side * width / 2})
		end = xf.Apply(geom.Vec3{X: x, Y: side * c.svc.Rand.Float64Range(width, 2*width)})
	default:
		start = owner.Pos
		if !c.svc.Nav.ValidMovementTerrain(start) {
			back := xf.Apply(geom.Vec3{X: -halfLen})
			front := xf.Apply(geom.Vec3{X: halfLen})
			switch {
			case c.svc.Nav.ValidMovementTerrain(back):
				start = back
			case c.svc.Nav.ValidMovementTerrain(front):
				start = front
			}
		}
		r := owner.Geometry.BoundingRadius
		end = geom.Polar(start, c.svc.Rand.Float64Range(0, 2*math.Pi), c.svc.Rand.Float64Range(r, 1.5*r))
	}
	start.Z = c.svc.Nav.GroundHeight(start.X, start.Y)
	end.Z = c.svc.Nav.GroundHeight(end.X, end.Y)
	occ.Pos = start
	occ.Yaw = geom.Heading(start, end)
	c.sendTo(occ, end)
}
