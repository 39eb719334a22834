package world

import (
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// arriveDist is how close a mover must get before a waypoint counts as reached.
const arriveDist = 0.5

// systemMovement advances free mobile objects one step along their path.
func (w *World) systemMovement() {
	for _, id := range w.order {
		o := w.objects[id]
		if o == nil || o.AI == nil || len(o.AI.Path) == 0 || o.IsContained() || o.IsEffectivelyDead() {
			continue
		}
		step := o.AI.Speed
		if step <= 0 {
			o.AI.Path = nil
			continue
		}
		for step > 0 && len(o.AI.Path) > 0 {
			next := o.AI.Path[0]
			d := geom.Dist2D(o.Pos, next)
			if d <= step || d <= arriveDist {
				o.Pos = next
				o.AI.Path = o.AI.Path[1:]
				step -= d
				continue
			}
			o.Yaw = geom.Heading(o.Pos, next)
			dir := next.Sub(o.Pos).Scale(step / d)
			o.Pos = o.Pos.Add(dir)
			step = 0
		}
		if len(o.AI.Path) == 0 {
			o.AI.Path = nil
			o.AI.PathSource = ""
		}
	}
}

// systemWeapons marks objects with a target as attacking and fires every ready weapon in range.
// Contained shooters fire only when their container allows it, from the point it assigns.
func (w *World) systemWeapons(frame uint32) {
	for _, id := range w.order {
		o := w.objects[id]
		if o == nil || o.Weapon == nil || o.IsEffectivelyDead() {
			continue
		}
		aim, goal, ok := o.Target(w.Object)
		if !ok {
			if o.AI != nil && o.AI.GoalID != ids.InvalidObject {
				o.AI.ClearTarget()
			}
			o.ClearStatus(object.StatusAttacking)
			continue
		}
		o.SetStatus(object.StatusAttacking)

		from := o.Pos
		if o.IsContained() {
			c := w.containers[o.ContainedBy()]
			if c == nil || !c.PassengerAllowedToFire(o) {
				continue
			}
			p, inRange := c.AttemptFirePoint(o, aim)
			if !inRange {
				continue
			}
			from = p
		} else if !o.Weapon.InRange(from, aim) {
			continue
		}
		if !o.Weapon.Ready(frame) {
			continue
		}
		o.Yaw = geom.Heading(from, aim)
		o.Weapon.RecordShot(frame)
		if goal == ids.InvalidObject {
			continue
		}
		if victim := w.objects[goal]; victim != nil {
			w.damage(victim, o.Weapon.Damage)
		}
	}
}

// systemDeaths releases dead occupants, tears down dead or sold containers and
// removes their owners. It repeats until no more objects die, since a dying
// container may kill what it holds.
func (w *World) systemDeaths() {
	for {
		var gone []ids.ObjectID
		for _, id := range w.order {
			o := w.objects[id]
			if o == nil {
				continue
			}
			dead := o.IsEffectivelyDead()
			sold := o.TestStatus(object.StatusSold)
			if !dead && !sold {
				continue
			}
			if dead && o.IsContained() {
				if c := w.containers[o.ContainedBy()]; c != nil {
					_ = c.Evict(o, false)
				} else {
					o.BindContainer(ids.InvalidObject, 0)
				}
			}
			if c := w.containers[id]; c != nil {
				if dead {
					c.OnDie()
				} else {
					c.OnSelling()
				}
				c.Teardown()
			}
			gone = append(gone, id)
		}
		if len(gone) == 0 {
			return
		}
		for _, id := range gone {
			w.remove(id)
		}
	}
}

func (w *World) systemContainers() {
	for _, id := range w.sortedContainerIDs() {
		if c := w.containers[id]; c != nil {
			c.Update()
		}
	}
}
