package world

import (
	"fmt"
	"sort"

	"rtsgarrison.dev/internal/sim/catalogs"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

// Spawn creates an object from its unit template. Templates with a container
// get one, and any initial payload is spawned and admitted immediately.
func (w *World) Spawn(template string, team ids.PlayerID, pos geom.Vec3, yaw float64) (*object.Object, error) {
	u, ok := w.catalogs.Units.ByID[template]
	if !ok {
		return nil, fmt.Errorf("spawn: unknown template %q", template)
	}
	w.nextObject++
	o := newObject(w.nextObject, u, team, pos, yaw)
	w.insert(o)

	if u.Container == "" {
		return o, nil
	}
	def := w.catalogs.Containers.ByTemplate[u.Container]
	c, err := contain.New(o, def, w.svc)
	if err != nil {
		w.remove(o.ID)
		return nil, fmt.Errorf("spawn %s: %w", template, err)
	}
	w.containers[o.ID] = c
	for _, p := range u.InitialPayload {
		for range p.Count {
			occ, err := w.Spawn(p.Template, team, pos, yaw)
			if err != nil {
				return o, err
			}
			if err := c.Admit(occ); err != nil {
				w.log.Warn().Err(err).Str("container", template).Str("payload", p.Template).Msg("initial payload rejected")
			}
		}
	}
	return o, nil
}

func newObject(id ids.ObjectID, u catalogs.UnitDef, team ids.PlayerID, pos geom.Vec3, yaw float64) *object.Object {
	o := &object.Object{
		ID:        id,
		Template:  u.Template,
		Kind:      u.Kind(),
		Team:      team,
		Pos:       pos,
		Yaw:       yaw,
		Health:    u.MaxHealth,
		MaxHealth: u.MaxHealth,
		Damage:    object.Pristine,
		Geometry: object.Geometry{
			BoundingRadius: u.BoundingRadius,
			MajorRadius:    u.MajorRadius,
			MinorRadius:    u.MinorRadius,
		},
		TransportSlots: u.TransportSlots,
		Mobile:         u.Mobile,
	}
	if u.Weapon != nil {
		o.Weapon = &object.Weapon{
			Range:        u.Weapon.Range,
			Damage:       u.Weapon.Damage,
			DamageType:   u.Weapon.DamageType,
			ReloadFrames: u.Weapon.ReloadFrames,
		}
		o.SetStatus(object.StatusCanAttack)
	}
	if u.Mobile || u.Weapon != nil {
		o.AI = &object.AI{Locomotor: u.Locomotor, Speed: u.Speed}
	}
	return o
}

func (w *World) insert(o *object.Object) {
	w.objects[o.ID] = o
	w.registered[o.ID] = true
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= o.ID })
	w.order = append(w.order, 0)
	copy(w.order[i+1:], w.order[i:])
	w.order[i] = o.ID
}

// remove drops an object from the arena. Its container, if any, must already be torn down.
func (w *World) remove(id ids.ObjectID) {
	delete(w.objects, id)
	delete(w.registered, id)
	delete(w.hidden, id)
	delete(w.garrisoned, id)
	delete(w.doors, id)
	delete(w.containers, id)
	for fx, m := range w.effects {
		if m.owner == id {
			delete(w.effects, fx)
		}
	}
	i := sort.Search(len(w.order), func(i int) bool { return w.order[i] >= id })
	if i < len(w.order) && w.order[i] == id {
		w.order = append(w.order[:i], w.order[i+1:]...)
	}
}

// IDs returns live object ids in ascending order.
func (w *World) IDs() []ids.ObjectID { return append([]ids.ObjectID(nil), w.order...) }
