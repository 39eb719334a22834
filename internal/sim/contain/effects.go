package contain

import (
	"strings"

	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
)

// EffectSync keeps a muzzle proxy bound to each occupied garrison slot.
type EffectSync struct {
	host     EffectHost
	lifetime uint32
}

func NewEffectSync(host EffectHost, tickRateHz int) EffectSync {
	life := uint32(tickRateHz / 7)
	if life == 0 {
		life = 1
	}
	return EffectSync{host: host, lifetime: life}
}

func (e EffectSync) Lifetime() uint32 { return e.lifetime }

func (e EffectSync) Attach(owner ids.ObjectID, s *Slot, pos geom.Vec3) {
	if e.host == nil || s.Effect != ids.InvalidDrawable {
		return
	}
	s.Effect = e.host.NewMuzzle(owner, pos)
}

func (e EffectSync) Detach(s *Slot) {
	if e.host != nil && s.Effect != ids.InvalidDrawable {
		e.host.Destroy(s.Effect)
	}
	s.Effect = ids.InvalidDrawable
	s.Flashing = false
	s.LastEffectFrame = 0
}

// Flash shows the proxy firing. Poison weapons have no muzzle flash.
func (e EffectSync) Flash(s *Slot, frame uint32, damageType string) {
	if e.host == nil || s.Effect == ids.InvalidDrawable || strings.EqualFold(damageType, "POISON") {
		return
	}
	e.host.SetFiring(s.Effect, true)
	s.Flashing = true
	s.LastEffectFrame = frame
}

func (e EffectSync) Age(s *Slot, frame uint32) {
	if !s.Flashing || frame-s.LastEffectFrame <= e.lifetime {
		return
	}
	if e.host != nil && s.Effect != ids.InvalidDrawable {
		e.host.SetFiring(s.Effect, false)
	}
	s.Flashing = false
}

func (e EffectSync) Aim(s *Slot, pos geom.Vec3, yaw float64) {
	if e.host == nil || s.Effect == ids.InvalidDrawable {
		return
	}
	e.host.Orient(s.Effect, pos, yaw)
}
