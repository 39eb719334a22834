package world

import (
	"errors"
	"fmt"

	"rtsgarrison.dev/internal/protocol"
	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/ids"
	"rtsgarrison.dev/internal/sim/object"
)

var (
	ErrUnknownObject = errors.New("unknown object")
	ErrNotContainer  = errors.New("object is not a container")
	ErrBadCommand    = errors.New("bad command")
	ErrNoWeapon      = errors.New("object cannot attack")
	ErrImmobile      = errors.New("object cannot move")
)

// commandCode maps a command failure to a stable code for logs and observers.
func commandCode(err error) string {
	if code := contain.Code(err); code != "" {
		return code
	}
	switch {
	case errors.Is(err, ErrUnknownObject):
		return protocol.ErrUnknownObject
	case errors.Is(err, ErrNotContainer):
		return protocol.ErrNotContainer
	case errors.Is(err, ErrNoWeapon):
		return protocol.ErrNoWeapon
	case errors.Is(err, ErrImmobile):
		return protocol.ErrImmobile
	case errors.Is(err, contain.ErrNotContained):
		return protocol.ErrNotContained
	}
	return protocol.ErrBadCommand
}

func (w *World) live(id ids.ObjectID) (*object.Object, error) {
	o := w.objects[id]
	if o == nil || o.IsEffectivelyDead() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, id)
	}
	return o, nil
}

func (w *World) containerOf(id ids.ObjectID) (*contain.Container, error) {
	if _, err := w.live(id); err != nil {
		return nil, err
	}
	c := w.containers[id]
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotContainer, id)
	}
	return c, nil
}

func (w *World) apply(cmd Command) error {
	switch cmd.Kind {
	case CmdEnter:
		occ, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		c, err := w.containerOf(cmd.Target)
		if err != nil {
			return err
		}
		return c.Admit(occ)

	case CmdExit:
		occ, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		c := w.containers[occ.ContainedBy()]
		if c == nil {
			return fmt.Errorf("%w: %s", contain.ErrNotContained, occ.ID)
		}
		return c.ExitViaDoor(occ, cmd.Door)

	case CmdEvacuate:
		c, err := w.containerOf(cmd.Subject)
		if err != nil {
			return err
		}
		c.Evacuate()
		return nil

	case CmdAttack:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		if o.Weapon == nil || o.AI == nil {
			return ErrNoWeapon
		}
		if _, err := w.live(cmd.Target); err != nil {
			return err
		}
		o.AI.ClearTarget()
		o.AI.GoalID = cmd.Target
		return nil

	case CmdAttackPos:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		if o.Weapon == nil || o.AI == nil {
			return ErrNoWeapon
		}
		o.AI.ClearTarget()
		o.AI.VictimPos = cmd.Point()
		o.AI.HasVictimPos = true
		return nil

	case CmdStop:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		if o.AI != nil {
			o.AI.ClearTarget()
			o.AI.Path = nil
		}
		o.ClearStatus(object.StatusAttacking)
		return nil

	case CmdDamage:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		if cmd.Amount <= 0 {
			return fmt.Errorf("%w: damage amount %v", ErrBadCommand, cmd.Amount)
		}
		w.damage(o, cmd.Amount)
		return nil

	case CmdSell:
		c, err := w.containerOf(cmd.Subject)
		if err != nil {
			return err
		}
		c.OnSelling()
		return nil

	case CmdDestroy:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		o.Kill()
		return nil

	case CmdMove:
		o, err := w.live(cmd.Subject)
		if err != nil {
			return err
		}
		if !o.Mobile || o.AI == nil || o.IsContained() {
			return ErrImmobile
		}
		p, _ := (*flatNav)(w).AdjustToReachablePoint(o, o.AI.Locomotor, cmd.Point())
		(*flatNav)(w).FollowPath(o, []geom.Vec3{p}, contain.SourcePlayer)
		return nil

	case CmdRally:
		c, err := w.containerOf(cmd.Subject)
		if err != nil {
			return err
		}
		c.SetRallyPoint(cmd.Point())
		return nil
	}
	return fmt.Errorf("%w: kind %q", ErrBadCommand, cmd.Kind)
}

// damage applies amount to o and forwards body-state transitions to its container.
func (w *World) damage(o *object.Object, amount float64) {
	old, cur := o.ApplyDamage(amount)
	if old == cur {
		return
	}
	if c := w.containers[o.ID]; c != nil && !o.IsEffectivelyDead() {
		c.OnDamageStateChange(old, cur)
	}
}
