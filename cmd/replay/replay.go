package main

import (
	"errors"
	"fmt"

	"rtsgarrison.dev/internal/sim/world"
)

var errDone = errors.New("reached to_tick")

type replayer struct {
	w          *world.World
	start      uint64
	verifyFrom uint64
	to         uint64
	checked    uint64
}

func (r *replayer) step(entry world.TickLogEntry) error {
	if entry.Tick < r.start {
		return nil
	}
	if r.to != 0 && entry.Tick > r.to {
		return errDone
	}
	if entry.Tick != r.w.CurrentTick() {
		return fmt.Errorf("tick gap: want=%d got=%d", r.w.CurrentTick(), entry.Tick)
	}
	cmds := make([]world.Command, 0, len(entry.Commands))
	for _, c := range entry.Commands {
		cmds = append(cmds, c.Cmd)
	}
	tick, digest := r.w.StepOnce(cmds)
	if tick != entry.Tick {
		return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, entry.Tick)
	}
	if tick >= r.verifyFrom {
		r.checked++
		if digest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
		}
	}
	return nil
}
