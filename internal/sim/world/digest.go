package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/object"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestWriteVec(h hashWriter, tmp *[8]byte, v geom.Vec3) {
	digestWriteF64(h, tmp, v.X)
	digestWriteF64(h, tmp, v.Y)
	digestWriteF64(h, tmp, v.Z)
}

func digestWriteString(h hashWriter, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// StateDigest is the digest of the last completed tick (tick 0 before any step).
// It must be called from the world loop goroutine or while the world is stopped.
func (w *World) StateDigest() string {
	t := w.tick.Load()
	if t > 0 {
		t--
	}
	return w.stateDigest(t)
}

// stateDigest hashes everything that must survive a snapshot round trip.
func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, nowTick)
	digestWriteU64(h, &tmp, uint64(w.cfg.Seed))
	digestWriteU64(h, &tmp, uint64(w.nextObject))
	digestWriteU64(h, &tmp, uint64(w.nextDrawable))
	digestWriteU64(h, &tmp, w.rng.state)

	digestWriteU64(h, &tmp, uint64(len(w.order)))
	for _, id := range w.order {
		w.digestObject(h, &tmp, w.objects[id])
	}
	cids := w.sortedContainerIDs()
	digestWriteU64(h, &tmp, uint64(len(cids)))
	for _, id := range cids {
		digestContainer(h, &tmp, w.containers[id].Export())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (w *World) digestObject(h hashWriter, tmp *[8]byte, o *object.Object) {
	digestWriteU64(h, tmp, uint64(o.ID))
	digestWriteString(h, tmp, o.Template)
	digestWriteU64(h, tmp, uint64(o.Kind))
	digestWriteU64(h, tmp, uint64(uint8(o.Team)))
	digestWriteVec(h, tmp, o.Pos)
	digestWriteF64(h, tmp, o.Yaw)
	digestWriteF64(h, tmp, o.Health)
	digestWriteU64(h, tmp, uint64(o.Damage))
	digestWriteU64(h, tmp, uint64(o.Status))
	digestWriteU64(h, tmp, uint64(o.ContainedBy()))
	digestWriteU64(h, tmp, uint64(o.ContainedFrame()))
	h.Write([]byte{boolByte(w.registered[o.ID]), boolByte(w.hidden[o.ID]), boolByte(w.garrisoned[o.ID])})
	if wp := o.Weapon; wp != nil {
		h.Write([]byte{1, boolByte(wp.HasShot)})
		digestWriteU64(h, tmp, uint64(wp.LastShotFrame))
	} else {
		h.Write([]byte{0})
	}
	if ai := o.AI; ai != nil {
		h.Write([]byte{1, boolByte(ai.HasVictimPos)})
		digestWriteU64(h, tmp, uint64(ai.GoalID))
		digestWriteVec(h, tmp, ai.VictimPos)
		digestWriteU64(h, tmp, uint64(len(ai.Path)))
		for _, p := range ai.Path {
			digestWriteVec(h, tmp, p)
		}
		digestWriteString(h, tmp, ai.PathSource)
	} else {
		h.Write([]byte{0})
	}
}

func digestContainer(h hashWriter, tmp *[8]byte, st contain.State) {
	digestWriteU64(h, tmp, uint64(st.Owner))
	digestWriteU64(h, tmp, uint64(st.Policy))
	digestWriteU64(h, tmp, uint64(len(st.Roster)))
	for _, e := range st.Roster {
		digestWriteU64(h, tmp, uint64(e.ID))
		digestWriteU64(h, tmp, uint64(e.Frame))
		h.Write([]byte{boolByte(e.Stealth)})
	}
	digestWriteU64(h, tmp, uint64(st.PlayerEntered))
	digestWriteU64(h, tmp, uint64(st.LoadSoundFrame))
	digestWriteU64(h, tmp, uint64(st.UnloadSoundFrame))
	digestWriteString(h, tmp, st.ConditionKey)
	digestWriteVec(h, tmp, st.LastTransform.Pos)
	digestWriteF64(h, tmp, st.LastTransform.Yaw)
	digestWriteU64(h, tmp, uint64(int64(st.ExitWhich)))
	digestWriteU64(h, tmp, uint64(int64(st.DoorOpen)))
	digestWriteU64(h, tmp, uint64(st.DoorCountdown))
	h.Write([]byte{boolByte(st.HasRally), boolByte(st.TeamOverridden)})
	digestWriteVec(h, tmp, st.Rally)
	digestWriteU64(h, tmp, uint64(uint8(st.OriginalTeam)))
	digestWriteU64(h, tmp, uint64(int64(st.FirePointCursor)))
	digestWriteU64(h, tmp, uint64(st.Portable))
	if g := st.Garrison; g != nil {
		h.Write([]byte{1, boolByte(g.Loaded)})
		for _, pts := range g.Points {
			digestWriteU64(h, tmp, uint64(len(pts)))
			for _, p := range pts {
				digestWriteVec(h, tmp, p)
			}
		}
		digestWriteU64(h, tmp, uint64(len(g.Slots)))
		for _, s := range g.Slots {
			digestWriteU64(h, tmp, uint64(s.Occupant))
			digestWriteU64(h, tmp, uint64(s.Target))
			digestWriteU64(h, tmp, uint64(s.PlaceFrame))
			digestWriteU64(h, tmp, uint64(s.Effect))
			digestWriteU64(h, tmp, uint64(s.LastEffectFrame))
			h.Write([]byte{boolByte(s.Flashing)})
		}
	} else {
		h.Write([]byte{0})
	}
	if s := st.Station; s != nil {
		h.Write([]byte{1, boolByte(s.Loaded)})
		for _, p := range s.Points {
			digestWriteVec(h, tmp, p)
		}
		for _, id := range s.Occupants {
			digestWriteU64(h, tmp, uint64(id))
		}
	} else {
		h.Write([]byte{0})
	}
}
