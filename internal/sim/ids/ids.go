package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID names a simulation entity. Zero is never assigned.
type ObjectID uint32

// DrawableID names a client-side proxy (muzzle flash, gun barrel). Zero is never assigned.
type DrawableID uint32

// PlayerID names a controlling player. Negative means none.
type PlayerID int8

// PlayerMask is a bit set of players, bit i for PlayerID i.
type PlayerMask uint16

const (
	InvalidObject   ObjectID   = 0
	InvalidDrawable DrawableID = 0
	NoPlayer        PlayerID   = -1

	MaxPlayers = 16
)

func (id ObjectID) String() string {
	if id == InvalidObject {
		return ""
	}
	return fmt.Sprintf("O%d", uint32(id))
}

func (id DrawableID) String() string {
	if id == InvalidDrawable {
		return ""
	}
	return fmt.Sprintf("D%d", uint32(id))
}

func (p PlayerID) String() string {
	if p < 0 {
		return ""
	}
	return fmt.Sprintf("P%d", int8(p))
}

func (p PlayerID) Mask() PlayerMask {
	if p < 0 || int(p) >= MaxPlayers {
		return 0
	}
	return PlayerMask(1) << uint(p)
}

func (m PlayerMask) Has(p PlayerID) bool { return p.Mask() != 0 && m&p.Mask() != 0 }

func ParseObjectID(s string) (ObjectID, bool) {
	n, ok := ParseUintAfterPrefix("O", s)
	if !ok || n == 0 || n > 0xFFFFFFFF {
		return InvalidObject, false
	}
	return ObjectID(n), true
}

func ParseDrawableID(s string) (DrawableID, bool) {
	n, ok := ParseUintAfterPrefix("D", s)
	if !ok || n == 0 || n > 0xFFFFFFFF {
		return InvalidDrawable, false
	}
	return DrawableID(n), true
}

func ParsePlayerID(s string) (PlayerID, bool) {
	n, ok := ParseUintAfterPrefix("P", s)
	if !ok || n >= MaxPlayers {
		return NoPlayer, false
	}
	return PlayerID(n), true
}

func ParseUintAfterPrefix(prefix, id string) (uint64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(id[len(prefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
