package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Digest  string `json:"digest,omitempty"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64             `json:"seed"`
	TickRate           int               `json:"tick_rate_hz"`
	SnapshotEveryTicks int               `json:"snapshot_every_ticks,omitempty"`
	StrictInvariants   bool              `json:"strict_invariants,omitempty"`
	Catalogs           map[string]string `json:"catalogs,omitempty"`

	Players       []PlayerV1   `json:"players"`
	Relationships []RelationV1 `json:"relationships,omitempty"`
	Objects       []ObjectV1   `json:"objects"`
	Containers    []ContainV1  `json:"containers"`
	Effects       []EffectV1   `json:"effects,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextObject   uint32 `json:"next_object"`
	NextDrawable uint32 `json:"next_drawable"`
	RNG          uint64 `json:"rng"`
}

type PlayerV1 struct {
	ID   int8   `json:"id"`
	Name string `json:"name"`
}

type RelationV1 struct {
	From int8 `json:"from"`
	To   int8 `json:"to"`
	Rel  int8 `json:"rel"`
}

type WeaponV1 struct {
	Range         float64 `json:"range"`
	Damage        float64 `json:"damage"`
	DamageType    string  `json:"damage_type"`
	ReloadFrames  uint32  `json:"reload_frames"`
	HasShot       bool    `json:"has_shot,omitempty"`
	LastShotFrame uint32  `json:"last_shot_frame,omitempty"`
}

type AIV1 struct {
	GoalID       uint32       `json:"goal_id,omitempty"`
	VictimPos    [3]float64   `json:"victim_pos,omitempty"`
	HasVictimPos bool         `json:"has_victim_pos,omitempty"`
	Locomotor    string       `json:"locomotor,omitempty"`
	Speed        float64      `json:"speed,omitempty"`
	Path         [][3]float64 `json:"path,omitempty"`
	PathSource   string       `json:"path_source,omitempty"`
}

type ObjectV1 struct {
	ID       uint32 `json:"id"`
	Template string `json:"template"`
	Kind     uint32 `json:"kind"`
	Team     int8   `json:"team"`

	Pos [3]float64 `json:"pos"`
	Yaw float64    `json:"yaw"`

	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`
	Damage    uint8   `json:"damage"`
	Status    uint32  `json:"status"`

	BoundingRadius float64 `json:"bounding_radius"`
	MajorRadius    float64 `json:"major_radius"`
	MinorRadius    float64 `json:"minor_radius"`
	TransportSlots int     `json:"transport_slots"`
	Mobile         bool    `json:"mobile"`

	ContainedBy    uint32 `json:"contained_by,omitempty"`
	ContainedFrame uint32 `json:"contained_frame,omitempty"`

	Registered bool `json:"registered"`
	Hidden     bool `json:"hidden,omitempty"`
	Garrisoned bool `json:"garrisoned,omitempty"`

	Weapon *WeaponV1 `json:"weapon,omitempty"`
	AI     *AIV1     `json:"ai,omitempty"`
}

type RosterEntryV1 struct {
	ID      uint32 `json:"id"`
	Stealth bool   `json:"stealth,omitempty"`
	Frame   uint32 `json:"frame"`
}

type SlotV1 struct {
	Occupant        uint32 `json:"occupant"`
	Target          uint32 `json:"target,omitempty"`
	PlaceFrame      uint32 `json:"place_frame"`
	Effect          uint32 `json:"effect,omitempty"`
	Flashing        bool   `json:"flashing,omitempty"`
	LastEffectFrame uint32 `json:"last_effect_frame,omitempty"`
}

type GarrisonV1 struct {
	Loaded bool            `json:"loaded"`
	Points [3][][3]float64 `json:"points"`
	Slots  []SlotV1        `json:"slots"`
}

type StationV1 struct {
	Loaded    bool         `json:"loaded"`
	Points    [][3]float64 `json:"points"`
	Occupants []uint32     `json:"occupants"`
}

// ContainV1 is one container's persisted containment state.
type ContainV1 struct {
	Owner  uint32 `json:"owner"`
	Policy uint8  `json:"policy"`

	Roster        []RosterEntryV1 `json:"roster"`
	PlayerEntered uint16          `json:"player_entered"`

	LoadSoundFrame   uint32 `json:"load_sound_frame,omitempty"`
	UnloadSoundFrame uint32 `json:"unload_sound_frame,omitempty"`

	ConditionKey string     `json:"condition_key"`
	LastPos      [3]float64 `json:"last_pos"`
	LastYaw      float64    `json:"last_yaw"`

	ExitWhich     int        `json:"exit_which"`
	DoorOpen      int        `json:"door_open"`
	DoorCountdown uint32     `json:"door_countdown,omitempty"`
	Rally         [3]float64 `json:"rally,omitempty"`
	HasRally      bool       `json:"has_rally,omitempty"`

	OriginalTeam   int8 `json:"original_team"`
	TeamOverridden bool `json:"team_overridden,omitempty"`

	FirePointCursor int         `json:"fire_point_cursor,omitempty"`
	Portable        uint32      `json:"portable,omitempty"`
	Garrison        *GarrisonV1 `json:"garrison,omitempty"`
	Station         *StationV1  `json:"station,omitempty"`
}

type EffectV1 struct {
	ID     uint32     `json:"id"`
	Owner  uint32     `json:"owner"`
	Pos    [3]float64 `json:"pos"`
	Yaw    float64    `json:"yaw"`
	Firing bool       `json:"firing,omitempty"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d unsupported", snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the newest "<tick>.snap.zst" under dir, or "" when none exist.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil {
		return "", err
	}
	best := ""
	var bestTick uint64
	for _, m := range matches {
		var tick uint64
		if _, err := fmt.Sscanf(filepath.Base(m), "%d.snap.zst", &tick); err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			best, bestTick = m, tick
		}
	}
	return best, nil
}

func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}
