package observerproto

// Version is the observer protocol version.
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Viewer is the player whose perspective decides apparent controllers. -1 sees everything.
	Viewer int8 `json:"viewer"`

	// Containers limits container state to these ids. Empty means all.
	Containers     []uint32 `json:"containers,omitempty"`
	IncludeObjects bool     `json:"include_objects,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string            `json:"protocol_version"`
	WorldID         string            `json:"world_id"`
	Tick            uint64            `json:"tick"`
	WorldParams     WorldParams       `json:"world_params"`
	Players         []PlayerInfo      `json:"players"`
	Catalogs        map[string]string `json:"catalogs"`
}

type WorldParams struct {
	TickRateHz         int   `json:"tick_rate_hz"`
	Seed               int64 `json:"seed"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks"`
}

type PlayerInfo struct {
	ID   int8   `json:"id"`
	Name string `json:"name"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Containers []ContainerState `json:"containers"`
	Objects    []ObjectState    `json:"objects,omitempty"`
	Events     []ContainEvent   `json:"events,omitempty"`
	Sounds     []SoundCue       `json:"sounds,omitempty"`
}

type ContainerState struct {
	ID       uint32 `json:"id"`
	Template string `json:"template"`
	Policy   string `json:"policy"`
	// Team is the controller as seen by the subscribing viewer.
	Team   int8   `json:"team"`
	Damage string `json:"damage"`

	Count         int             `json:"count"`
	Max           int             `json:"max"`
	Occupants     []OccupantState `json:"occupants"`
	Portable      uint32          `json:"portable,omitempty"`
	DoorOpen      int             `json:"door_open,omitempty"`
	StealthHidden bool            `json:"stealth_hidden,omitempty"`
	PlayerEntered uint16          `json:"player_entered"`
}

type OccupantState struct {
	ID        uint32     `json:"id"`
	Template  string     `json:"template"`
	Slot      int        `json:"slot"`
	Pos       [3]float64 `json:"pos"`
	Attacking bool       `json:"attacking,omitempty"`
}

type ObjectState struct {
	ID          uint32     `json:"id"`
	Template    string     `json:"template"`
	Team        int8       `json:"team"`
	Pos         [3]float64 `json:"pos"`
	Yaw         float64    `json:"yaw"`
	Health      float64    `json:"health"`
	Damage      string     `json:"damage"`
	ContainedBy uint32     `json:"contained_by,omitempty"`
	Hidden      bool       `json:"hidden,omitempty"`
}

type ContainEvent struct {
	Frame     uint32 `json:"frame"`
	Kind      string `json:"kind"`
	Container uint32 `json:"container"`
	Occupant  uint32 `json:"occupant,omitempty"`
	Slot      int    `json:"slot"`
	Reason    string `json:"reason,omitempty"`
}

type SoundCue struct {
	Event  string `json:"event"`
	Source uint32 `json:"source"`
}
