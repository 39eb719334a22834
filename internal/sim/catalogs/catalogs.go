package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"rtsgarrison.dev/internal/sim/contain"
	"rtsgarrison.dev/internal/sim/geom"
	"rtsgarrison.dev/internal/sim/object"
)

type Catalogs struct {
	Containers ContainerCatalog
	Units      UnitCatalog
	Models     ModelCatalog
}

type ContainerCatalog struct {
	ByTemplate map[string]contain.Def
	Digest     string
}

// ContainerDef is the json form of contain.Def.
type ContainerDef struct {
	Template     string   `json:"template"`
	Policy       string   `json:"policy"`
	MaxOccupants int      `json:"max_occupants"`
	AllowKindOf  []string `json:"allow_kind_of,omitempty"`
	ForbidKindOf []string `json:"forbid_kind_of,omitempty"`

	AllowAllies  bool `json:"allow_allies"`
	AllowEnemies bool `json:"allow_enemies"`
	AllowNeutral bool `json:"allow_neutral"`

	EnterSound string `json:"enter_sound,omitempty"`
	ExitSound  string `json:"exit_sound,omitempty"`

	DamagePercentToUnits    float64 `json:"damage_percent_to_units"`
	PassengersAllowedToFire bool    `json:"passengers_allowed_to_fire"`
	Enclosing               bool    `json:"enclosing"`

	HealObjects       bool   `json:"heal_objects"`
	FramesForFullHeal uint32 `json:"frames_for_full_heal,omitempty"`
	MobileGarrison    bool   `json:"mobile_garrison"`

	Evacuation        string `json:"evacuation,omitempty"`
	NumberOfExitPaths int    `json:"number_of_exit_paths"`
	DoorOpenFrames    uint32 `json:"door_open_frames"`
}

func (d ContainerDef) ToDef() (contain.Def, error) {
	pol, err := contain.ParsePolicyKind(d.Policy)
	if err != nil {
		return contain.Def{}, err
	}
	allow, err := object.ParseKindOf(d.AllowKindOf)
	if err != nil {
		return contain.Def{}, err
	}
	forbid, err := object.ParseKindOf(d.ForbidKindOf)
	if err != nil {
		return contain.Def{}, err
	}
	evac, err := contain.ParseEvacuation(d.Evacuation)
	if err != nil {
		return contain.Def{}, err
	}
	def := contain.Def{
		Template:                d.Template,
		Policy:                  pol,
		MaxOccupants:            d.MaxOccupants,
		AllowKinds:              allow,
		ForbidKinds:             forbid,
		AllowAllies:             d.AllowAllies,
		AllowEnemies:            d.AllowEnemies,
		AllowNeutral:            d.AllowNeutral,
		EnterSound:              d.EnterSound,
		ExitSound:               d.ExitSound,
		DamagePercentToUnits:    d.DamagePercentToUnits,
		PassengersAllowedToFire: d.PassengersAllowedToFire,
		Enclosing:               d.Enclosing,
		HealObjects:             d.HealObjects,
		FramesForFullHeal:       d.FramesForFullHeal,
		MobileGarrison:          d.MobileGarrison,
		Evacuation:              evac,
		NumberOfExitPaths:       d.NumberOfExitPaths,
		DoorOpenFrames:          d.DoorOpenFrames,
	}
	return def, def.Validate()
}

type UnitCatalog struct {
	Templates []string
	ByID      map[string]UnitDef
	Digest    string
}

type WeaponDef struct {
	Range        float64 `json:"range"`
	Damage       float64 `json:"damage"`
	DamageType   string  `json:"damage_type"`
	ReloadFrames uint32  `json:"reload_frames"`
}

type UnitDef struct {
	Template       string     `json:"template"`
	KindOf         []string   `json:"kind_of"`
	MaxHealth      float64    `json:"max_health"`
	TransportSlots int        `json:"transport_slots"`
	Mobile         bool       `json:"mobile"`
	Locomotor      string     `json:"locomotor,omitempty"`
	Speed          float64    `json:"speed,omitempty"`
	BoundingRadius float64    `json:"bounding_radius"`
	MajorRadius    float64    `json:"major_radius"`
	MinorRadius    float64    `json:"minor_radius"`
	Weapon         *WeaponDef `json:"weapon,omitempty"`
	Container      string     `json:"container,omitempty"`
	InitialPayload []Payload  `json:"initial_payload,omitempty"`

	kind object.KindOf
}

// Payload spawns Count units of Template inside a new container.
type Payload struct {
	Template string `json:"template"`
	Count    int    `json:"count"`
}

func (u UnitDef) Kind() object.KindOf { return u.kind }

type ModelCatalog struct {
	ByTemplate map[string]Model
	Digest     string
}

// Model holds local-space bone positions keyed by damage condition then bone name.
type Model struct {
	Template string                             `json:"template"`
	Bones    map[string]map[string][][3]float64 `json:"bones"`

	local [4]map[string][]geom.Vec3
}

// BonesFor returns the local-space positions of bone in cond. A condition the
// model does not define uses the pristine table.
func (m Model) BonesFor(cond object.DamageState, bone string) []geom.Vec3 {
	if int(cond) < len(m.local) && m.local[cond] != nil {
		return m.local[cond][bone]
	}
	return m.local[object.Pristine][bone]
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadContainers(filepath.Join(configDir, "containers.json"), &c.Containers); err != nil {
		return nil, err
	}
	if err := loadUnits(filepath.Join(configDir, "units.json"), &c.Units); err != nil {
		return nil, err
	}
	if err := loadModels(filepath.Join(configDir, "models.json"), &c.Models); err != nil {
		return nil, err
	}
	for _, id := range c.Units.Templates {
		u := c.Units.ByID[id]
		if u.Container != "" {
			if _, ok := c.Containers.ByTemplate[u.Container]; !ok {
				return nil, fmt.Errorf("units.json: %s references unknown container %q", id, u.Container)
			}
		}
		for _, p := range u.InitialPayload {
			if _, ok := c.Units.ByID[p.Template]; !ok {
				return nil, fmt.Errorf("units.json: %s payload references unknown unit %q", id, p.Template)
			}
		}
	}
	return &c, nil
}

// Digests lists each catalog's sha256 by file name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"containers.json": c.Containers.Digest,
		"units.json":      c.Units.Digest,
		"models.json":     c.Models.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadContainers(path string, out *ContainerCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ContainerDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("containers.json: %w", err)
	}
	out.ByTemplate = map[string]contain.Def{}
	for _, d := range defs {
		if d.Template == "" {
			return fmt.Errorf("containers.json: empty template")
		}
		if _, dup := out.ByTemplate[d.Template]; dup {
			return fmt.Errorf("containers.json: duplicate template %s", d.Template)
		}
		def, err := d.ToDef()
		if err != nil {
			return fmt.Errorf("containers.json: %w", err)
		}
		out.ByTemplate[d.Template] = def
	}
	return nil
}

func loadUnits(path string, out *UnitCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []UnitDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("units.json: %w", err)
	}
	out.ByID = map[string]UnitDef{}
	for _, d := range defs {
		if d.Template == "" {
			return fmt.Errorf("units.json: empty template")
		}
		k, err := object.ParseKindOf(d.KindOf)
		if err != nil {
			return fmt.Errorf("units.json %s: %w", d.Template, err)
		}
		if d.MaxHealth <= 0 {
			return fmt.Errorf("units.json %s: max_health must be positive", d.Template)
		}
		d.kind = k
		out.ByID[d.Template] = d
	}
	out.Templates = make([]string, 0, len(out.ByID))
	for id := range out.ByID {
		out.Templates = append(out.Templates, id)
	}
	sort.Strings(out.Templates)
	return nil
}

func loadModels(path string, out *ModelCatalog) error {
	out.ByTemplate = map[string]Model{}
	raw, err := os.ReadFile(path)
	if err != nil {
		// Models are optional: containers without bones use their centre.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)

	var models []Model
	if err := json.Unmarshal(raw, &models); err != nil {
		return fmt.Errorf("models.json: %w", err)
	}
	for _, m := range models {
		if m.Template == "" {
			return fmt.Errorf("models.json: empty template")
		}
		for cond, bones := range m.Bones {
			ds, ok := object.ParseDamageState(cond)
			if !ok {
				return fmt.Errorf("models.json %s: unknown condition %q", m.Template, cond)
			}
			tbl := make(map[string][]geom.Vec3, len(bones))
			for name, pts := range bones {
				vs := make([]geom.Vec3, len(pts))
				for i, p := range pts {
					vs[i] = geom.FromArray(p)
				}
				tbl[strings.TrimSpace(name)] = vs
			}
			m.local[ds] = tbl
		}
		out.ByTemplate[m.Template] = m
	}
	return nil
}
