package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Catalog is the static map set loaded from maps.json.
type Catalog struct {
	Maps   []MapDef
	ByID   map[string]int
	Digest string
}

type MapDef struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	DogSpeed    *float64   `json:"dogSpeed,omitempty"`
	BagCapacity *int       `json:"bagCapacity,omitempty"`
	Roads       []RoadDef  `json:"roads"`
	Buildings   []Building `json:"buildings"`
	Offices     []Office   `json:"offices"`
	LootTypes   []LootType `json:"lootTypes"`
}

// RoadDef is an axis-aligned road: exactly one of X1 (horizontal) or Y1
// (vertical) is set.
type RoadDef struct {
	X0 int  `json:"x0"`
	Y0 int  `json:"y0"`
	X1 *int `json:"x1,omitempty"`
	Y1 *int `json:"y1,omitempty"`
}

func (r RoadDef) Horizontal() bool { return r.X1 != nil }

// End returns the far end of the road.
func (r RoadDef) End() (x, y int) {
	if r.X1 != nil {
		return *r.X1, r.Y0
	}
	return r.X0, *r.Y1
}

type Building struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

type Office struct {
	ID      string `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	OffsetX int    `json:"offsetX"`
	OffsetY int    `json:"offsetY"`
}

// LootType carries the presentation fields through untouched; only Value
// matters to the simulation.
type LootType struct {
	Name     string   `json:"name,omitempty"`
	File     string   `json:"file,omitempty"`
	Type     string   `json:"type,omitempty"`
	Rotation *int     `json:"rotation,omitempty"`
	Color    string   `json:"color,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Value    int      `json:"value"`
}

type mapsFile struct {
	Maps []MapDef `json:"maps"`
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var f mapsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	c := &Catalog{
		Maps:   f.Maps,
		ByID:   make(map[string]int, len(f.Maps)),
		Digest: sha256Hex(raw),
	}
	for i, m := range f.Maps {
		if err := validateMap(m); err != nil {
			return nil, err
		}
		if _, dup := c.ByID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate map id %q", m.ID)
		}
		c.ByID[m.ID] = i
	}
	return c, nil
}

func validateMap(m MapDef) error {
	if m.ID == "" {
		return fmt.Errorf("map: empty id")
	}
	if len(m.Roads) == 0 {
		return fmt.Errorf("map %s: no roads", m.ID)
	}
	for i, r := range m.Roads {
		if (r.X1 == nil) == (r.Y1 == nil) {
			return fmt.Errorf("map %s: road %d must set exactly one of x1, y1", m.ID, i)
		}
	}
	if len(m.LootTypes) == 0 {
		return fmt.Errorf("map %s: no loot types", m.ID)
	}
	for i, lt := range m.LootTypes {
		if lt.Value < 0 {
			return fmt.Errorf("map %s: loot type %d has negative value", m.ID, i)
		}
	}
	if m.DogSpeed != nil && *m.DogSpeed < 0 {
		return fmt.Errorf("map %s: negative dogSpeed", m.ID)
	}
	if m.BagCapacity != nil && *m.BagCapacity < 0 {
		return fmt.Errorf("map %s: negative bagCapacity", m.ID)
	}
	seen := map[string]bool{}
	for _, o := range m.Offices {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("map %s: office id %q empty or duplicated", m.ID, o.ID)
		}
		seen[o.ID] = true
	}
	return nil
}

func (c *Catalog) Find(id string) (*MapDef, bool) {
	i, ok := c.ByID[id]
	if !ok {
		return nil, false
	}
	return &c.Maps[i], true
}

// IDs returns map ids in file order.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.Maps))
	for _, m := range c.Maps {
		out = append(out, m.ID)
	}
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
